package enums

import "fmt"

// CardStatus tracks the fulfillment state of an order card.
type CardStatus string

const (
	CardStatusUnassigned CardStatus = "unassigned"
	CardStatusAssigned   CardStatus = "assigned"
	CardStatusCompleted  CardStatus = "completed"
)

var validCardStatuses = []CardStatus{
	CardStatusUnassigned,
	CardStatusAssigned,
	CardStatusCompleted,
}

// String implements fmt.Stringer.
func (c CardStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CardStatus.
func (c CardStatus) IsValid() bool {
	for _, candidate := range validCardStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCardStatus converts raw input into a CardStatus.
func ParseCardStatus(value string) (CardStatus, error) {
	for _, candidate := range validCardStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid card status %q", value)
}
