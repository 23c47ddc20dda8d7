package syncclient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bloomflowhq/bloomflow-backend/pkg/db/models"
	"github.com/bloomflowhq/bloomflow-backend/pkg/enums"
	"github.com/bloomflowhq/bloomflow-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const defaultQueueSize = 16

// Manager owns the device-local view of one delivery date's cards. Local
// mutations apply immediately and travel to the server in the background;
// remote rows arrive through a single-producer single-consumer channel fed by
// the poller. The manager never rolls a local mutation back: a failed
// background call is surfaced as a notice, because visible snapback on a
// network blip is worse than a retry.
type Manager struct {
	sessionID    string
	deliveryDate string
	transport    Transport
	protection   *protectionTable
	logg         *logger.Logger

	mu    sync.Mutex
	cards map[string]models.OrderCardState

	remote chan []models.OrderCardState

	onChange func([]models.OrderCardState)
	onNotice func(error)

	background sync.WaitGroup
}

// ManagerParams carries the dependencies for a Manager.
type ManagerParams struct {
	DeliveryDate  string
	Transport     Transport
	ProtectionTTL time.Duration
	QueueSize     int
	Logger        *logger.Logger

	// OnChange fires with the full sorted card list whenever the visible
	// state changes. OnNotice fires when a background mutation fails.
	OnChange func([]models.OrderCardState)
	OnNotice func(error)
}

// NewManager validates dependencies and returns a manager with a fresh
// session identity. The session id lives as long as the manager; every
// mutation this device sends carries it.
func NewManager(params ManagerParams) (*Manager, error) {
	if params.Transport == nil {
		return nil, fmt.Errorf("manager requires a transport")
	}
	if strings.TrimSpace(params.DeliveryDate) == "" {
		return nil, fmt.Errorf("manager requires a delivery date")
	}
	if params.ProtectionTTL <= 0 {
		return nil, fmt.Errorf("manager requires a positive protection ttl")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("manager requires a logger")
	}
	queueSize := params.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Manager{
		sessionID:    uuid.NewString(),
		deliveryDate: params.DeliveryDate,
		transport:    params.Transport,
		protection:   newProtectionTable(params.ProtectionTTL, 0, nil),
		logg:         params.Logger,
		cards:        make(map[string]models.OrderCardState),
		remote:       make(chan []models.OrderCardState, queueSize),
		onChange:     params.OnChange,
		onNotice:     params.OnNotice,
	}, nil
}

// SessionID returns this device's session identity.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// Bootstrap loads the full current state before polling starts.
func (m *Manager) Bootstrap(ctx context.Context) error {
	rows, err := m.transport.Snapshot(ctx, m.deliveryDate)
	if err != nil {
		return fmt.Errorf("loading card snapshot: %w", err)
	}

	m.mu.Lock()
	m.cards = make(map[string]models.OrderCardState, len(rows))
	for _, row := range rows {
		m.cards[row.CardID] = row
	}
	m.mu.Unlock()

	m.notifyChange()
	return nil
}

// Start launches the remote consumer. It returns once the goroutine is
// running; cancel the context to stop it.
func (m *Manager) Start(ctx context.Context) {
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case rows := <-m.remote:
				for _, row := range rows {
					m.applyRemote(ctx, row)
				}
			}
		}
	}()
}

// Wait blocks until all background work has finished. Call after cancelling
// the context passed to Start.
func (m *Manager) Wait() {
	m.background.Wait()
}

// Dispatch hands a batch of remote rows to the consumer. It blocks while the
// queue is full, which is what keeps the poller's watermark honest: the
// watermark only advances after the rows are accepted.
func (m *Manager) Dispatch(ctx context.Context, rows []models.OrderCardState) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.remote <- rows:
		return nil
	}
}

// ApplyLocal mutates the local view immediately, records a protection entry,
// and sends the mutation in the background. The returned row is the
// optimistic local state, not the server's answer.
func (m *Manager) ApplyLocal(ctx context.Context, mutation Mutation) *models.OrderCardState {
	m.mu.Lock()
	row, ok := m.cards[mutation.CardID]
	if !ok {
		row = m.blankRow(mutation.CardID)
	}
	applyMutation(&row, mutation)
	row.OriginSessionID = &m.sessionID
	m.cards[mutation.CardID] = row
	// Marked under the same lock so a settling earlier write cannot slip in
	// between the view update and the pending-write count.
	m.protection.mark(mutation.CardID)
	m.mu.Unlock()

	m.notifyChange()

	m.background.Add(1)
	go func() {
		defer m.background.Done()
		sent, err := m.transport.Mutate(context.WithoutCancel(ctx), m.deliveryDate, m.sessionID, mutation)
		if err != nil {
			// The write is no longer in flight; if the server persisted it
			// anyway, the echo will deliver the outcome.
			m.protection.release(mutation.CardID)
			m.logg.Error(m.logg.WithCardID(context.Background(), mutation.CardID), "background card mutation failed", err)
			if m.onNotice != nil {
				m.onNotice(err)
			}
			return
		}
		m.settleWrite(sent)
	}()

	snapshot := row
	return &snapshot
}

// ApplyReorder applies a coalesced set of sort positions as one visible
// transition, then sends the individual mutations. Errors are combined so the
// caller sees the whole batch outcome at once.
func (m *Manager) ApplyReorder(ctx context.Context, positions map[string]int) error {
	if len(positions) == 0 {
		return nil
	}

	m.mu.Lock()
	for cardID, position := range positions {
		row, ok := m.cards[cardID]
		if !ok {
			row = m.blankRow(cardID)
		}
		row.SortOrder = position
		row.OriginSessionID = &m.sessionID
		m.cards[cardID] = row
		m.protection.mark(cardID)
	}
	m.mu.Unlock()

	m.notifyChange()

	var errs error
	for cardID, position := range positions {
		pos := position
		sent, err := m.transport.Mutate(ctx, m.deliveryDate, m.sessionID, Mutation{
			CardID:    cardID,
			SortOrder: &pos,
		})
		if err != nil {
			m.protection.release(cardID)
			errs = multierr.Append(errs, fmt.Errorf("card %s: %w", cardID, err))
			continue
		}
		m.settleWrite(sent)
	}
	return errs
}

// Snapshot returns the current local view sorted for display.
func (m *Manager) Snapshot() []models.OrderCardState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked()
}

// applyRemote folds one polled row into the local view. An own-session echo
// arriving while the card still has writes in flight only contributes its
// stamp: the optimistic state on screen is newer than anything the poll can
// carry, and replaying the echo causes visible snapback. Once the card has no
// pending writes the echo is the server's merged truth and reconciles like
// any other row, which restores this device's fields if a foreign write
// landed in between. A row without origin attribution is applied, never
// blocked. Everything else resolves by last-write-wins on the
// server-assigned stamp.
func (m *Manager) applyRemote(ctx context.Context, row models.OrderCardState) {
	if row.OriginSessionID != nil && *row.OriginSessionID == m.sessionID {
		m.mu.Lock()
		if m.protection.active(row.CardID) {
			m.adoptStampLocked(&row)
			m.mu.Unlock()
			return
		}
		changed := m.reconcileLocked(row)
		m.mu.Unlock()
		if changed {
			m.notifyChange()
		}
		return
	}

	m.mu.Lock()
	existing, ok := m.cards[row.CardID]
	if ok && !row.UpdatedAt.After(existing.UpdatedAt) {
		m.mu.Unlock()
		return
	}
	m.cards[row.CardID] = row
	m.mu.Unlock()

	m.logg.Info(m.logg.WithCardID(ctx, row.CardID), "applied remote card update")
	m.notifyChange()
}

// settleWrite folds the server's answer to one of this device's writes back
// into the view. While more writes are pending for the card, only the stamp
// is adopted; the last settle reconciles the full merged row.
func (m *Manager) settleWrite(row *models.OrderCardState) {
	if row == nil {
		return
	}
	m.mu.Lock()
	if m.protection.release(row.CardID) {
		m.adoptStampLocked(row)
		m.mu.Unlock()
		return
	}
	changed := m.reconcileLocked(*row)
	m.mu.Unlock()

	if changed {
		m.notifyChange()
	}
}

// reconcileLocked applies a server row the device itself caused, by
// last-write-wins on the stamp, and reports whether a visible field actually
// changed. The common case of the server confirming exactly what is already
// on screen changes nothing and warrants no notification.
func (m *Manager) reconcileLocked(row models.OrderCardState) bool {
	existing, ok := m.cards[row.CardID]
	if ok && !row.UpdatedAt.After(existing.UpdatedAt) {
		return false
	}
	changed := !ok || !sameVisible(existing, row)
	m.cards[row.CardID] = row
	return changed
}

// adoptStampLocked records the server's timestamp for a row this device
// already shows, without touching the visible fields. Keeping the stamp
// current is what lets later remote rows win or lose last-write-wins
// correctly.
func (m *Manager) adoptStampLocked(row *models.OrderCardState) {
	if row == nil {
		return
	}
	existing, ok := m.cards[row.CardID]
	if !ok {
		m.cards[row.CardID] = *row
		return
	}
	if row.UpdatedAt.After(existing.UpdatedAt) {
		existing.UpdatedAt = row.UpdatedAt
		existing.TenantID = row.TenantID
		m.cards[row.CardID] = existing
	}
}

func (m *Manager) blankRow(cardID string) models.OrderCardState {
	return models.OrderCardState{
		CardID:       cardID,
		DeliveryDate: m.deliveryDate,
		Status:       enums.CardStatusUnassigned,
	}
}

func (m *Manager) notifyChange() {
	if m.onChange == nil {
		return
	}
	m.mu.Lock()
	view := m.sortedLocked()
	m.mu.Unlock()
	m.onChange(view)
}

func (m *Manager) sortedLocked() []models.OrderCardState {
	view := make([]models.OrderCardState, 0, len(m.cards))
	for _, row := range m.cards {
		view = append(view, row)
	}
	sort.Slice(view, func(i, j int) bool {
		if view[i].SortOrder != view[j].SortOrder {
			return view[i].SortOrder < view[j].SortOrder
		}
		return view[i].CardID < view[j].CardID
	})
	return view
}

// sameVisible reports whether two rows render identically. Stamp and origin
// differences alone do not warrant repainting the board.
func sameVisible(a, b models.OrderCardState) bool {
	return a.Status == b.Status &&
		a.SortOrder == b.SortOrder &&
		equalOptional(a.AssignedTo, b.AssignedTo) &&
		equalOptional(a.AssignedBy, b.AssignedBy) &&
		equalOptional(a.Notes, b.Notes)
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func applyMutation(row *models.OrderCardState, m Mutation) {
	if m.Status != nil {
		row.Status = *m.Status
	}
	if m.AssignedTo != nil {
		row.AssignedTo = m.AssignedTo
	}
	if m.AssignedBy != nil {
		row.AssignedBy = m.AssignedBy
	}
	if m.Notes != nil {
		row.Notes = m.Notes
	}
	if m.SortOrder != nil {
		row.SortOrder = *m.SortOrder
	}
}
