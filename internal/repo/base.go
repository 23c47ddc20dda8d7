package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is the shared foundation for the card state repositories. It holds the
// GORM handle and binds request contexts to it, so every query cancels with
// the request that issued it.
type Base struct {
	conn *gorm.DB
}

// NewBase wraps a GORM connection. The same constructor serves the pooled
// connection and per-transaction handles.
func NewBase(conn *gorm.DB) Base {
	return Base{conn: conn}
}

// DB returns the connection bound to the supplied context, or the raw
// connection when no context is given.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.conn
	}
	return b.conn.WithContext(ctx)
}
