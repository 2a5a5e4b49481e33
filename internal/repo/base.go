package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by the domain repositories and owns the GORM handle.
type Base struct {
	conn *gorm.DB
}

func NewBase(conn *gorm.DB) Base {
	return Base{conn: conn}
}

// DB binds the connection to the request context so cancellation and
// deadlines propagate to the driver.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.conn
	}
	return b.conn.WithContext(ctx)
}
