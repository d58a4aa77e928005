package store

import (
	"context"

	"github.com/pashagolub/pgxmock/v4"
)

// setupMockContext plants the mock as the context transaction so conn(ctx)
// routes every statement to it.
func setupMockContext(mock pgxmock.PgxPoolIface) context.Context {
	return context.WithValue(context.Background(), txKey{}, mock)
}
