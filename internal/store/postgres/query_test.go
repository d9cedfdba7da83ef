package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

func TestNewListQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q := newListQuery("SELECT * FROM trades", "executed_at", domain.ListOpts{
		Symbol: "AAPLx",
		Since:  &since,
		Limit:  20,
		Offset: 40,
	})
	assert.Equal(t,
		"SELECT * FROM trades WHERE symbol = $1 AND executed_at >= $2 ORDER BY executed_at DESC LIMIT $3 OFFSET $4",
		q.sql)
	assert.Equal(t, []any{"AAPLx", since, 20, 40}, q.args)

	bare := newListQuery("SELECT * FROM audit_log", "created_at", domain.ListOpts{})
	assert.Equal(t, "SELECT * FROM audit_log ORDER BY created_at DESC", bare.sql)
	assert.Empty(t, bare.args)
}
