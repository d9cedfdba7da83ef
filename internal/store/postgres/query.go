package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// listQuery appends the ListOpts filters, ordering and paging to a base
// SELECT. tsCol is the column the time window and ordering apply to.
type listQuery struct {
	sql  string
	args []any
}

func newListQuery(base, tsCol string, opts domain.ListOpts) listQuery {
	var (
		b    strings.Builder
		args []any
		conj = " WHERE "
	)
	b.WriteString(base)

	add := func(clause string, v any) {
		args = append(args, v)
		fmt.Fprintf(&b, "%s"+clause, conj, len(args))
		conj = " AND "
	}
	if opts.Symbol != "" {
		add("symbol = $%d", opts.Symbol)
	}
	if opts.Since != nil {
		add(tsCol+" >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		add(tsCol+" <= $%d", *opts.Until)
	}

	b.WriteString(" ORDER BY " + tsCol + " DESC")

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return listQuery{sql: b.String(), args: args}
}
