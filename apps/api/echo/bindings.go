package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/walimu/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses the "ordering" query param. Field names end up verbatim in an
// ORDER BY clause, so anything outside allowed is silently dropped.
func (ord *Ordering) Bind(ctx echo.Context, allowed ...string) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if !isOrderable(field, allowed) {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

func isOrderable(field string, allowed []string) bool {
	for _, col := range allowed {
		if field == col {
			return true
		}
	}
	return false
}
