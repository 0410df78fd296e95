package echoapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/walimu/core"
)

func TestOrdering_Bind(t *testing.T) {
	allowed := []string{"name", "created_at"}

	tests := []struct {
		name     string
		ordering *string
		want     []core.DBOrdering
	}{
		{name: "no param"},
		{name: "empty param", ordering: strPtr("")},
		{
			name:     "ascending and descending",
			ordering: strPtr("name,-created_at"),
			want: []core.DBOrdering{
				{Field: "name", Ascending: true},
				{Field: "created_at", Ascending: false},
			},
		},
		{
			name:     "unknown field dropped",
			ordering: strPtr("password_hash,name"),
			want:     []core.DBOrdering{{Field: "name", Ascending: true}},
		},
		{
			name:     "sql fragment dropped",
			ordering: strPtr("name; DROP TABLE application--,created_at"),
			want:     []core.DBOrdering{{Field: "created_at", Ascending: true}},
		},
		{name: "nothing allowed survives", ordering: strPtr("(SELECT 1)")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/"
			if tt.ordering != nil {
				target += "?" + url.Values{orderingParam: {*tt.ordering}}.Encode()
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			ctx := echo.New().NewContext(req, httptest.NewRecorder())

			ordering := new(Ordering)
			ordering.Bind(ctx, allowed...)
			assert.Equal(t, tt.want, ordering.Orderings)
		})
	}
}

func strPtr(s string) *string { return &s }
