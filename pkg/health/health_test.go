package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{
			name: "all up",
			checks: map[string]Check{
				"redis": PingCheck(pingFunc(func(context.Context) error { return nil })),
			},
			want: StatusUp,
		},
		{
			name: "optional failure degrades",
			checks: map[string]Check{
				"redis": PingCheck(pingFunc(func(context.Context) error { return nil })),
				"cache": Optional(PingCheck(pingFunc(func(context.Context) error { return errors.New("refused") }))),
			},
			want: StatusDegraded,
		},
		{
			name: "required failure wins over degraded",
			checks: map[string]Check{
				"cache":  Optional(PingCheck(pingFunc(func(context.Context) error { return errors.New("refused") }))),
				"qdrant": PingCheck(pingFunc(func(context.Context) error { return errors.New("timeout") })),
			},
			want: StatusDown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.checks))
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("qdrant", PingCheck(pingFunc(func(context.Context) error { return errors.New("down") })))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "down", report.Components["qdrant"].Message)
}
