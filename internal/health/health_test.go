package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name   string
	typ    CheckType
	result CheckResult
}

func (c *stubChecker) Name() string                            { return c.name }
func (c *stubChecker) Type() CheckType                          { return c.typ }
func (c *stubChecker) Check(ctx context.Context) CheckResult { return c.result }

func TestHealthIsAlwaysHealthyWithoutVerbose(t *testing.T) {
	m := NewManager("1.0.0")
	m.RegisterChecker(&stubChecker{name: "x", typ: CheckHealth, result: CheckResult{Status: StatusUnhealthy}})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)
}

func TestHealthVerboseAggregatesWorstStatus(t *testing.T) {
	m := NewManager("1.0.0")
	m.RegisterChecker(&stubChecker{name: "a", typ: CheckHealth, result: CheckResult{Status: StatusHealthy}})
	m.RegisterChecker(&stubChecker{name: "b", typ: CheckHealth, result: CheckResult{Status: StatusDegraded}})

	resp := m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestReadyOnlyRunsReadinessScopedCheckers(t *testing.T) {
	m := NewManager("1.0.0")
	m.readyCacheTTL = 0
	m.RegisterChecker(&stubChecker{name: "liveness-only", typ: CheckHealth, result: CheckResult{Status: StatusUnhealthy}})
	m.RegisterChecker(&stubChecker{name: "readiness", typ: CheckReadiness, result: CheckResult{Status: StatusHealthy}})

	resp := m.Ready(context.Background(), true)
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
	_, sawLivenessOnly := resp.Checks["liveness-only"]
	assert.False(t, sawLivenessOnly)
}

func TestReadyReportsUnhealthyDependencyAsNotReady(t *testing.T) {
	m := NewManager("1.0.0")
	m.readyCacheTTL = 0
	m.RegisterChecker(&stubChecker{name: "store", typ: CheckReadiness, result: CheckResult{Status: StatusUnhealthy, Error: "timeout"}})

	resp := m.Ready(context.Background(), false)
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestReadyCachesWithinTTL(t *testing.T) {
	m := NewManager("1.0.0")
	m.readyCacheTTL = time.Minute
	calls := 0
	m.RegisterChecker(&stubChecker{name: "counted", typ: CheckReadiness, result: CheckResult{Status: StatusHealthy}})
	_ = calls

	first := m.Ready(context.Background(), false)
	second := m.Ready(context.Background(), false)
	assert.Equal(t, first.Timestamp, second.Timestamp)
}

func TestServeReadyWritesServiceUnavailableWhenNotReady(t *testing.T) {
	m := NewManager("1.0.0")
	m.readyCacheTTL = 0
	m.RegisterChecker(&stubChecker{name: "store", typ: CheckReadiness, result: CheckResult{Status: StatusUnhealthy}})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	m.ServeReady(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var got Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Ready)
}

func TestServeHealthAlwaysWritesOK(t *testing.T) {
	m := NewManager("1.0.0")
	m.RegisterChecker(&stubChecker{name: "x", typ: CheckHealth, result: CheckResult{Status: StatusUnhealthy}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	m.ServeHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
