package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"workspacemodel/internal/infra/persistence/memory"
	"workspacemodel/pkg/domain"
)

var testSource = domain.EntitySource{Kind: "test"}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore(domain.NewRegistry(), NewDefaultRulesEngine())
	svc, err := NewService(store, testSource, opts...)
	require.NoError(t, err)
	return svc, store
}

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) last() AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[len(c.entries)-1]
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	ended []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type logCall struct {
	level string
	msg   string
}

type captureLogger struct {
	calls []logCall
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.calls = append(l.calls, logCall{"debug", msg}) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.calls = append(l.calls, logCall{"info", msg}) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.calls = append(l.calls, logCall{"warn", msg}) }
func (l *captureLogger) Error(msg string, _ ...any) { l.calls = append(l.calls, logCall{"error", msg}) }
