package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopSinksDoNotPanic(_ *testing.T) {
	ctx := context.Background()
	logger := noopLogger{}
	logger.Debug("debug", "k", "v")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")
	noopAuditRecorder{}.Record(ctx, AuditEntry{})
	noopMetricsRecorder{}.Observe(ctx, "op", true, time.Millisecond)
	_, span := noopTracer{}.Start(ctx, "op")
	span.End(errors.New("ignored"))
}

func TestClockFuncReturnsUTC(t *testing.T) {
	local := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	got := ClockFunc(func() time.Time { return local }).Now()
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(local))

	assert.Equal(t, time.UTC, ClockFunc(nil).Now().Location())
}

func TestExpvarMetricsRecorder(t *testing.T) {
	ctx := context.Background()
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(ctx, OpCreateModule, true, 2*time.Millisecond)
	rec.Observe(ctx, OpCreateModule, false, 3*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	assert.InDelta(t, 5.0, snap.DurationsMS[OpCreateModule], 0.001)
	assert.Equal(t, map[string]int64{"success": 1, "error": 1}, snap.Results[OpCreateModule])
	assert.Len(t, snap.Results, 1)

	published := expvar.Get(rec.Name())
	require.NotNil(t, published)
	var decoded ExpvarMetricsSnapshot
	require.NoError(t, json.Unmarshal([]byte(published.String()), &decoded))
	assert.Equal(t, snap.Results, decoded.Results)
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)

	ctx := context.Background()
	rec.Observe(ctx, OpRenameModule, true, 10*time.Millisecond)
	rec.Observe(ctx, OpRenameModule, true, 20*time.Millisecond)
	rec.Observe(ctx, OpRenameModule, false, time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(rec.operations.WithLabelValues(OpRenameModule, "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(rec.operations.WithLabelValues(OpRenameModule, "error")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(rec.durations))

	_, err = NewPrometheusMetricsRecorder(reg)
	require.Error(t, err)
}

func TestJSONTracerWritesEntries(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc, _ := newTestService(t, WithTracer(tracer))

	_, _, err := svc.CreateModule(context.Background(), "app", "")
	require.NoError(t, err)
	_, _, err = svc.CreateModule(context.Background(), "app", "")
	require.Error(t, err)

	entries := tracer.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, OpCreateModule, entries[0].Operation)
	assert.Equal(t, "success", entries[0].Status)
	assert.Equal(t, "error", entries[1].Status)
	assert.NotEmpty(t, entries[1].Error)

	dec := json.NewDecoder(&buf)
	var first JSONTraceEntry
	require.NoError(t, dec.Decode(&first))
	assert.Equal(t, OpCreateModule, first.Operation)

	retained := NewJSONTracer(nil)
	_, span := retained.Start(context.Background(), "op")
	span.End(nil)
	assert.Len(t, retained.Entries(), 1)
}
