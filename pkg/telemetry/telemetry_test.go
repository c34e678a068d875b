package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "default", mutate: func(c *Config) {}},
		{name: "missing service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, wantErr: true},
		{name: "bad sampling rate", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: true},
		{name: "negative history", mutate: func(c *Config) { c.Events.History = -1 }, wantErr: true},
		{name: "otlp without endpoint", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
		}, wantErr: true},
		{name: "metrics without namespace", mutate: func(c *Config) { c.Metrics.Namespace = "" }, wantErr: true},
		{name: "bad time format", mutate: func(c *Config) { c.Logging.TimeFormat = "iso" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerOperationFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.WithOperation("tree.boot", nil).Info().Str("node_id", "quotes").Msg("hello")

	out := buf.String()
	for _, want := range []string{`"operation":"tree.boot"`, `"node_id":"quotes"`, `"message":"hello"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %s", out, want)
		}
	}
	if strings.Contains(out, "trace_id") {
		t.Errorf("log output %q should not carry a trace id without a span", out)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Errorf("info message should be filtered at warn level, got %q", buf.String())
	}

	logger.Warn().Msg("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn message should be written")
	}
}

func TestFromContextDefaultsToNop(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("expected a logger")
	}
	logger.Info().Msg("should not panic")
}

func TestMetricsRecording(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "test"})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordNodeInitialization("success")
	m.RecordNodeInitialization("success")
	m.RecordNodeInitialization("failure")
	m.AddHooksRegistered("direct", 3)
	m.AddHooksRegistered("direct", -1)
	m.RecordDependencyCheck("active_quotes", false)
	m.RecordPermissionCache("permissions", true)

	if got := testutil.ToFloat64(m.nodeInitializations.WithLabelValues("success")); got != 2 {
		t.Errorf("success initializations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.hooksRegistered.WithLabelValues("direct")); got != 2 {
		t.Errorf("registered hooks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.dependencyChecks.WithLabelValues("active_quotes", "unfulfilled")); got != 1 {
		t.Errorf("unfulfilled checks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.permissionCache.WithLabelValues("permissions", "hit")); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "shop"})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	m.RecordNodeInitialization("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "shop_") {
		t.Errorf("metrics output missing namespace: %s", rec.Body.String())
	}

	disabled, _ := NewMetrics(MetricsConfig{Enabled: false})
	rec = httptest.NewRecorder()
	disabled.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled metrics status = %d, want 404", rec.Code)
	}
}

func TestConfigPresets(t *testing.T) {
	for name, cfg := range map[string]*Config{
		"default":     DefaultConfig(),
		"development": DevelopmentConfig(),
		"production":  ProductionConfig(),
		"test":        TestConfig(),
	} {
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s preset is invalid: %v", name, err)
		}
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordNodeInitialization("success")
	m.RecordHookFlush("scoped", "run")
	m.RecordError("X")

	disabled, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	disabled.RecordNodeSetup("immediate", "success")
	if disabled.Registry() != nil {
		t.Error("disabled metrics must not expose a registry")
	}
}

func TestEventPublisher(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, History: 2})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}

	var received []Event
	ep.Subscribe(func(e Event) { received = append(received, e) }, FilterByLevel(EventLevelWarning))

	ep.PublishNodeInitialized("a")
	ep.PublishNodeInitFailed("b", errors.New("boom"))
	ep.PublishDependencyUnfulfilled("active_c", []string{"ext:woo"})

	if len(received) != 2 {
		t.Fatalf("expected 2 events at warning level or above, got %d", len(received))
	}
	if received[0].ID == "" || received[0].Timestamp.IsZero() {
		t.Error("event id and timestamp must be populated")
	}

	history := ep.History()
	if len(history) != 2 {
		t.Fatalf("history should be bounded to 2, got %d", len(history))
	}
	if history[0].NodeID != "b" || history[1].HandlerID != "active_c" {
		t.Errorf("unexpected history order: %+v", history)
	}
}

func TestEventPublisherDisabled(t *testing.T) {
	ep, _ := NewEventPublisher(EventsConfig{Enabled: false, History: 10})
	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	ep.PublishNodeInitialized("a")
	if called || len(ep.History()) != 0 {
		t.Error("disabled publisher must not deliver events")
	}

	var nilPublisher *EventPublisher
	nilPublisher.PublishNodeReady("a", "immediate")
}

func TestStartOperationWithoutTelemetry(t *testing.T) {
	ic := StartOperation(context.Background(), "noop")
	if ic.Span != nil {
		t.Error("expected no span without telemetry in context")
	}
	ic.End(nil)
}

func TestStartOperationWithTelemetry(t *testing.T) {
	tel := Noop()
	ctx := tel.WithContext(context.Background())

	ic := StartOperation(ctx, "initialize")
	if ic.Span == nil {
		t.Fatal("expected span")
	}
	ic.End(errors.New("failed"))
}

type codedError struct{ code string }

func (e *codedError) Error() string { return "coded: " + e.code }
func (e *codedError) Code() string  { return e.code }

func TestRecordErrorSetsCode(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "node.setup")
	RecordError(span, fmt.Errorf("wrapped: %w", &codedError{code: "NODE_SETUP"}))
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", ended[0].Status().Code)
	}
	found := false
	for _, kv := range ended[0].Attributes() {
		if kv.Key == AttrErrorCode && kv.Value.AsString() == "NODE_SETUP" {
			found = true
		}
	}
	if !found {
		t.Errorf("error.code attribute missing: %v", ended[0].Attributes())
	}
}
