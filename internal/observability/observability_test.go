package observability_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"RangeLedger/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":      zerolog.InfoLevel,
		"debug": zerolog.DebugLevel,
		"WARN":  zerolog.WarnLevel,
		"bogus": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := observability.ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q): got %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerTo_Component(t *testing.T) {
	var buf bytes.Buffer
	log := observability.NewLoggerTo(&buf, "core", zerolog.InfoLevel)
	log.Info().Msg("hello")
	log.Debug().Msg("hidden")

	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "core" {
		t.Errorf("got component %v, want core", line["component"])
	}
}

func TestHealthChecker_Readiness(t *testing.T) {
	h := observability.NewHealthChecker()

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	h.SetReady(true)
	h.SetComponent("postgres", true)
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("got %d, want %d", rec.Code, http.StatusOK)
	}

	h.SetComponent("lease", false)
	if h.IsReady() {
		t.Error("a down component should make the service not ready")
	}
}

func TestHealthChecker_Liveness(t *testing.T) {
	rec := httptest.NewRecorder()
	observability.NewHealthChecker().LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("got %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestNewMetricsWith_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsWith(reg)
	m.CoreEventsApplied.WithLabelValues("BuyTokens").Inc()

	if got := testutil.ToFloat64(m.CoreEventsApplied.WithLabelValues("BuyTokens")); got != 1 {
		t.Errorf("got %v, want 1", got)
	}

	// a second set on another registry must not panic
	observability.NewMetricsWith(prometheus.NewRegistry())
}
