package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter_SameKeyReturnsSameCounter(t *testing.T) {
	c := NewMetricsCollector()

	a := c.Counter("test_total", "help", `kind="x"`)
	b := c.Counter("test_total", "help", `kind="x"`)
	a.Inc()
	b.Add(2)

	if a.Value() != 3 {
		t.Fatalf("expected shared counter value 3, got %d", a.Value())
	}
}

func TestCounter_LabelsSeparateSeries(t *testing.T) {
	c := NewMetricsCollector()

	c.Counter("test_total", "help", `kind="x"`).Inc()
	c.Counter("test_total", "help", `kind="y"`).Add(5)

	if got := c.Counter("test_total", "help", `kind="x"`).Value(); got != 1 {
		t.Fatalf("x series = %d, want 1", got)
	}
	if got := c.Counter("test_total", "help", `kind="y"`).Value(); got != 5 {
		t.Fatalf("y series = %d, want 5", got)
	}
}

func TestGauge_SetIncDec(t *testing.T) {
	c := NewMetricsCollector()

	g := c.Gauge("test_gauge", "help", "")
	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()

	if g.Value() != 9 {
		t.Fatalf("gauge = %d, want 9", g.Value())
	}
}

func TestHandler_ExpositionFormat(t *testing.T) {
	c := NewMetricsCollector()
	c.CountTask("image")
	c.CountPush("complete")
	c.SetActiveConnections(3)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"# TYPE assistant_uptime_seconds gauge",
		"# TYPE assistant_tasks_total counter",
		`assistant_tasks_total{input_type="image"} 1`,
		`assistant_pushes_total{push_type="complete"} 1`,
		"assistant_active_connections 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q:\n%s", want, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
}
