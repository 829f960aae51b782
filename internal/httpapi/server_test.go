package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"airwatch/internal/catalog"
	"airwatch/internal/domain"
	"airwatch/internal/task/engine"
	"airwatch/internal/timeline"
	"airwatch/pkg/logx"
)

type stubTimeline struct{ st timeline.SchedulerState }

func (s stubTimeline) Snapshot() timeline.SchedulerState { return s.st }

type stubEngine struct{}

func (stubEngine) Snapshot() engine.Snapshot { return engine.Snapshot{Workers: 3, QueueCap: 16} }

func newTestServer(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	return New(Config{}, deps, logx.Nop()).Router()
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if out != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, rr.Body.String())
		}
	}
	return rr.Code
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Deps{Timeline: stubTimeline{st: timeline.SchedulerState{Phase: timeline.PhaseArmed, FetchFailures: 2}}})
	var body map[string]any
	if code := get(t, h, "/api/v1/health", &body); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if body["status"] != "degraded" || body["timeline_phase"] != "armed" {
		t.Fatalf("body = %v", body)
	}
}

func TestCatalogFiltersByDay(t *testing.T) {
	t.Parallel()

	st := catalog.NewMemory()
	_, err := st.Replace(context.Background(), []domain.Item{
		{Day: "Monday", Title: "Show A", AirTime: domain.MustClock("10:00")},
		{Day: "Tuesday", Title: "Show B", AirTime: domain.MustClock("11:30")},
	})
	if err != nil {
		t.Fatal(err)
	}
	h := newTestServer(t, Deps{Catalog: st})

	var body struct {
		Generation uint64 `json:"generation"`
		Items      []struct {
			Title   string `json:"title"`
			AirTime string `json:"air_time"`
		} `json:"items"`
	}
	if code := get(t, h, "/api/v1/catalog?day=Tuesday", &body); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if body.Generation != st.Generation() {
		t.Fatalf("generation = %d, want %d", body.Generation, st.Generation())
	}
	if len(body.Items) != 1 || body.Items[0].Title != "Show B" || body.Items[0].AirTime != "11:30" {
		t.Fatalf("items = %+v", body.Items)
	}
}

func TestTimelineAndTasks(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Deps{
		Timeline: stubTimeline{st: timeline.SchedulerState{Phase: timeline.PhaseIdle, Day: "Friday"}},
		Engine:   stubEngine{},
	})

	var st timeline.SchedulerState
	if code := get(t, h, "/api/v1/timeline", &st); code != http.StatusOK || st.Day != "Friday" {
		t.Fatalf("timeline %d %+v", code, st)
	}

	var tasks struct {
		Engine engine.Snapshot `json:"engine"`
	}
	if code := get(t, h, "/api/v1/tasks", &tasks); code != http.StatusOK || tasks.Engine.Workers != 3 {
		t.Fatalf("tasks %d %+v", code, tasks)
	}
}

func TestMissingDependencies(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Deps{})
	if code := get(t, h, "/api/v1/timeline", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("timeline status %d", code)
	}
	if code := get(t, h, "/api/v1/catalog", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("catalog status %d", code)
	}
	if code := get(t, h, "/api/v1/nope", nil); code != http.StatusNotFound {
		t.Fatalf("unknown path status %d", code)
	}
}

func TestPprofMount(t *testing.T) {
	t.Parallel()

	off := newTestServer(t, Deps{})
	if code := get(t, off, "/debug/pprof/", nil); code != http.StatusNotFound {
		t.Fatalf("pprof disabled status %d", code)
	}
	on := New(Config{Pprof: true}, Deps{}, logx.Nop()).Router()
	if code := get(t, on, "/debug/pprof/", nil); code != http.StatusOK {
		t.Fatalf("pprof enabled status %d", code)
	}
}
