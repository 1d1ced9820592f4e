package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	xerrors "taskboard/internal/errors"
	"taskboard/internal/observability/alerting"
	"taskboard/internal/observability/metrics"
	"taskboard/internal/storage/sqldb"
	"taskboard/internal/task"
)

func newTestServer(t *testing.T, store task.Store, opts Options) http.Handler {
	t.Helper()
	svc := task.NewService(store, nil)
	return NewServer(":0", svc, opts).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeTasks(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v (%s)", err, rec.Body.String())
	}
	return list
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body.Error
}

func TestCreateAndListWithSQLite(t *testing.T) {
	ctx := context.Background()
	db, dialect, err := sqldb.Open(ctx, sqldb.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "tasks.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := sqldb.EnsureSchema(ctx, db, dialect); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	store := task.NewSQLStore(db)
	t.Cleanup(func() { _ = store.Close() })
	h := newTestServer(t, store, Options{})

	rec := do(t, h, http.MethodPost, "/tasks", `{"title":"Buy milk"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d (%s)", rec.Code, rec.Body.String())
	}
	var created messageBody
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if created.ID != 1 || created.Message == "" {
		t.Fatalf("unexpected create body: %+v", created)
	}

	rec = do(t, h, http.MethodGet, "/tasks", "")
	want := `[{"id":1,"title":"Buy milk","description":"","due_date":null,"is_completed":false}]`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Fatalf("unexpected list:\n got %s\nwant %s", got, want)
	}

	rec = do(t, h, http.MethodPut, "/tasks/1", `{"is_completed":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: got %d (%s)", rec.Code, rec.Body.String())
	}
	list := decodeTasks(t, do(t, h, http.MethodGet, "/tasks", ""))
	if list[0]["is_completed"] != true {
		t.Fatalf("expected completed task, got %v", list[0])
	}
}

func TestCreateRejectsMissingTitle(t *testing.T) {
	store := task.NewMemoryStore()
	h := newTestServer(t, store, Options{})

	for _, body := range []string{`{}`, `{"title":""}`, `{"title":null,"description":"x"}`} {
		rec := do(t, h, http.MethodPost, "/tasks", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
		if errorMessage(t, rec) == "" {
			t.Fatalf("body %s: expected error message", body)
		}
	}
	for _, body := range []string{`not json`, `{"title":42}`} {
		if rec := do(t, h, http.MethodPost, "/tasks", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
	if list := decodeTasks(t, do(t, h, http.MethodGet, "/tasks", "")); len(list) != 0 {
		t.Fatalf("no row should be inserted, got %v", list)
	}
}

func TestListOrderAndWireShape(t *testing.T) {
	h := newTestServer(t, task.NewMemoryStore(), Options{})

	for _, body := range []string{
		`{"title":"late","due_date":"2024-12-01"}`,
		`{"title":"done","due_date":"2024-01-01"}`,
		`{"title":"soon","due_date":"2024-02-01"}`,
		`{"title":"undated","due_date":""}`,
	} {
		if rec := do(t, h, http.MethodPost, "/tasks", body); rec.Code != http.StatusCreated {
			t.Fatalf("create %s: %d", body, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodPut, "/tasks/2", `{"is_completed":true}`); rec.Code != http.StatusOK {
		t.Fatalf("complete: %d", rec.Code)
	}

	list := decodeTasks(t, do(t, h, http.MethodGet, "/tasks", ""))
	var titles []string
	for _, item := range list {
		if _, ok := item["status"]; ok {
			t.Fatalf("raw status must not be exposed: %v", item)
		}
		if _, ok := item["is_completed"].(bool); !ok {
			t.Fatalf("is_completed must be a boolean: %v", item)
		}
		titles = append(titles, item["title"].(string))
	}
	want := []string{"undated", "soon", "late", "done"}
	if strings.Join(titles, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected order: %v", titles)
	}
	if list[0]["due_date"] != nil {
		t.Fatalf("empty due_date should be null, got %v", list[0]["due_date"])
	}
}

func TestUpdateTask(t *testing.T) {
	h := newTestServer(t, task.NewMemoryStore(), Options{})
	do(t, h, http.MethodPost, "/tasks", `{"title":"a","description":"d","due_date":"2024-05-01"}`)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{name: "missing id", path: "/tasks/99", body: `{"title":"x"}`, status: http.StatusNotFound},
		{name: "non numeric id", path: "/tasks/abc", body: `{"title":"x"}`, status: http.StatusNotFound},
		{name: "only unknown fields", path: "/tasks/1", body: `{"priority":5,"status":1}`, status: http.StatusBadRequest},
		{name: "empty object", path: "/tasks/1", body: `{}`, status: http.StatusBadRequest},
		{name: "not an object", path: "/tasks/1", body: `[1,2]`, status: http.StatusBadRequest},
		{name: "null body", path: "/tasks/1", body: `null`, status: http.StatusBadRequest},
		{name: "empty title", path: "/tasks/1", body: `{"title":""}`, status: http.StatusBadRequest},
		{name: "null title", path: "/tasks/1", body: `{"title":null}`, status: http.StatusBadRequest},
		{name: "wrong completion type", path: "/tasks/1", body: `{"is_completed":"yes"}`, status: http.StatusBadRequest},
		{name: "null completion", path: "/tasks/1", body: `{"is_completed":null}`, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPut, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d (%s)", tc.status, rec.Code, rec.Body.String())
			}
		})
	}

	list := decodeTasks(t, do(t, h, http.MethodGet, "/tasks", ""))
	if list[0]["title"] != "a" || list[0]["due_date"] != "2024-05-01" || list[0]["is_completed"] != false {
		t.Fatalf("failed updates must not change the row: %v", list[0])
	}

	rec := do(t, h, http.MethodPut, "/tasks/1", `{"due_date":"","description":null,"ignored":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: got %d (%s)", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/tasks/1", "")
	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if got.DueDate != nil || got.Description != "" || got.Title != "a" {
		t.Fatalf("unexpected task after update: %+v", got)
	}
}

func TestDeleteTask(t *testing.T) {
	h := newTestServer(t, task.NewMemoryStore(), Options{})
	do(t, h, http.MethodPost, "/tasks", `{"title":"a"}`)
	do(t, h, http.MethodPost, "/tasks", `{"title":"b"}`)

	if rec := do(t, h, http.MethodDelete, "/tasks/1", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete: got %d", rec.Code)
	}
	list := decodeTasks(t, do(t, h, http.MethodGet, "/tasks", ""))
	if len(list) != 1 || list[0]["title"] != "b" {
		t.Fatalf("unexpected list after delete: %v", list)
	}
	rec := do(t, h, http.MethodDelete, "/tasks/1", "")
	if rec.Code != http.StatusNotFound || errorMessage(t, rec) == "" {
		t.Fatalf("second delete: got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/tasks/1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: got %d", rec.Code)
	}
}

func TestIndexPage(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "index.html")
	if err := os.WriteFile(index, []byte("<html><body>tasks</body></html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}

	rec := do(t, newTestServer(t, task.NewMemoryStore(), Options{IndexPath: index}), http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "tasks") {
		t.Fatalf("index: got %d (%s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type: %s", ct)
	}

	missing := filepath.Join(dir, "missing.html")
	rec = do(t, newTestServer(t, task.NewMemoryStore(), Options{IndexPath: missing}), http.MethodGet, "/", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(errorMessage(t, rec), "index.html") {
		t.Fatalf("missing index: got %d (%s)", rec.Code, rec.Body.String())
	}
}

type brokenStore struct {
	*task.MemoryStore
}

var errDiskIO = stdErrors.New("disk I/O error")

func (brokenStore) List(context.Context) ([]*task.Task, error) {
	return nil, xerrors.Wrap(xerrors.CodeStorageFailure, errDiskIO, "查询任务失败")
}

func (brokenStore) Create(context.Context, *task.Task) error {
	return xerrors.Wrap(xerrors.CodeStorageFailure, errDiskIO, "添加任务失败")
}

func (brokenStore) Ping(context.Context) error {
	return xerrors.Wrap(xerrors.CodeStorageFailure, errDiskIO, "数据库不可用")
}

func (brokenStore) Get(context.Context, int64) (*task.Task, error) {
	panic("corrupted row")
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func TestStorageFailuresSurfaceAndAlert(t *testing.T) {
	alerts := &recordingDispatcher{}
	h := newTestServer(t, brokenStore{task.NewMemoryStore()}, Options{Alerts: alerts})

	rec := do(t, h, http.MethodGet, "/tasks", "")
	if rec.Code != http.StatusInternalServerError || !strings.Contains(errorMessage(t, rec), "disk I/O error") {
		t.Fatalf("list: got %d (%s)", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/tasks", `{"title":"x"}`)
	if rec.Code != http.StatusInternalServerError || !strings.Contains(errorMessage(t, rec), "disk I/O error") {
		t.Fatalf("create: got %d (%s)", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz: got %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/tasks/1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("panic should become 500, got %d", rec.Code)
	}

	alerts.mu.Lock()
	defer alerts.mu.Unlock()
	if len(alerts.events) != 3 {
		t.Fatalf("expected 3 alerts, got %d: %+v", len(alerts.events), alerts.events)
	}
	first := alerts.events[0]
	if first.Code != xerrors.CodeStorageFailure || first.Route != "/tasks" || first.Method != http.MethodGet || first.RequestID == "" {
		t.Fatalf("unexpected alert: %+v", first)
	}
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	collector := metrics.NewCollector("taskboard")
	h := newTestServer(t, task.NewMemoryStore(), Options{Metrics: collector})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("healthz: got %d (%s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("request id not echoed: %q", got)
	}

	rec = do(t, h, http.MethodGet, "/tasks", "")
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("request id should be generated")
	}
	do(t, h, http.MethodDelete, "/tasks/7", "")

	rec = do(t, h, http.MethodGet, "/metrics", "")
	body := rec.Body.String()
	for _, want := range []string{
		`taskboard_http_requests_total{route="/healthz",method="GET",code="200"} 1`,
		`taskboard_http_requests_total{route="/tasks",method="GET",code="200"} 1`,
		`taskboard_http_requests_total{route="/tasks/{id:[0-9]+}",method="DELETE",code="404"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newTestServer(t, task.NewMemoryStore(), Options{})
	if rec := do(t, h, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound || errorMessage(t, rec) == "" {
		t.Fatalf("unknown route: got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPatch, "/tasks", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("unknown method: got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, task.NewMemoryStore(), Options{AllowedOrigins: []string{"http://localhost:3000"}})
	req := httptest.NewRequest(http.MethodOptions, "/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin: %q", got)
	}
}
