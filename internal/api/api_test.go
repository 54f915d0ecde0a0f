package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/docreg/internal/apperr"
	"github.com/starford/docreg/internal/index"
	"github.com/starford/docreg/internal/registry"
	"github.com/starford/docreg/internal/testutil"
)

var sampleTree = map[string]string{
	"commands/bugfix.md":      "---\ntitle: Bugfix\n---\nFollow `skills/testing/SKILL.md` before you commit.\n",
	"commands/deploy.md":      "# Deploy\n\nSee skills/does-not-exist/SKILL.md for the checklist.\n",
	"skills/testing/SKILL.md": "---\nname: testing\n---\n# Testing\n\nTable driven tests.\n",
}

var quietLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// testEnv loads sampleTree into a registry and builds a router over it.
// A non-empty authToken enables token mode.
func testEnv(t *testing.T, authToken string, opts ...RouterOption) (*registry.Service, string, http.Handler) {
	t.Helper()
	root := testutil.WriteTree(t, sampleTree)
	svc := registry.NewService(registry.WithRoot(root), registry.WithLogger(quietLogger))
	if _, err := svc.Refresh(context.Background(), ""); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	opts = append(opts, WithAuth(authToken != "", authToken))
	return svc, root, NewRouter(svc, opts...)
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestGetDocument(t *testing.T) {
	_, _, router := testEnv(t, "")

	for _, target := range []string{
		"/documents/commands/bugfix",
		"/documents/commands/bugfix.md",
		"/documents/commands%2Fbugfix",
	} {
		w := get(t, router, target)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, body = %s", target, w.Code, w.Body.String())
		}
		doc := decode[map[string]any](t, w)
		if doc["id"] != "commands/bugfix" || doc["title"] != "Bugfix" {
			t.Errorf("%s: doc = %v", target, doc)
		}
		edges, _ := doc["edges"].([]any)
		if len(edges) != 1 {
			t.Errorf("%s: edges = %v, want 1", target, doc["edges"])
		}
	}

	w := get(t, router, "/documents/skills/testing/SKILL")
	doc := decode[map[string]any](t, w)
	if bl, _ := doc["backlinks"].([]any); len(bl) != 1 || bl[0] != "commands/bugfix" {
		t.Errorf("backlinks = %v", doc["backlinks"])
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	_, _, router := testEnv(t, "")
	w := get(t, router, "/documents/commands/nope")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing document = %d, want 404", w.Code)
	}
}

func TestListDocuments(t *testing.T) {
	_, _, router := testEnv(t, "")

	w := get(t, router, "/documents")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if resp := decode[DocumentListResponse](t, w); resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}

	w = get(t, router, "/documents?category=command")
	resp := decode[DocumentListResponse](t, w)
	if resp.Total != 2 || resp.Documents[0].ID != "commands/bugfix" || resp.Documents[1].ID != "commands/deploy" {
		t.Errorf("commands = %+v", resp.Documents)
	}

	w = get(t, router, "/documents?category=templates")
	resp = decode[DocumentListResponse](t, w)
	if resp.Total != 0 || resp.Documents == nil {
		t.Errorf("templates = %+v, want empty non-nil list", resp)
	}

	w = get(t, router, "/documents?category=widgets")
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid category = %d, want 400", w.Code)
	}
}

func TestClosureEndpoint(t *testing.T) {
	_, _, router := testEnv(t, "")

	w := get(t, router, "/closure/commands/bugfix?depth=1")
	if w.Code != http.StatusOK {
		t.Fatalf("closure status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[ClosureResponse](t, w)
	if len(resp.Documents) != 2 || resp.Documents[0].ID != "commands/bugfix" || resp.Documents[1].ID != "skills/testing/SKILL" {
		t.Errorf("closure = %+v", resp.Documents)
	}

	w = get(t, router, "/closure/commands/bugfix?depth=0")
	if resp := decode[ClosureResponse](t, w); len(resp.Documents) != 1 {
		t.Errorf("depth 0 closure = %+v, want only the start", resp.Documents)
	}

	w = get(t, router, "/closure/commands/bugfix?depth=deep")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad depth = %d, want 400", w.Code)
	}

	w = get(t, router, "/closure/commands/nope")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing start = %d, want 404", w.Code)
	}
}

func TestBacklinksEndpoint(t *testing.T) {
	_, _, router := testEnv(t, "")
	w := get(t, router, "/backlinks/skills/testing/SKILL.md")
	if w.Code != http.StatusOK {
		t.Fatalf("backlinks status = %d", w.Code)
	}
	resp := decode[DocumentListResponse](t, w)
	if resp.Total != 1 || resp.Documents[0].ID != "commands/bugfix" {
		t.Errorf("backlinks = %+v", resp)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, _, router := testEnv(t, "")

	w := get(t, router, "/search?q=table+driven")
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	resp := decode[SearchResponse](t, w)
	if len(resp.Results) != 1 || resp.Results[0].ID != "skills/testing/SKILL" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, _, router := testEnv(t, "")
	w := get(t, router, "/search")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", w.Code)
	}
}

func TestSearchIndexSource(t *testing.T) {
	db := testutil.TestDB(t)
	svc, _, router := testEnv(t, "", WithMirror(db))
	snap, err := svc.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := index.Sync(db, snap.ID, snap.Graph, quietLogger); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	w := get(t, router, "/search?q=checklist&source=index")
	if w.Code != http.StatusOK {
		t.Fatalf("index search status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[SearchResponse](t, w)
	if len(resp.Results) != 1 || resp.Results[0].ID != "commands/deploy" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestBacklinksAndDiagnosticsIndexSource(t *testing.T) {
	db := testutil.TestDB(t)
	svc, _, router := testEnv(t, "", WithMirror(db))
	snap, err := svc.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := index.Sync(db, snap.ID, snap.Graph, quietLogger); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	w := get(t, router, "/backlinks/skills/testing/SKILL?source=index")
	if w.Code != http.StatusOK {
		t.Fatalf("index backlinks status = %d, body = %s", w.Code, w.Body.String())
	}
	links := decode[DocumentListResponse](t, w)
	if links.Total != 1 || links.Documents[0].ID != "commands/bugfix" || links.Documents[0].Title != "Bugfix" {
		t.Errorf("backlinks = %+v", links)
	}

	if w := get(t, router, "/backlinks/skills/missing?source=index"); w.Code != http.StatusNotFound {
		t.Errorf("index backlinks of missing doc = %d, want 404", w.Code)
	}

	w = get(t, router, "/diagnostics?source=index")
	if w.Code != http.StatusOK {
		t.Fatalf("index diagnostics status = %d", w.Code)
	}
	diags := decode[DiagnosticsResponse](t, w)
	if len(diags.Diagnostics) != 1 || diags.Diagnostics[0].From != "commands/deploy" {
		t.Errorf("diagnostics = %+v", diags.Diagnostics)
	}
}

func TestSearchIndexSource_Disabled(t *testing.T) {
	_, _, router := testEnv(t, "")
	for _, target := range []string{
		"/search?q=x&source=index",
		"/backlinks/skills/testing/SKILL?source=index",
		"/diagnostics?source=index",
	} {
		if w := get(t, router, target); w.Code != http.StatusBadRequest {
			t.Errorf("%s without mirror = %d, want 400", target, w.Code)
		}
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	_, _, router := testEnv(t, "")
	w := get(t, router, "/diagnostics")
	if w.Code != http.StatusOK {
		t.Fatalf("diagnostics status = %d", w.Code)
	}
	resp := decode[DiagnosticsResponse](t, w)
	if len(resp.Diagnostics) != 1 || resp.Diagnostics[0].Raw != "skills/does-not-exist/SKILL.md" {
		t.Errorf("diagnostics = %+v", resp.Diagnostics)
	}
	if resp.LoadErrors == nil || len(resp.LoadErrors) != 0 {
		t.Errorf("load errors = %+v, want empty list", resp.LoadErrors)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	_, root, router := testEnv(t, "")
	testutil.WriteFiles(t, root, map[string]string{"agents/new.md": "# New agent\n"})

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := get(t, router, "/documents/agents/new"); w.Code != http.StatusOK {
		t.Errorf("new document after refresh = %d, want 200", w.Code)
	}
}

func TestStatusAndReadiness(t *testing.T) {
	svc := registry.NewService(registry.WithLogger(quietLogger))
	router := NewRouter(svc)

	if w := get(t, router, "/documents"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unloaded list = %d, want 503", w.Code)
	}
	w := get(t, router, "/status")
	if st := decode[registry.Status](t, w); st.State != registry.StateUnloaded {
		t.Errorf("state = %q", st.State)
	}

	ready := Ready(svc)
	rw := httptest.NewRecorder()
	ready(rw, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Errorf("ready before load = %d, want 503", rw.Code)
	}

	if _, err := svc.Refresh(context.Background(), testutil.WriteTree(t, sampleTree)); err != nil {
		t.Fatal(err)
	}
	rw = httptest.NewRecorder()
	ready(rw, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rw.Code != http.StatusOK {
		t.Errorf("ready after load = %d, want 200", rw.Code)
	}
}

// failingRegistry overrides Refresh to return a fixed error.
type failingRegistry struct {
	Registry
	err error
}

func (f failingRegistry) Refresh(context.Context, string) (*registry.Report, error) {
	return nil, f.err
}

func TestRefreshErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("registry: refresh: %w", apperr.ErrRefreshInProgress), http.StatusConflict},
		{fmt.Errorf("registry: refresh: %w", apperr.ErrTimeout), http.StatusGatewayTimeout},
		{fmt.Errorf("registry: refresh: %w", apperr.ErrIO), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		router := NewRouter(failingRegistry{err: tc.err})
		req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, _, router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, _, router := testEnv(t, "secret")
	if w := get(t, router, "/documents"); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, _, router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, _, router := testEnv(t, "")
	if w := get(t, router, "/documents"); w.Code != http.StatusOK {
		t.Errorf("disabled auth = %d, want 200", w.Code)
	}
}

// stubEvents writes SSE headers and blocks until the request context is done.
var stubEvents = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, _, router := testEnv(t, "tok", WithEvents(stubEvents))
	if w := get(t, router, "/events"); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE without token = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, _, router := testEnv(t, "tok", WithEvents(stubEvents))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream") {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}
}
