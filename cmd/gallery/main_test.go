package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"gallery-feed/internal/config"
	"gallery-feed/internal/resilience/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGallery serves two pages and accepts new records, which appear first.
type fakeGallery struct {
	mu      sync.Mutex
	created []map[string]string
}

func (g *fakeGallery) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/images" && r.Method == http.MethodGet:
		g.mu.Lock()
		defer g.mu.Unlock()
		if r.URL.Query().Get("after") == "2" {
			_, _ = io.WriteString(w, `{"data":[{"id":"r3","title":"Third","url":"https://i.example.com/3.png","ts":3}],"after":null}`)
			return
		}
		data := `{"id":"r1","title":"First","url":"https://i.example.com/1.png","ts":1},{"id":"r2","title":"Second","url":"https://i.example.com/2.png","ts":2}`
		for _, c := range g.created {
			data = `{"id":"new","title":"` + c["title"] + `","url":"` + c["url"] + `","ts":4},` + data
		}
		_, _ = io.WriteString(w, `{"data":[`+data+`],"after":2}`)
	case r.URL.Path == "/api/images" && r.Method == http.MethodPost:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		g.mu.Lock()
		g.created = append(g.created, body)
		g.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	case r.URL.Path == "/upload":
		_, _ = io.WriteString(w, `{"data":{"url":"https://i.example.com/cat.png"}}`)
	default:
		http.NotFound(w, r)
	}
}

func setEnv(t *testing.T, srv *httptest.Server) {
	t.Helper()
	t.Setenv("GALLERY_API_BASE_URL", srv.URL)
	t.Setenv("GALLERY_API_TIMEOUT", "2s")
	t.Setenv("GALLERY_ASSET_UPLOAD_URL", srv.URL+"/upload")
	t.Setenv("GALLERY_ASSET_API_KEY", "")
	t.Setenv("GALLERY_RATE_LIMIT_RPS", "0")
	t.Setenv("GALLERY_RATE_LIMIT_BURST", "")
	t.Setenv("GALLERY_REFRESH_SCHEDULE", "")
	t.Setenv("GALLERY_METRICS_ADDR", "")
	t.Setenv("LOG_LEVEL", "error")
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), io.Discard)
	require.NoError(t, err)
	t.Cleanup(a.cache.Close)
	return a
}

func TestRun_NoCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage: gallery")
}

func TestRun_UnknownCommand(t *testing.T) {
	srv := httptest.NewServer(&fakeGallery{})
	defer srv.Close()
	setEnv(t, srv)

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{"dance"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "dance"`)
}

func TestRun_List(t *testing.T) {
	srv := httptest.NewServer(&fakeGallery{})
	defer srv.Close()
	setEnv(t, srv)

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"list", "-pages", "5", "-output", "json"}, &stdout, &stderr), stderr.String())

	var out ListOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	ids := make([]string, 0, len(out.Records))
	for _, r := range out.Records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids)
	assert.False(t, out.HasMore)
	assert.Nil(t, out.Cursor)
}

func TestRun_ListOnePage(t *testing.T) {
	srv := httptest.NewServer(&fakeGallery{})
	defer srv.Close()
	setEnv(t, srv)

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"list"}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "First")
	assert.NotContains(t, stdout.String(), "Third")
	assert.Contains(t, stdout.String(), "(more available after 2)")
}

func TestRun_UploadShowsNewRecordFirst(t *testing.T) {
	gallery := &fakeGallery{}
	srv := httptest.NewServer(gallery)
	defer srv.Close()
	setEnv(t, srv)

	path := t.TempDir() + "/cat.png"
	require.NoError(t, writeFile(path, "\x89PNG\r\n\x1a\nfake"))

	var stdout, stderr bytes.Buffer
	code := run([]string{"upload", "-file", path, "-title", "Cat", "-description", "Sleeping"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	lines := strings.Split(stdout.String(), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, lines[0], "Uploaded cat.png")
	assert.Contains(t, lines[1], "Image registered")
	assert.True(t, strings.HasPrefix(lines[2], "new"), lines[2])

	require.Len(t, gallery.created, 1)
	assert.Equal(t, "https://i.example.com/cat.png", gallery.created[0]["url"])
}

func TestRun_UploadValidationFailure(t *testing.T) {
	gallery := &fakeGallery{}
	srv := httptest.NewServer(gallery)
	defer srv.Close()
	setEnv(t, srv)

	path := t.TempDir() + "/cat.png"
	require.NoError(t, writeFile(path, "png"))

	var stdout, stderr bytes.Buffer
	code := run([]string{"upload", "-file", path, "-title", "C", "-description", "Sleeping"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "Invalid form")
	assert.Contains(t, stdout.String(), "title: title must be at least 2 characters")
	assert.Empty(t, gallery.created)
}

func TestRun_View(t *testing.T) {
	srv := httptest.NewServer(&fakeGallery{})
	defer srv.Close()
	setEnv(t, srv)

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"view", "r3"}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "Title:       Third")

	stdout.Reset()
	stderr.Reset()
	assert.Equal(t, 1, run([]string{"view", "missing"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `record "missing" not found`)
}

func TestHealthHandler(t *testing.T) {
	srv := httptest.NewServer(&fakeGallery{})
	defer srv.Close()
	setEnv(t, srv)

	a := newTestApp(t)

	cfg := circuitbreaker.DefaultConfig("health-test")
	cb := circuitbreaker.New(cfg)

	rec := httptest.NewRecorder()
	healthHandler(a.cache, []*circuitbreaker.CircuitBreaker{cb})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "idle", body.Feed.Status)
	require.Len(t, body.Circuits, 1)
	assert.Equal(t, "closed", body.Circuits[0].State)
}
