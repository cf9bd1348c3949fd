package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrunoV21/CodeTide/internal/config"
	"github.com/BrunoV21/CodeTide/internal/orchestrator"
)

func testServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := writeProject(t, sampleProject)
	cfg, err := config.Default(dir)
	require.NoError(t, err)
	cfg.Cache.Enabled = false
	engine, err := orchestrator.NewEngine(cfg)
	require.NoError(t, err)
	_, err = engine.Load(context.Background())
	require.NoError(t, err)

	ts := httptest.NewServer(newServer(engine).router)
	t.Cleanup(ts.Close)
	return ts, dir
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealth(t *testing.T) {
	ts, _ := testServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "ok", decode(t, resp)["status"])
}

func TestContextEndpoint(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Post(ts.URL+"/context", "application/json", strings.NewReader(`{"identifiers":["entry"],"degree":1}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, []any{"c.entry", "b.main"}, body["ids"])
	assert.Contains(t, body["context"], "def main():")

	resp, err = http.Post(ts.URL+"/context", "application/json", strings.NewReader(`{"identifiers":["foo"]}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody := decode(t, resp)["error"].(map[string]any)
	assert.Equal(t, []any{"a.foo", "b.foo"}, errBody["candidates"])

	resp, err = http.Post(ts.URL+"/context", "application/json", strings.NewReader(`{"identifiers":["entyr"]}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errBody = decode(t, resp)["error"].(map[string]any)
	assert.Contains(t, errBody["suggestions"], "c.entry")

	resp, err = http.Post(ts.URL+"/context", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSuggestAndTree(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/suggest?q=c.ent&fuzzy=false")
	require.NoError(t, err)
	assert.Equal(t, []any{"c.entry"}, decode(t, resp)["suggestions"])

	resp, err = http.Get(ts.URL + "/suggest")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/tree")
	require.NoError(t, err)
	defer resp.Body.Close()
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "b.py")

	resp, err = http.Post(ts.URL+"/tree", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestUpdateAndStats(t *testing.T) {
	ts, dir := testServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.py"), []byte("X = 1\n"), 0o644))

	resp, err := http.Post(ts.URL+"/update", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, []any{"d.py"}, body["added"])
	assert.Contains(t, body["changed_ids"], "d.X")

	resp, err = http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	stats := decode(t, resp)["stats"].(map[string]any)
	assert.Equal(t, float64(4), stats["files"])
}
