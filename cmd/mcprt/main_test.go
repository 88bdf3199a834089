package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rheron1848/mcprt/pkg/config"
	"github.com/Rheron1848/mcprt/pkg/logging"
)

func TestParseParams(t *testing.T) {
	raw, err := parseParams(`{"a":1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))

	_, err = parseParams(`{a:1}`)
	assert.Error(t, err)
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	require.NoError(t, printJSON(cmd, json.RawMessage(`{"sum":3}`)))
	assert.Equal(t, "{\n  \"sum\": 3\n}\n", buf.String())
}

func TestHTTPRuntime(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Transport = "http"
	cfg.Metrics.Enabled = true
	cfg.Server.AuthTokens = []string{"s3cret"}

	rt, err := buildRuntime(cfg, logging.NewNop())
	require.NoError(t, err)
	router, handler := rt.httpRouter(cfg, logging.NewNop())
	ts := httptest.NewServer(router)
	defer ts.Close()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = handler.Close(ctx)
		_ = rt.tracing.Shutdown(ctx)
	}()

	cfg.Client.URL = ts.URL + cfg.Server.Path
	resp, err := http.Post(cfg.Client.URL, "application/json", bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cfg.Client.Token = "s3cret"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := connect(ctx, cfg, logging.NewNop())
	require.NoError(t, err)

	result, err := c.Call(ctx, "add", map[string]int{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sum":5}`, string(result))
	require.NoError(t, c.Close())

	resp, err = http.Get(ts.URL + cfg.Metrics.Path)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "mcp_sessions_opened_total")
	assert.Contains(t, string(body), `mcp_handled_requests_total{method="add"`)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}
