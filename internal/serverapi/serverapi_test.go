package serverapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/inbox"
	"github.com/corpusd/corpusd/internal/indexdb"
	"github.com/corpusd/corpusd/internal/protocol"
	"github.com/corpusd/corpusd/internal/search"
	"github.com/corpusd/corpusd/internal/store"
)

func newTestServer(t *testing.T, token string) (*httptest.Server, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.DataDir = t.TempDir()
	cfg.Server.BearerToken = token
	srv := httptest.NewServer(New(cfg, nil, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, cfg.Server.DataDir
}

func authedReq(t *testing.T, method, url string, body *bytes.Buffer, token string) *http.Response {
	t.Helper()
	var r *http.Request
	var err error
	if body != nil {
		r, err = http.NewRequest(method, url, body)
	} else {
		r, err = http.NewRequest(method, url, nil)
	}
	require.NoError(t, err)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	return resp
}

func TestAuthRejectsMissingOrWrongToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	resp, err := http.Get(srv.URL + "/v1/admin/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = authedReq(t, http.MethodGet, srv.URL+"/v1/admin/status", nil, "wrong")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = authedReq(t, http.MethodGet, srv.URL+"/v1/admin/status", nil, "secret")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitValidation(t *testing.T) {
	srv, dataDir := newTestServer(t, "")

	// Disallowed source name.
	resp := authedReq(t, http.MethodPost, srv.URL+"/v1/sources/bad.name/submit", bytes.NewBuffer([]byte("x")), "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Non-gzip body.
	resp = authedReq(t, http.MethodPost, srv.URL+"/v1/sources/docs/submit", bytes.NewBufferString("plain"), "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// A valid envelope lands in the inbox with a 202.
	var buf bytes.Buffer
	require.NoError(t, protocol.Encode(&buf, &protocol.BulkRequest{Source: "docs"}))
	resp = authedReq(t, http.MethodPost, srv.URL+"/v1/sources/docs/submit", &buf, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	pending, err := inbox.ListPending(dataDir)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestFileListEmptyForUnknownSource(t *testing.T) {
	srv, _ := newTestServer(t, "")
	resp := authedReq(t, http.MethodGet, srv.URL+"/v1/sources/docs/files", nil, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []indexdb.PathMTime
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Empty(t, list)
}

func seedSource(t *testing.T, dataDir string) {
	t.Helper()
	db, err := indexdb.Open(dataDir, "docs")
	require.NoError(t, err)
	defer db.Close()
	st, err := store.New(dataDir, "docs", 0)
	require.NoError(t, err)
	require.NoError(t, inbox.ProcessFile(db, st, protocol.IndexFile{
		Path: "a.md", MTime: 10, Size: 12, Kind: "text",
		Lines: []protocol.LineEntry{{Number: 1, Content: "hello"}, {Number: 2, Content: "world"}},
	}, time.Now()))
}

func TestSearchEndpoint(t *testing.T) {
	srv, dataDir := newTestServer(t, "")
	seedSource(t, dataDir)

	resp := authedReq(t, http.MethodGet, srv.URL+"/v1/search?q=world&mode=exact", nil, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out search.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "a.md", out.Results[0].Path)
	assert.Equal(t, 2, out.Results[0].LineNumber)
	assert.Equal(t, 1, out.Total)
}

func TestInboxAdminFlow(t *testing.T) {
	srv, dataDir := newTestServer(t, "")
	require.NoError(t, os.MkdirAll(inbox.FailedDir(dataDir), 0o755))

	var buf bytes.Buffer
	require.NoError(t, protocol.Encode(&buf, &protocol.BulkRequest{Source: "docs"}))
	resp := authedReq(t, http.MethodPost, srv.URL+"/v1/sources/docs/submit", &buf, "")
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = authedReq(t, http.MethodGet, srv.URL+"/v1/admin/inbox", nil, "")
	var ib InboxResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ib))
	resp.Body.Close()
	require.Len(t, ib.Pending, 1)
	name := ib.Pending[0].Name

	resp = authedReq(t, http.MethodGet, srv.URL+"/v1/admin/inbox/show/"+name, nil, "")
	var summary inbox.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	resp.Body.Close()
	assert.Equal(t, "docs", summary.Source)

	resp = authedReq(t, http.MethodPost, srv.URL+"/v1/admin/inbox/clear?pending=1", nil, "")
	var cleared map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cleared))
	resp.Body.Close()
	assert.Equal(t, 1, cleared["removed"])

	resp = authedReq(t, http.MethodPost, srv.URL+"/v1/admin/inbox/retry", nil, "")
	var retried map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&retried))
	resp.Body.Close()
	assert.Equal(t, 0, retried["moved"])
}

func TestStatusReportsQueueDepth(t *testing.T) {
	srv, _ := newTestServer(t, "")
	resp := authedReq(t, http.MethodGet, srv.URL+"/v1/admin/status", nil, "")
	defer resp.Body.Close()
	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, 0, status.Pending)
	assert.Equal(t, 0, status.Failed)
}
