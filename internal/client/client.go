// Package client is the HTTP side of the scanner and the query/admin
// CLIs: it frames envelopes, attaches the bearer token, and decodes
// server responses.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	corpuserrors "github.com/corpusd/corpusd/internal/errors"
	"github.com/corpusd/corpusd/internal/inbox"
	"github.com/corpusd/corpusd/internal/indexdb"
	"github.com/corpusd/corpusd/internal/protocol"
	"github.com/corpusd/corpusd/internal/search"
	"github.com/corpusd/corpusd/internal/serverapi"
)

// Client talks to one corpusd server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) do(method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return corpuserrors.New(corpuserrors.KindNetwork, method+" "+path, "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return corpuserrors.New(corpuserrors.KindNetwork, method+" "+path, "",
			fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(msg))))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FileList fetches the server's (path, mtime) pairs for delta
// computation; the server filters to non-composite paths.
func (c *Client) FileList(source string) ([]indexdb.PathMTime, error) {
	var out []indexdb.PathMTime
	if err := c.do(http.MethodGet, "/v1/sources/"+url.PathEscape(source)+"/files", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Submit gzip-frames one batch and posts it to the source's inbox.
func (c *Client) Submit(req *protocol.BulkRequest) error {
	var buf bytes.Buffer
	if err := protocol.Encode(&buf, req); err != nil {
		return err
	}
	return c.do(http.MethodPost, "/v1/sources/"+url.PathEscape(req.Source)+"/submit", &buf, nil)
}

// Search runs one query.
func (c *Client) Search(p search.Params) (*search.Response, error) {
	q := url.Values{}
	q.Set("q", p.Query)
	q.Set("mode", string(p.Mode))
	for _, s := range p.Sources {
		q.Add("source", s)
	}
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(p.Offset))
	if p.Context > 0 {
		q.Set("context", strconv.Itoa(p.Context))
	}
	if p.Split {
		q.Set("split", "1")
	}
	var out search.Response
	if err := c.do(http.MethodGet, "/v1/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches server status: worker state and queue depths.
func (c *Client) Status() (*serverapi.StatusResponse, error) {
	var out serverapi.StatusResponse
	if err := c.do(http.MethodGet, "/v1/admin/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sources fetches per-source stats.
func (c *Client) Sources() ([]serverapi.SourceStats, error) {
	var out []serverapi.SourceStats
	if err := c.do(http.MethodGet, "/v1/admin/sources", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InboxList fetches the pending and failed queues.
func (c *Client) InboxList() (*serverapi.InboxResponse, error) {
	var out serverapi.InboxResponse
	if err := c.do(http.MethodGet, "/v1/admin/inbox", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InboxClear removes queued envelopes.
func (c *Client) InboxClear(pending, failed bool) (int, error) {
	q := url.Values{}
	q.Set("pending", boolParam(pending))
	q.Set("failed", boolParam(failed))
	var out struct {
		Removed int `json:"removed"`
	}
	if err := c.do(http.MethodPost, "/v1/admin/inbox/clear?"+q.Encode(), nil, &out); err != nil {
		return 0, err
	}
	return out.Removed, nil
}

// InboxRetry moves failed envelopes back to pending.
func (c *Client) InboxRetry() (int, error) {
	var out struct {
		Moved int `json:"moved"`
	}
	if err := c.do(http.MethodPost, "/v1/admin/inbox/retry", nil, &out); err != nil {
		return 0, err
	}
	return out.Moved, nil
}

// InboxShow summarises one queued envelope.
func (c *Client) InboxShow(name string) (*inbox.Summary, error) {
	var out inbox.Summary
	if err := c.do(http.MethodGet, "/v1/admin/inbox/show/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
