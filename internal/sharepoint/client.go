// Package sharepoint implements the core workflow collaborators against the
// SharePoint REST API (odata=verbose).
package sharepoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/JonMunkholm/spbulk/internal/core"
)

const (
	odataVerbose = "application/json;odata=verbose"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 10 << 20

	// DefaultRegistryList is the list that records every list created here.
	DefaultRegistryList = "BulkUpload_Central_List"

	// RegistryField is the registry list field holding the list name.
	RegistryField = "List_Name"

	// DocumentSetContentType is the content type id of a document set.
	DocumentSetContentType = "0x0120D520"

	listTemplateCustom  = 100
	listTemplateLibrary = 101
)

// Options configures a Client.
type Options struct {
	SiteURL      string
	AccessToken  string
	Timeout      time.Duration
	RegistryList string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Client talks to one SharePoint site. It is safe for concurrent use.
type Client struct {
	site     string
	token    string
	registry string
	http     *http.Client
	log      *slog.Logger
}

var (
	_ core.DigestProvider     = (*Client)(nil)
	_ core.ListProvisioner    = (*Client)(nil)
	_ core.LibraryProvisioner = (*Client)(nil)
	_ core.ItemWriter         = (*Client)(nil)
	_ core.FieldLister        = (*Client)(nil)
	_ core.ListRegistry       = (*Client)(nil)
)

// New creates a Client for opts.SiteURL.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.SiteURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("sharepoint: invalid site url %q", opts.SiteURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	registry := opts.RegistryList
	if registry == "" {
		registry = DefaultRegistryList
	}

	return &Client{
		site:     strings.TrimRight(u.String(), "/"),
		token:    opts.AccessToken,
		registry: registry,
		http:     hc,
		log:      log.With("component", "sharepoint"),
	}, nil
}

// SiteURL returns the site the client is bound to.
func (c *Client) SiteURL() string { return c.site }

// APIError is a non-2xx response from SharePoint.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no error details"
	}
	return fmt.Sprintf("sharepoint: %s %s: %d %s: %s",
		e.Method, e.Path, e.StatusCode, strings.ToLower(http.StatusText(e.StatusCode)), msg)
}

// StatusCode returns the HTTP status of err if it is an *APIError, else 0.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	e := &APIError{Method: method, Path: path, StatusCode: status}
	if !gjson.ValidBytes(body) {
		e.Message = strings.TrimSpace(string(body))
		if len(e.Message) > 200 {
			e.Message = e.Message[:200]
		}
		return e
	}
	res := gjson.GetManyBytes(body,
		"error.code", "error.message.value",
		`odata\.error.code`, `odata\.error.message.value`,
	)
	e.Code = firstNonEmpty(res[0].String(), res[2].String())
	e.Message = firstNonEmpty(res[1].String(), res[3].String())
	return e
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// isExists reports whether err says the list or library is already there.
func isExists(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.StatusCode == http.StatusConflict || strings.Contains(strings.ToLower(ae.Message), "already exists")
}

// mergeHeaders turns a POST into an update of the addressed entity.
func mergeHeaders() http.Header {
	return http.Header{
		"X-Http-Method": {"MERGE"},
		"If-Match":      {"*"},
	}
}

// do sends one request. body may be nil, raw bytes (sent as-is), or any
// value encoded as JSON.
func (c *Client) do(ctx context.Context, method, path, digest string, body any, extra http.Header) ([]byte, error) {
	var (
		rdr         io.Reader
		contentType = odataVerbose
	)
	switch b := body.(type) {
	case nil:
	case []byte:
		rdr = bytes.NewReader(b)
		contentType = "application/octet-stream"
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("sharepoint: encode %s body: %w", path, err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.site+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("sharepoint: build request: %w", err)
	}
	req.Header.Set("Accept", odataVerbose)
	if method != http.MethodGet {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if digest != "" {
		req.Header.Set("X-RequestDigest", digest)
	}
	for k, v := range extra {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sharepoint: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.log.Debug("sharepoint request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	if err != nil {
		return nil, fmt.Errorf("sharepoint: read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(method, path, resp.StatusCode, data)
	}
	return data, nil
}

// odata quotes s for use inside '...' in a REST path.
func odata(s string) string {
	return url.PathEscape(strings.ReplaceAll(s, "'", "''"))
}

func listPath(title string) string {
	return fmt.Sprintf("/_api/web/lists/getbytitle('%s')", odata(title))
}

func metadata(typ string) map[string]string {
	return map[string]string{"type": typ}
}
