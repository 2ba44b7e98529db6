package sharepoint

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/JonMunkholm/spbulk/internal/core"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// fakeSite records every request and answers from a route table keyed by
// "METHOD /decoded/path". Unknown routes get 200 with an empty object.
type fakeSite struct {
	mu       sync.Mutex
	requests []recorded
	routes   map[string]func(w http.ResponseWriter)
}

func newFakeSite(t *testing.T) (*fakeSite, *Client) {
	t.Helper()
	fs := &fakeSite{routes: make(map[string]func(http.ResponseWriter))}
	srv := httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(srv.Close)

	c, err := New(Options{SiteURL: srv.URL + "/sites/BulkUpload/", AccessToken: "tok"})
	require.NoError(t, err)
	return fs, c
}

func (fs *fakeSite) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	fs.mu.Lock()
	fs.requests = append(fs.requests, recorded{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	route := fs.routes[r.Method+" "+r.URL.Path]
	fs.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if route != nil {
		route(w)
		return
	}
	_, _ = w.Write([]byte(`{"d":{}}`))
}

func (fs *fakeSite) on(method, path string, status int, body string) {
	fs.routes[method+" "+path] = func(w http.ResponseWriter) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (fs *fakeSite) paths() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]string, len(fs.requests))
	for i, r := range fs.requests {
		out[i] = r.Method + " " + r.Path
	}
	return out
}

const site = "/sites/BulkUpload"

// ============================================================================
// Construction and errors
// ============================================================================

func TestNew_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative/only"} {
		_, err := New(Options{SiteURL: raw})
		assert.Error(t, err, "SiteURL %q", raw)
	}
}

func TestAPIError_ParsesODataBody(t *testing.T) {
	body := []byte(`{"error":{"code":"-2130575342, Microsoft.SharePoint.SPException","message":{"lang":"en-US","value":"A list with the specified title already exists."}}}`)
	err := newAPIError("POST", "/_api/web/lists", 500, body)

	assert.Equal(t, "-2130575342, Microsoft.SharePoint.SPException", err.Code)
	assert.Equal(t, "A list with the specified title already exists.", err.Message)
	assert.Contains(t, err.Error(), "500 internal server error")
	assert.True(t, isExists(err))
}

func TestAPIError_PlainBody(t *testing.T) {
	err := newAPIError("GET", "/x", 401, []byte("Unauthorized"))
	assert.Equal(t, "Unauthorized", err.Message)
	assert.Contains(t, err.Error(), "401 unauthorized")
	assert.Equal(t, 401, StatusCode(err))
	assert.Equal(t, 0, StatusCode(errors.New("other")))
}

// ============================================================================
// Digest
// ============================================================================

func TestDigest(t *testing.T) {
	fs, c := newFakeSite(t)
	fs.on("POST", site+"/_api/contextinfo", 200, `{"d":{"GetContextWebInformation":{"FormDigestValue":"0xABC,01 Jan 2025"}}}`)

	digest, err := c.Digest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xABC,01 Jan 2025", digest)

	req := fs.requests[0]
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
	assert.Equal(t, odataVerbose, req.Header.Get("Accept"))
}

func TestDigest_MissingValue(t *testing.T) {
	fs, c := newFakeSite(t)
	fs.on("POST", site+"/_api/contextinfo", 200, `{"d":{}}`)

	_, err := c.Digest(context.Background())
	assert.ErrorContains(t, err, "request digest")
}

// ============================================================================
// Lists
// ============================================================================

func TestCreateList_FieldsInOrder(t *testing.T) {
	fs, c := newFakeSite(t)

	cols := []core.ColumnDef{
		{Title: "Order ID", Type: core.ColumnText},
		{Title: "Amount", Type: core.ColumnCurrency},
		{Title: "Due", Type: core.ColumnDateTime},
	}
	require.NoError(t, c.CreateList(context.Background(), "dg", "Orders", cols))

	lp := site + "/_api/web/lists/getbytitle('Orders')"
	assert.Equal(t, []string{
		"POST " + site + "/_api/web/lists",
		"POST " + lp + "/fields",
		"POST " + lp + "/defaultview/viewfields/addviewfield('Order ID')",
		"POST " + lp + "/fields",
		"POST " + lp + "/defaultview/viewfields/addviewfield('Amount')",
		"POST " + lp + "/fields",
		"POST " + lp + "/defaultview/viewfields/addviewfield('Due')",
	}, fs.paths())

	create := fs.requests[0]
	assert.Equal(t, "dg", create.Header.Get("X-RequestDigest"))
	assert.Equal(t, "SP.List", gjson.GetBytes(create.Body, "__metadata.type").String())
	assert.Equal(t, int64(100), gjson.GetBytes(create.Body, "BaseTemplate").Int())

	amount := fs.requests[3].Body
	assert.Equal(t, int64(10), gjson.GetBytes(amount, "FieldTypeKind").Int())

	due := fs.requests[5].Body
	assert.Equal(t, "SP.FieldDateTime", gjson.GetBytes(due, "__metadata.type").String())
	assert.Equal(t, int64(4), gjson.GetBytes(due, "FieldTypeKind").Int())
	assert.True(t, gjson.GetBytes(due, "DisplayFormat").Exists())
}

func TestCreateList_AlreadyExists(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"conflict status", http.StatusConflict, `{}`},
		{"error message", http.StatusInternalServerError, `{"error":{"message":{"value":"A list, survey, discussion board, or document library with the specified title already exists in this Web site."}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, c := newFakeSite(t)
			fs.on("POST", site+"/_api/web/lists", tt.status, tt.body)

			err := c.CreateList(context.Background(), "dg", "Orders", []core.ColumnDef{{Title: "A"}})
			assert.ErrorIs(t, err, core.ErrListExists)
			assert.Len(t, fs.requests, 1, "no field calls after a failed create")
		})
	}
}

func TestCreateList_OtherFailure(t *testing.T) {
	fs, c := newFakeSite(t)
	fs.on("POST", site+"/_api/web/lists", http.StatusForbidden, `{"error":{"message":{"value":"Access denied."}}}`)

	err := c.CreateList(context.Background(), "dg", "Orders", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrListExists)
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
	assert.Equal(t, "SP006", core.MapError(err).Code)
}

func TestListPath_EscapesQuotes(t *testing.T) {
	fs, c := newFakeSite(t)
	require.NoError(t, c.AddItem(context.Background(), "dg", "Bob's List", map[string]any{"A": 1}))
	assert.Equal(t, "POST "+site+"/_api/web/lists/getbytitle('Bob''s List')/items", fs.paths()[0])
}

func TestListFields(t *testing.T) {
	fs, c := newFakeSite(t)
	fs.on("GET", site+"/_api/web/lists/getbytitle('Orders')/fields", 200,
		`{"d":{"results":[{"Title":"Title"},{"Title":"Name"},{"Title":"Amount"}]}}`)

	fields, err := c.ListFields(context.Background(), "Orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"Title", "Name", "Amount"}, fields)
	assert.Contains(t, fs.requests[0].Query, "ReadOnlyField")
}

func TestListFields_NotFound(t *testing.T) {
	fs, c := newFakeSite(t)
	fs.on("GET", site+"/_api/web/lists/getbytitle('Nope')/fields", 404, `{}`)

	_, err := c.ListFields(context.Background(), "Nope")
	assert.ErrorIs(t, err, core.ErrListNotFound)
}

// ============================================================================
// Libraries and document sets
// ============================================================================

func TestCreateLibrary(t *testing.T) {
	fs, c := newFakeSite(t)
	require.NoError(t, c.CreateLibrary(context.Background(), "dg", "Orders_Documents"))

	lp := site + "/_api/web/lists/getbytitle('Orders_Documents')"
	assert.Equal(t, []string{
		"POST " + site + "/_api/web/lists",
		"POST " + lp,
		"POST " + lp + "/contenttypes/addAvailableContentType",
	}, fs.paths())

	assert.Equal(t, int64(101), gjson.GetBytes(fs.requests[0].Body, "BaseTemplate").Int())
	assert.Equal(t, "MERGE", fs.requests[1].Header.Get("X-HTTP-Method"))
	assert.True(t, gjson.GetBytes(fs.requests[1].Body, "ContentTypesEnabled").Bool())
	assert.Equal(t, DocumentSetContentType, gjson.GetBytes(fs.requests[2].Body, "contentTypeId").String())
}

func TestCreateDocumentSet(t *testing.T) {
	fs, c := newFakeSite(t)
	lp := site + "/_api/web/lists/getbytitle('Lib')"
	folder := lp + "/rootfolder/folders/getbyurl('42')"
	fs.on("GET", folder+"/listitemallfields", 200, `{"d":{"Id":7}}`)

	file := core.Attachment{Name: "invoice.pdf", Content: []byte("%PDF-1.4")}
	require.NoError(t, c.CreateDocumentSet(context.Background(), "dg", "Lib", "42", file))

	assert.Equal(t, []string{
		"POST " + lp + "/rootfolder/folders/add(url='42')",
		"GET " + folder + "/listitemallfields",
		"POST " + lp + "/items(7)",
		"POST " + folder + "/files/add(url='invoice.pdf',overwrite=true)",
	}, fs.paths())

	setType := fs.requests[2]
	assert.Equal(t, "*", setType.Header.Get("If-Match"))
	assert.Equal(t, DocumentSetContentType, gjson.GetBytes(setType.Body, "ContentTypeId").String())

	upload := fs.requests[3]
	assert.Equal(t, []byte("%PDF-1.4"), upload.Body)
	assert.Equal(t, "application/octet-stream", upload.Header.Get("Content-Type"))
}

func TestCreateDocumentSet_NoFolderID(t *testing.T) {
	_, c := newFakeSite(t)
	err := c.CreateDocumentSet(context.Background(), "dg", "Lib", "1", core.Attachment{Name: "a.txt"})
	assert.ErrorContains(t, err, "no Id")
}

// ============================================================================
// Items and registry
// ============================================================================

func TestAddItem(t *testing.T) {
	fs, c := newFakeSite(t)
	require.NoError(t, c.AddItem(context.Background(), "dg", "Orders", map[string]any{
		"Order_x0020_ID": "7",
		"Amount":         12.5,
		"Notes":          nil,
	}))

	body := fs.requests[0].Body
	assert.Equal(t, "SP.ListItem", gjson.GetBytes(body, "__metadata.type").String())
	assert.Equal(t, "7", gjson.GetBytes(body, "Order_x0020_ID").String())
	assert.Equal(t, 12.5, gjson.GetBytes(body, "Amount").Float())
	assert.Equal(t, gjson.Null, gjson.GetBytes(body, "Notes").Type)
}

func TestAddItem_Failure(t *testing.T) {
	fs, c := newFakeSite(t)
	fs.on("POST", site+"/_api/web/lists/getbytitle('Orders')/items", 400,
		`{"error":{"message":{"value":"Column 'Bogus' does not exist."}}}`)

	err := c.AddItem(context.Background(), "dg", "Orders", map[string]any{"Bogus": 1})
	assert.ErrorContains(t, err, "Column 'Bogus' does not exist.")
}

func TestUpdateItem(t *testing.T) {
	fs, c := newFakeSite(t)
	require.NoError(t, c.UpdateItem(context.Background(), "dg", "Orders", "15", map[string]any{"Name": "x"}))

	req := fs.requests[0]
	assert.Equal(t, site+"/_api/web/lists/getbytitle('Orders')/items(15)", req.Path)
	assert.Equal(t, "MERGE", req.Header.Get("X-HTTP-Method"))
	assert.Equal(t, "*", req.Header.Get("If-Match"))
}

func TestRegistry(t *testing.T) {
	fs, c := newFakeSite(t)
	reg := site + "/_api/web/lists/getbytitle('BulkUpload_Central_List')/items"
	fs.on("GET", reg, 200, `{"d":{"results":[{"List_Name":"Orders"},{"List_Name":"Invoices"},{"List_Name":"Orders"},{"List_Name":""}]}}`)

	require.NoError(t, c.Register(context.Background(), "dg", "Orders"))
	assert.Equal(t, "Orders", gjson.GetBytes(fs.requests[0].Body, RegistryField).String())

	names, err := c.Lists(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Orders", "Invoices"}, names)
}
