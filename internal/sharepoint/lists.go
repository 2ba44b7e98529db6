package sharepoint

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/JonMunkholm/spbulk/internal/core"
)

// CreateList creates a custom list, then each field in order, adding every
// field to the default view right after it is created.
func (c *Client) CreateList(ctx context.Context, digest, title string, columns []core.ColumnDef) error {
	if err := c.createList(ctx, digest, title, listTemplateCustom); err != nil {
		return err
	}

	for _, col := range columns {
		if _, err := c.do(ctx, http.MethodPost, listPath(title)+"/fields", digest, fieldBody(col), nil); err != nil {
			return fmt.Errorf("create field %q: %w", col.Title, err)
		}
		view := fmt.Sprintf("%s/defaultview/viewfields/addviewfield('%s')", listPath(title), odata(col.Title))
		if _, err := c.do(ctx, http.MethodPost, view, digest, nil, nil); err != nil {
			return fmt.Errorf("add field %q to default view: %w", col.Title, err)
		}
	}

	c.log.Info("list created", "list", title, "fields", len(columns))
	return nil
}

func (c *Client) createList(ctx context.Context, digest, title string, template int) error {
	body := map[string]any{
		"__metadata":   metadata("SP.List"),
		"Title":        title,
		"BaseTemplate": template,
	}
	if _, err := c.do(ctx, http.MethodPost, "/_api/web/lists", digest, body, nil); err != nil {
		if isExists(err) {
			return fmt.Errorf("create list %q: %w: %v", title, core.ErrListExists, err)
		}
		return fmt.Errorf("create list %q: %w", title, err)
	}
	return nil
}

func fieldBody(col core.ColumnDef) map[string]any {
	body := map[string]any{
		"__metadata":    metadata("SP.Field"),
		"Title":         col.Title,
		"FieldTypeKind": col.Type.FieldTypeKind(),
	}
	if col.Type == core.ColumnDateTime {
		body["__metadata"] = metadata("SP.FieldDateTime")
		body["DisplayFormat"] = 0
	}
	return body
}

// CreateLibrary creates a document library with content types enabled and
// the document set content type attached.
func (c *Client) CreateLibrary(ctx context.Context, digest, title string) error {
	if err := c.createList(ctx, digest, title, listTemplateLibrary); err != nil {
		return fmt.Errorf("document library: %w", err)
	}

	enable := map[string]any{
		"__metadata":          metadata("SP.List"),
		"ContentTypesEnabled": true,
	}
	if _, err := c.do(ctx, http.MethodPost, listPath(title), digest, enable, mergeHeaders()); err != nil {
		return fmt.Errorf("document library %q: enable content types: %w", title, err)
	}

	ct := map[string]string{"contentTypeId": DocumentSetContentType}
	if _, err := c.do(ctx, http.MethodPost, listPath(title)+"/contenttypes/addAvailableContentType", digest, ct, nil); err != nil {
		return fmt.Errorf("document library %q: add document set content type: %w", title, err)
	}

	c.log.Info("document library created", "library", title)
	return nil
}

// ListFields returns the titles of the list's visible, writable fields.
func (c *Client) ListFields(ctx context.Context, list string) ([]string, error) {
	q := url.Values{
		"$filter": {"Hidden eq false and ReadOnlyField eq false"},
		"$select": {"Title"},
	}
	data, err := c.do(ctx, http.MethodGet, listPath(list)+"/fields?"+q.Encode(), "", nil, nil)
	if err != nil {
		if StatusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("list %q: %w", list, core.ErrListNotFound)
		}
		return nil, fmt.Errorf("list fields of %q: %w", list, err)
	}

	var titles []string
	for _, v := range gjson.GetBytes(data, "d.results.#.Title").Array() {
		titles = append(titles, v.String())
	}
	return titles, nil
}
