package sharepoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/JonMunkholm/spbulk/internal/core"
)

// CreateDocumentSet creates a folder called name in the library root, turns
// it into a document set and uploads file into it, overwriting any file of
// the same name.
func (c *Client) CreateDocumentSet(ctx context.Context, digest, library, name string, file core.Attachment) error {
	root := listPath(library) + "/rootfolder"
	folder := fmt.Sprintf("%s/folders/getbyurl('%s')", root, odata(name))

	add := fmt.Sprintf("%s/folders/add(url='%s')", root, odata(name))
	if _, err := c.do(ctx, http.MethodPost, add, digest, nil, nil); err != nil {
		return fmt.Errorf("document set %q: create folder: %w", name, err)
	}

	data, err := c.do(ctx, http.MethodGet, folder+"/listitemallfields?$select=Id", "", nil, nil)
	if err != nil {
		return fmt.Errorf("document set %q: read folder item: %w", name, err)
	}
	id := gjson.GetBytes(data, "d.Id")
	if !id.Exists() {
		return fmt.Errorf("document set %q: %w", name, errors.New("folder item has no Id"))
	}

	ct := map[string]any{
		"__metadata":    metadata("SP.ListItem"),
		"ContentTypeId": DocumentSetContentType,
	}
	itemPath := fmt.Sprintf("%s/items(%d)", listPath(library), id.Int())
	if _, err := c.do(ctx, http.MethodPost, itemPath, digest, ct, mergeHeaders()); err != nil {
		return fmt.Errorf("document set %q: set content type: %w", name, err)
	}

	upload := fmt.Sprintf("%s/files/add(url='%s',overwrite=true)", folder, odata(file.Name))
	if _, err := c.do(ctx, http.MethodPost, upload, digest, file.Content, nil); err != nil {
		return fmt.Errorf("document set %q: upload %q: %w", name, file.Name, err)
	}

	c.log.Debug("document set created", "library", library, "name", name, "file", file.Name)
	return nil
}
