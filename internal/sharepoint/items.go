package sharepoint

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/JonMunkholm/spbulk/internal/core"
)

func itemBody(fields map[string]any) map[string]any {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["__metadata"] = metadata("SP.ListItem")
	return body
}

// AddItem creates one list item.
func (c *Client) AddItem(ctx context.Context, digest, list string, fields map[string]any) error {
	if _, err := c.do(ctx, http.MethodPost, listPath(list)+"/items", digest, itemBody(fields), nil); err != nil {
		return fmt.Errorf("add item to %q: %w", list, err)
	}
	return nil
}

// UpdateItem merges fields into the item with the given id.
func (c *Client) UpdateItem(ctx context.Context, digest, list, id string, fields map[string]any) error {
	path := fmt.Sprintf("%s/items(%s)", listPath(list), url.PathEscape(id))
	if _, err := c.do(ctx, http.MethodPost, path, digest, itemBody(fields), mergeHeaders()); err != nil {
		return fmt.Errorf("update item %s in %q: %w", id, list, err)
	}
	return nil
}

// Register adds list to the registry list.
func (c *Client) Register(ctx context.Context, digest, list string) error {
	return c.AddItem(ctx, digest, c.registry, map[string]any{RegistryField: list})
}

// Lists returns the distinct list names in the registry, in registry order.
func (c *Client) Lists(ctx context.Context) ([]string, error) {
	q := url.Values{
		"$select": {RegistryField},
		"$top":    {"5000"},
	}
	data, err := c.do(ctx, http.MethodGet, listPath(c.registry)+"/items?"+q.Encode(), "", nil, nil)
	if err != nil {
		if StatusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("registry %q: %w", c.registry, core.ErrListNotFound)
		}
		return nil, fmt.Errorf("read registry %q: %w", c.registry, err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, v := range gjson.GetBytes(data, "d.results.#."+RegistryField).Array() {
		name := v.String()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}
