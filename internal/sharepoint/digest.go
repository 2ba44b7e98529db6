package sharepoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Digest requests a fresh form digest from /_api/contextinfo.
func (c *Client) Digest(ctx context.Context) (string, error) {
	data, err := c.do(ctx, http.MethodPost, "/_api/contextinfo", "", nil, nil)
	if err != nil {
		return "", fmt.Errorf("request digest: %w", err)
	}

	v := gjson.GetBytes(data, "d.GetContextWebInformation.FormDigestValue")
	if !v.Exists() {
		v = gjson.GetBytes(data, "FormDigestValue")
	}
	if v.String() == "" {
		return "", errors.New("request digest: response has no FormDigestValue")
	}
	return v.String(), nil
}
