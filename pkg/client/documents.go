package client

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

type Document struct {
	Name       string    `json:"name"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	Updated    time.Time `json:"updated"`
	NotebookID string    `json:"notebook_id,omitempty"`
}

type SignedURL struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ListDocuments lists stored PDFs under prefix. An empty prefix lists all.
func (c *Client) ListDocuments(ctx context.Context, prefix string) ([]Document, error) {
	path := "/api/v1/documents"
	if prefix != "" {
		path += "?" + url.Values{"prefix": {prefix}}.Encode()
	}
	var out struct {
		Documents []Document `json:"documents"`
		Total     int        `json:"total"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *Client) DocumentURL(ctx context.Context, name string) (*SignedURL, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: document name is required", ErrInvalidConfig)
	}
	var out SignedURL
	if err := c.get(ctx, "/api/v1/documents/url?"+url.Values{"name": {name}}.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
