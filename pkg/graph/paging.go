package graph

import (
	"context"
	"net/url"
)

// Page is a single OData collection page.
type Page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// HasNext reports whether another page follows.
func (p Page[T]) HasNext() bool {
	return p.NextLink != ""
}

// GetPage fetches one collection page.
func GetPage[T any](ctx context.Context, c *Client, path string, query url.Values) (Page[T], error) {
	var page Page[T]
	if err := c.GetJSON(ctx, path, query, &page); err != nil {
		return Page[T]{}, err
	}
	return page, nil
}

// ListAll fetches a collection and follows @odata.nextLink until exhausted.
func ListAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	page, err := GetPage[T](ctx, c, path, query)
	if err != nil {
		return nil, err
	}

	out := append([]T(nil), page.Value...)
	for page.HasNext() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err = GetPage[T](ctx, c, page.NextLink, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Value...)
	}
	return out, nil
}
