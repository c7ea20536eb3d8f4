package types

// Default and maximum page sizes for list endpoints.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// PageInfo contains pagination metadata for list responses.
type PageInfo struct {
	HasMore    bool `json:"has_more"`
	NextOffset int  `json:"next_offset,omitempty"`
}

// ListResponse is a generic paginated response wrapper.
type ListResponse[T any] struct {
	Data     []T      `json:"data"`
	PageInfo PageInfo `json:"pagination"`
}

// NewListResponse builds a ListResponse from a page fetched with limit+1 rows,
// trimming the probe row and setting HasMore.
func NewListResponse[T any](items []T, offset, limit int) ListResponse[T] {
	resp := ListResponse[T]{Data: items}
	if resp.Data == nil {
		resp.Data = []T{}
	}
	if len(items) > limit {
		resp.Data = items[:limit]
		resp.PageInfo = PageInfo{HasMore: true, NextOffset: offset + limit}
	}
	return resp
}
