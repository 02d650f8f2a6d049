package model

// Post is a demo content item served by the public /api/v1/posts endpoint.
// The endpoint returns canned data; there is no posts table.
type Post struct {
	UserID string `json:"userId,omitempty"`
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}
