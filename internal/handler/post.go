package handler

import (
	"net/http"

	"github.com/daryonoff/postboard/internal/auth"
	"github.com/daryonoff/postboard/internal/model"
)

// PostHandler serves the demo content feed. The data is canned — the
// endpoint exists so the frontend has something public to render before
// logging in.
type PostHandler struct{}

// NewPostHandler creates a PostHandler.
func NewPostHandler() *PostHandler {
	return &PostHandler{}
}

// HandleList returns the demo posts.
//
// HTTP: GET /api/v1/posts
// Auth: None, but when a valid bearer token is presented (OptionalBearer),
// the posts are stamped with the caller's user id.
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	posts := []model.Post{
		{ID: 1, Title: "Hello, Postboard", Body: "This feed is served without authentication."},
		{ID: 2, Title: "Sign in with VK ID", Body: "Link your VK account to get a personalised feed."},
	}

	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		for i := range posts {
			posts[i].UserID = userID
		}
	}

	writeJSON(w, http.StatusOK, map[string][]model.Post{"posts": posts})
}
