package api

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/gatehouse/pkg/content"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
)

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, "posts.list", "") {
		return
	}

	var (
		posts []content.Post
		err   error
	)
	if author := r.URL.Query().Get("author"); author != "" {
		posts, err = s.posts.ListPostsByAuthor(r.Context(), author)
	} else {
		posts, err = s.posts.ListPosts(r.Context())
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if posts == nil {
		posts = []content.Post{}
	}
	httputil.WriteSuccess(w, posts)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, "posts.create", "") {
		return
	}

	var req CreatePostRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if !httputil.RequireNonEmpty(w, req.Title, "title") {
		return
	}

	post := &content.Post{
		Title:    req.Title,
		Content:  req.Content,
		AuthorID: middleware.GetAuthContext(r).UserID(),
	}
	if err := s.posts.CreatePost(r.Context(), post); err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteCreated(w, post)
}

// loadPostForAuthz fetches the post named in the path so its author can feed
// the ownership check. Unauthenticated callers are rejected before the
// lookup so they cannot probe which post ids exist.
func (s *Server) loadPostForAuthz(w http.ResponseWriter, r *http.Request) (*content.Post, bool) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return nil, false
	}
	if middleware.GetAuthContext(r).UserID() == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}

	post, err := s.posts.GetPost(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return nil, false
	}
	return post, true
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, ok := s.loadPostForAuthz(w, r)
	if !ok {
		return
	}
	if !s.authorize(w, r, "posts.get", post.AuthorID) {
		return
	}
	httputil.WriteSuccess(w, post)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	post, ok := s.loadPostForAuthz(w, r)
	if !ok {
		return
	}
	if !s.authorize(w, r, "posts.update", post.AuthorID) {
		return
	}

	var req UpdatePostRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Title == nil && req.Content == nil {
		httputil.WriteValidationError(w, "at least one of title or content is required")
		return
	}

	updated, err := s.posts.UpdatePost(r.Context(), post.ID, req.Title, req.Content)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	post, ok := s.loadPostForAuthz(w, r)
	if !ok {
		return
	}
	if !s.authorize(w, r, "posts.delete", post.AuthorID) {
		return
	}

	if err := s.posts.DeletePost(r.Context(), post.ID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
