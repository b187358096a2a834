package api

import (
	"net/http"
	"strconv"

	"github.com/blockso/blockso/internal/models"
	"github.com/gorilla/mux"
)

// createPostRequest is the body of POST /api/posts.
type createPostRequest struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	ImageURL  string `json:"imageUrl"`
	IsShare   bool   `json:"isShare"`
	IsQuote   bool   `json:"isQuote"`
	RefPostID *int64 `json:"refPostId"`
}

// handleCreatePost creates an organic post, or a repost/quote when a
// reference post is given.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body", nil)
		return
	}

	if req.Text == "" && req.RefPostID == nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Post needs text or a reference post", nil)
		return
	}
	if (req.IsShare || req.IsQuote) && req.RefPostID == nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Repost requires a reference post", nil)
		return
	}

	profile, err := s.profiles.GetOrCreate(r.Context(), req.Author)
	if err != nil {
		respondWithError(w, err)
		return
	}

	if req.RefPostID != nil {
		ref, err := s.posts.GetByID(r.Context(), *req.RefPostID)
		if err != nil {
			respondWithError(w, err)
			return
		}
		if ref == nil {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Reference post not found", nil)
			return
		}
	}

	post := &models.Post{
		AuthorID:  profile.ID,
		Text:      req.Text,
		ImageURL:  req.ImageURL,
		IsShare:   req.IsShare,
		IsQuote:   req.IsQuote,
		RefPostID: req.RefPostID,
	}
	if err := s.posts.Create(r.Context(), post); err != nil {
		respondWithError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, post)
}

// handleGetPost returns a post by id.
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid post id", nil)
		return
	}

	post, err := s.posts.GetByID(r.Context(), id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if post == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Post not found", nil)
		return
	}

	resp := map[string]interface{}{"post": post}
	if post.RefTxID != nil {
		// Both transaction participants can derive a post from the same
		// transaction, surface how many posts reference it.
		count, err := s.posts.CountByRefTx(r.Context(), *post.RefTxID)
		if err != nil {
			respondWithError(w, err)
			return
		}
		resp["ref_post_count"] = count
	}
	respondJSON(w, http.StatusOK, resp)
}
