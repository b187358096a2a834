package api

import (
	"net/http"
	"strconv"

	"github.com/blockso/blockso/internal/chain"
	"github.com/gorilla/mux"
)

// handleGetProfile returns the profile stored for an address.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	address, ok := s.normalizedAddress(w, r)
	if !ok {
		return
	}

	profile, err := s.profiles.GetByAddress(r.Context(), address)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if profile == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Profile not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

// handleLogin records a login for an address, triggers a history fetch if
// one is still needed, and refreshes the provider watchlist.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	address, ok := s.normalizedAddress(w, r)
	if !ok {
		return
	}

	// Gate the fetch before recording the login. Recording first would
	// mark the address watched and suppress its own bootstrap import.
	enqueued, err := s.gate.EnqueueIfNeeded(r.Context(), address, s.config.HistoryLimit)
	if err != nil {
		respondWithError(w, err)
		return
	}

	profile, err := s.profiles.RecordLogin(r.Context(), address)
	if err != nil {
		respondWithError(w, err)
		return
	}

	// A fresh login changes the watchlist, push it to the provider. Sync
	// failures are reported but do not fail the login.
	synced := true
	if s.webhookSync != nil {
		addresses, err := s.profiles.WatchedAddresses(r.Context())
		if err == nil {
			err = s.webhookSync.UpdateWebhookAddresses(r.Context(), addresses)
		}
		if err != nil {
			synced = false
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"profile":          profile,
		"fetch_enqueued":   enqueued,
		"watchlist_synced": synced,
	})
}

// handleListPosts returns an address' posts, newest first.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	address, ok := s.normalizedAddress(w, r)
	if !ok {
		return
	}

	profile, err := s.profiles.GetByAddress(r.Context(), address)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if profile == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Profile not found", nil)
		return
	}

	limit, offset := paging(r)
	posts, err := s.posts.ListByAuthor(r.Context(), profile.ID, limit, offset)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"posts": posts,
		"count": len(posts),
	})
}

// handleGetFeed returns the posts of the profiles an address follows.
func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	address, ok := s.normalizedAddress(w, r)
	if !ok {
		return
	}

	profile, err := s.profiles.GetByAddress(r.Context(), address)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if profile == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Profile not found", nil)
		return
	}

	limit, offset := paging(r)
	posts, err := s.posts.ListFeed(r.Context(), profile.ID, limit, offset)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"posts": posts,
		"count": len(posts),
	})
}

// handleListNotifications returns an address' notifications, newest first.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	address, ok := s.normalizedAddress(w, r)
	if !ok {
		return
	}

	profile, err := s.profiles.GetByAddress(r.Context(), address)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if profile == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Profile not found", nil)
		return
	}

	limit, offset := paging(r)
	notifications, err := s.notifications.ListByProfile(r.Context(), profile.ID, limit, offset)
	if err != nil {
		respondWithError(w, err)
		return
	}

	unviewed, err := s.notifications.UnviewedCount(r.Context(), profile.ID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notifications":  notifications,
		"count":          len(notifications),
		"unviewed_count": unviewed,
	})
}

// handleMarkNotificationViewed marks one of an address' notifications as read.
func (s *Server) handleMarkNotificationViewed(w http.ResponseWriter, r *http.Request) {
	address, ok := s.normalizedAddress(w, r)
	if !ok {
		return
	}

	profile, err := s.profiles.GetByAddress(r.Context(), address)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if profile == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Profile not found", nil)
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.notifications.MarkViewed(r.Context(), id, profile.ID); err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Notification not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "viewed"})
}

// handleTriggerHistory enqueues a history import for an address when the
// fetch gate allows it.
func (s *Server) handleTriggerHistory(w http.ResponseWriter, r *http.Request) {
	address, ok := s.normalizedAddress(w, r)
	if !ok {
		return
	}

	enqueued, err := s.gate.EnqueueIfNeeded(r.Context(), address, s.config.HistoryLimit)
	if err != nil {
		respondWithError(w, err)
		return
	}

	status := http.StatusAccepted
	if !enqueued {
		status = http.StatusOK
	}
	respondJSON(w, status, map[string]interface{}{
		"address":  address,
		"enqueued": enqueued,
	})
}

// handleHistoryStatus reports the state of the history import for an
// address.
func (s *Server) handleHistoryStatus(w http.ResponseWriter, r *http.Request) {
	address, ok := s.normalizedAddress(w, r)
	if !ok {
		return
	}

	status, err := s.gate.Status(r.Context(), address)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if status == "" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No history import for address", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"status":  status,
	})
}

// normalizedAddress extracts and normalizes the address path variable,
// writing the error response itself on invalid input.
func (s *Server) normalizedAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	address, err := chain.Normalize(mux.Vars(r)["address"])
	if err != nil {
		respondWithError(w, err)
		return "", false
	}
	return address, true
}

// paging extracts limit/offset query parameters with defaults.
func paging(r *http.Request) (int, int) {
	limit := 20
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
