package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/blockso/blockso/internal/importer"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw request body.
const signatureHeader = "X-Alchemy-Signature"

// handleAlchemyWebhook receives Notify address-activity deliveries. The
// signature is verified over the raw body before anything is parsed; an
// invalid signature rejects the delivery without side effects.
func (s *Server) handleAlchemyWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Failed to read request body", nil)
		return
	}

	if !s.verifySignature(body, r.Header.Get(signatureHeader)) {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid webhook signature", nil)
		return
	}

	var payload importer.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid webhook payload", nil)
		return
	}

	failed := s.activity.ProcessBatch(r.Context(), payload.Event.Activity)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"received": len(payload.Event.Activity),
		"failed":   failed,
	})
}

// verifySignature checks the HMAC-SHA256 signature of a webhook body.
func (s *Server) verifySignature(body []byte, signature string) bool {
	if s.signingKey == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.signingKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
