package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func signBody(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody() []byte {
	return []byte(`{
		"webhookId": "wh_test",
		"id": "whevt_1",
		"event": {
			"network": "ETH_MAINNET",
			"activity": [
				{
					"category": "external",
					"fromAddress": "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
					"toAddress": "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359",
					"blockNum": "0x10d4f",
					"hash": "0xaaa",
					"value": 1.0
				}
			]
		}
	}`)
}

// TestWebhook_ValidSignature tests that a correctly signed delivery is processed
func TestWebhook_ValidSignature(t *testing.T) {
	server := createTestServer()
	processor := server.activity.(*mockActivityProcessor)

	body := webhookBody()
	req := httptest.NewRequest("POST", "/webhooks/alchemy", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, signBody("test-signing-key", body))

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response struct {
		Received int `json:"received"`
		Failed   int `json:"failed"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Received != 1 || response.Failed != 0 {
		t.Errorf("response = %+v, want 1 received, 0 failed", response)
	}

	if len(processor.batches) != 1 {
		t.Fatalf("processed %d batches, want 1", len(processor.batches))
	}
	if len(processor.batches[0]) != 1 || processor.batches[0][0].Hash != "0xaaa" {
		t.Errorf("batch = %+v, want the delivered activity item", processor.batches[0])
	}
}

// TestWebhook_InvalidSignature tests that a bad signature rejects the
// delivery before anything is processed
func TestWebhook_InvalidSignature(t *testing.T) {
	server := createTestServer()
	processor := server.activity.(*mockActivityProcessor)

	body := webhookBody()
	req := httptest.NewRequest("POST", "/webhooks/alchemy", bytes.NewReader(body))
	req.Header.Set(signatureHeader, signBody("wrong-key", body))

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if len(processor.batches) != 0 {
		t.Error("activity was processed despite the invalid signature")
	}
}

// TestWebhook_MissingSignature tests the unsigned delivery path
func TestWebhook_MissingSignature(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("POST", "/webhooks/alchemy", bytes.NewReader(webhookBody()))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

// TestWebhook_TamperedBody tests that the signature covers the raw body
func TestWebhook_TamperedBody(t *testing.T) {
	server := createTestServer()

	body := webhookBody()
	signature := signBody("test-signing-key", body)
	tampered := bytes.Replace(body, []byte("0xaaa"), []byte("0xbbb"), 1)

	req := httptest.NewRequest("POST", "/webhooks/alchemy", bytes.NewReader(tampered))
	req.Header.Set(signatureHeader, signature)

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

// TestWebhook_MalformedJSON tests that a signed but unparseable body is a 400
func TestWebhook_MalformedJSON(t *testing.T) {
	server := createTestServer()

	body := []byte("not json")
	req := httptest.NewRequest("POST", "/webhooks/alchemy", bytes.NewReader(body))
	req.Header.Set(signatureHeader, signBody("test-signing-key", body))

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

// TestWebhook_NoSigningKeyConfigured tests that deliveries are rejected
// when no key is configured rather than accepted unverified
func TestWebhook_NoSigningKeyConfigured(t *testing.T) {
	server := createTestServer()
	server.signingKey = ""

	body := webhookBody()
	req := httptest.NewRequest("POST", "/webhooks/alchemy", bytes.NewReader(body))
	req.Header.Set(signatureHeader, signBody("test-signing-key", body))

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}
