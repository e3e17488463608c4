package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"shoplab/api/internal/config"
	"shoplab/api/internal/forms"
)

func webhookConfig() config.Config {
	return config.Config{
		WebhookSecret: "hush",
		Form1Code:     "alpha",
		Form2Code:     "beta",
	}
}

func postWebhook(server *HTTPServer, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/notify_form_submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Webhook-Secret", secret)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	server, svc, _ := newTestServer(webhookConfig())

	rr := postWebhook(server, "wrong", `{"pid":"abc123456789","form_id":"form1","code":"alpha"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if svc.FormDone("abc123456789", forms.Form1) {
		t.Fatal("bad secret must not mark anything done")
	}

	rr = postWebhook(server, "", `{"pid":"abc123456789","form_id":"form1","code":"alpha"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing secret, got %d", rr.Code)
	}
}

func TestWebhookRejectsMissingFields(t *testing.T) {
	server, _, _ := newTestServer(webhookConfig())

	cases := []string{
		`{"form_id":"form1","code":"alpha"}`,
		`{"pid":"abc123456789","code":"alpha"}`,
		`{"pid":"abc123456789","form_id":"form1"}`,
		`not json`,
	}
	for _, body := range cases {
		rr := postWebhook(server, "hush", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestWebhookIgnoresWrongCode(t *testing.T) {
	server, svc, _ := newTestServer(webhookConfig())

	// form2's code supplied for form1 by mistake: ignored, nothing flips.
	rr := postWebhook(server, "hush", `{"pid":"abc123456789","form_id":"form1","code":"beta"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["status"] != "ignored" {
		t.Fatalf("expected ignored status, got %v", payload)
	}
	if svc.FormDone("abc123456789", forms.Form1) || svc.FormDone("abc123456789", forms.Form2) {
		t.Fatal("wrong code must not flip any form")
	}

	// Unknown form_id is likewise non-fatal.
	rr = postWebhook(server, "hush", `{"pid":"abc123456789","form_id":"form9","code":"alpha"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for unknown form_id, got %d", rr.Code)
	}
}

func TestWebhookAcceptsMatchingCode(t *testing.T) {
	server, svc, _ := newTestServer(webhookConfig())

	rr := postWebhook(server, "hush", `{"pid":"abc123456789","form_id":"form2","code":"beta"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !svc.FormDone("abc123456789", forms.Form2) {
		t.Fatal("form2 should be done")
	}

	// Duplicate delivery is idempotent.
	rr = postWebhook(server, "hush", `{"pid":"abc123456789","form_id":"form2","code":"beta"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("duplicate delivery: expected 200, got %d", rr.Code)
	}
}

func TestWebhookAcceptsFormEncodedBody(t *testing.T) {
	server, svc, _ := newTestServer(webhookConfig())

	form := url.Values{"pid": {"abc123456789"}, "form_id": {"form1"}, "code": {"alpha"}}
	req := httptest.NewRequest(http.MethodPost, "/notify_form_submit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Webhook-Secret", "hush")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !svc.FormDone("abc123456789", forms.Form1) {
		t.Fatal("form1 should be done")
	}
}

func TestFormStatusQuery(t *testing.T) {
	server, svc, _ := newTestServer(webhookConfig())
	svc.ledger.MarkDone("abc123456789", forms.Form1)

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/form_status/abc123456789?expect=form1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]bool
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if !payload["done"] {
		t.Fatal("expected done=true for form1")
	}

	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/form_status/abc123456789?expect=form2", nil))
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["done"] {
		t.Fatal("expected done=false for form2")
	}

	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/form_status/abc123456789?expect=form9", nil))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad expect, got %d", rr.Code)
	}
}
