package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shoplab/api/internal/catalog"
	"shoplab/api/internal/forms"
	"shoplab/api/internal/participant"
	"shoplab/api/internal/session"
	"shoplab/api/internal/util"
	"shoplab/api/internal/web"
)

const sessionCookie = "sid"

type HTTPServer struct {
	service *Service
	static  http.Handler
}

func NewHTTPServer(service *Service) *HTTPServer {
	return &HTTPServer{service: service, static: web.StaticHandler()}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/healthz" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/static/") {
		s.static.ServeHTTP(w, r)
		return
	}

	// Webhook and status endpoints: no visitor session involved.
	if r.Method == http.MethodPost && r.URL.Path == "/notify_form_submit" {
		s.handleNotifyFormSubmit(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "form_status" {
		s.handleFormStatus(w, r, parts[1])
		return
	}

	// Everything below is a browser page and needs the session cookie.
	sid := s.sessionID(w, r)

	if r.URL.Path == "/entry" {
		switch r.Method {
		case http.MethodGet:
			s.renderPage(w, http.StatusOK, "entry", map[string]any{"Error": "", "Raw": ""})
		case http.MethodPost:
			s.handleEnter(w, r, sid)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/reset" {
		if err := s.service.Reset(r.Context(), sid); err != nil {
			s.serverError(w, err)
			return
		}
		http.Redirect(w, r, "/entry", http.StatusFound)
		return
	}

	state, err := s.service.State(r.Context(), sid)
	if err != nil {
		s.serverError(w, err)
		return
	}

	// Cross-site handoff entry: adopt the carried identity before the
	// access guard runs, so the visitor skips identity capture.
	if r.Method == http.MethodGet && r.URL.Path == "/" && r.URL.Query().Get("from_previous") == "1" {
		if pid := strings.TrimSpace(r.URL.Query().Get("participant_id")); pid != "" {
			state, err = s.service.AdoptHandoff(r.Context(), sid, pid, r.URL.Query().Get("condition"))
			if err != nil {
				s.serverError(w, err)
				return
			}
		}
	}

	// Access guard: a missing participant id is a navigation correction,
	// not an error.
	if !state.HasParticipant() {
		http.Redirect(w, r, "/entry", http.StatusFound)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/" {
		s.handleIndex(w, r, sid, state)
		return
	}

	if r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "product" {
		s.handleProduct(w, r, state, parts[1])
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/add_to_cart" {
		s.handleAddToCart(w, r, sid, state)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/cart" {
		s.handleCart(w, r, state)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/update_cart" {
		s.handleUpdateCart(w, r, sid, state)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/confirm" {
		s.handleConfirm(w, r, state)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/checkout" {
		s.handleCheckout(w, r, sid, state)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/next" {
		s.handleNext(w, r, state)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/finish" {
		s.renderPage(w, http.StatusOK, "finish", map[string]any{})
		return
	}

	http.NotFound(w, r)
}

func (s *HTTPServer) handleEnter(w http.ResponseWriter, r *http.Request, sid string) {
	if err := r.ParseForm(); err != nil {
		s.renderPage(w, http.StatusBadRequest, "entry", map[string]any{"Error": "Invalid form submission", "Raw": ""})
		return
	}
	raw := r.PostFormValue("participant_id")

	_, err := s.service.Enter(r.Context(), sid, raw)
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			s.renderPage(w, domainErr.Status, "entry", map[string]any{"Error": domainErr.Message, "Raw": raw})
			return
		}
		s.serverError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *HTTPServer) handleIndex(w http.ResponseWriter, r *http.Request, sid string, state session.State) {
	state, err := s.service.EnsureCondition(r.Context(), sid, state)
	if err != nil {
		s.serverError(w, err)
		return
	}

	products, err := s.service.Products(r.Context())
	if err != nil {
		s.serverError(w, err)
		return
	}

	s.service.LogView(r.Context(), state, "view_index", "index")
	s.renderPage(w, http.StatusOK, "index", map[string]any{
		"Products":   products,
		"Experiment": state.Condition == participant.ConditionExperiment,
	})
}

func (s *HTTPServer) handleProduct(w http.ResponseWriter, r *http.Request, state session.State, productID string) {
	product, err := s.service.Product(r.Context(), productID)
	if err != nil {
		s.renderError(w, err)
		return
	}

	s.service.LogView(r.Context(), state, "view_product", "product")
	s.renderPage(w, http.StatusOK, "product", map[string]any{"Product": product})
}

func (s *HTTPServer) handleAddToCart(w http.ResponseWriter, r *http.Request, sid string, state session.State) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	productID := strings.TrimSpace(r.PostFormValue("product_id"))
	if productID == "" {
		http.Error(w, "product_id is required", http.StatusBadRequest)
		return
	}
	quantity := ParseQuantity(r.PostFormValue("quantity"))
	color := strings.TrimSpace(r.PostFormValue("color"))
	size := strings.TrimSpace(r.PostFormValue("size"))

	if _, err := s.service.AddToCart(r.Context(), sid, state, productID, quantity, color, size); err != nil {
		s.renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCart(w http.ResponseWriter, r *http.Request, state session.State) {
	snap, err := s.service.Snapshot(r.Context(), state)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.service.LogView(r.Context(), state, "view_cart", "cart")
	s.renderPage(w, http.StatusOK, "cart", map[string]any{"Snapshot": snap})
}

func (s *HTTPServer) handleUpdateCart(w http.ResponseWriter, r *http.Request, sid string, state session.State) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	var updates []CartUpdate
	for key, values := range r.PostForm {
		if !strings.HasPrefix(key, "quantity_") || len(values) == 0 {
			continue
		}
		update, ok := parseCartKey(strings.TrimPrefix(key, "quantity_"), values[0])
		if !ok {
			continue
		}
		updates = append(updates, update)
	}

	if _, err := s.service.UpdateCart(r.Context(), sid, state, updates); err != nil {
		s.serverError(w, err)
		return
	}
	http.Redirect(w, r, "/cart", http.StatusFound)
}

// parseCartKey decodes a cart form field of the shape
// <product>__<color>__<size> with the quantity value. A non-numeric quantity
// leaves the line unchanged (the update is dropped).
func parseCartKey(key, rawQuantity string) (CartUpdate, bool) {
	segments := strings.SplitN(key, "__", 3)
	if len(segments) != 3 || segments[0] == "" {
		return CartUpdate{}, false
	}
	quantity, err := strconv.Atoi(strings.TrimSpace(rawQuantity))
	if err != nil {
		return CartUpdate{}, false
	}
	return CartUpdate{
		ProductID: segments[0],
		Color:     segments[1],
		Size:      segments[2],
		Quantity:  quantity,
	}, true
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request, state session.State) {
	snap, err := s.service.Snapshot(r.Context(), state)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.service.LogView(r.Context(), state, "view_confirm", "confirm")
	s.renderPage(w, http.StatusOK, "confirm", map[string]any{"Snapshot": snap})
}

func (s *HTTPServer) handleCheckout(w http.ResponseWriter, r *http.Request, sid string, state session.State) {
	// The completion page renders regardless of whether the purchase row
	// reached the sink; only the cart clear is tied to log durability.
	if _, _, err := s.service.Checkout(r.Context(), sid, state); err != nil {
		s.serverError(w, err)
		return
	}
	s.renderPage(w, http.StatusOK, "complete", map[string]any{})
}

func (s *HTTPServer) handleNext(w http.ResponseWriter, r *http.Request, state session.State) {
	target, err := s.service.NextTarget(r.Context(), state, r.URL.Query().Get("participant_id"))
	if err != nil {
		s.renderError(w, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *HTTPServer) handleNotifyFormSubmit(w http.ResponseWriter, r *http.Request) {
	if !s.service.VerifyWebhookSecret(r.Header.Get("X-Webhook-Secret")) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Invalid webhook secret", nil)
		return
	}

	pid, formID, code, err := webhookFields(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if pid == "" || formID == "" || code == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "pid, form_id and code are required", nil)
		return
	}

	if !s.service.RecordFormCompletion(r.Context(), pid, formID, code) {
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "ignored"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// webhookFields reads pid/form_id/code from a JSON body or, for form
// providers that only do form encoding, from POST form values.
func webhookFields(r *http.Request) (pid, formID, code string, err error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var body struct {
			PID    string `json:"pid"`
			FormID string `json:"form_id"`
			Code   string `json:"code"`
		}
		defer r.Body.Close()
		if decodeErr := json.NewDecoder(r.Body).Decode(&body); decodeErr != nil {
			return "", "", "", fmt.Errorf("invalid JSON body")
		}
		return strings.TrimSpace(body.PID), strings.TrimSpace(body.FormID), strings.TrimSpace(body.Code), nil
	}

	if parseErr := r.ParseForm(); parseErr != nil {
		return "", "", "", fmt.Errorf("invalid form body")
	}
	return strings.TrimSpace(r.PostFormValue("pid")),
		strings.TrimSpace(r.PostFormValue("form_id")),
		strings.TrimSpace(r.PostFormValue("code")), nil
}

func (s *HTTPServer) handleFormStatus(w http.ResponseWriter, r *http.Request, pid string) {
	formID, ok := forms.ParseFormID(strings.TrimSpace(r.URL.Query().Get("expect")))
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "expect must be form1 or form2", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"done": s.service.FormDone(pid, formID)})
}

// sessionID returns the visitor's session id, issuing the cookie on first
// contact.
func (s *HTTPServer) sessionID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	sid := util.NewSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

func (s *HTTPServer) renderPage(w http.ResponseWriter, status int, name string, data map[string]any) {
	if err := web.Render(w, status, name, data); err != nil {
		s.serverError(w, fmt.Errorf("render %s: %w", name, err))
	}
}

// renderError maps a domain error to its HTML page; anything else is a 500.
func (s *HTTPServer) renderError(w http.ResponseWriter, err error) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Status {
		case http.StatusNotFound:
			s.renderPage(w, http.StatusNotFound, "notfound", map[string]any{})
			return
		case http.StatusForbidden:
			s.renderPage(w, http.StatusForbidden, "forbidden", map[string]any{})
			return
		default:
			http.Error(w, domainErr.Message, domainErr.Status)
			return
		}
	}
	if errors.Is(err, catalog.ErrNotFound) {
		s.renderPage(w, http.StatusNotFound, "notfound", map[string]any{})
		return
	}
	s.serverError(w, err)
}

func (s *HTTPServer) serverError(w http.ResponseWriter, err error) {
	log.Printf("server error: %v", err)
	http.Error(w, "server error", http.StatusInternalServerError)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("Cache-Control", "no-store")
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
