package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shoplab/api/internal/auditlog"
	"shoplab/api/internal/cart"
	"shoplab/api/internal/catalog"
	"shoplab/api/internal/config"
	"shoplab/api/internal/forms"
	"shoplab/api/internal/participant"
	"shoplab/api/internal/session"
)

// Service holds the experiment-flow state machine: identity capture,
// condition assignment, cart aggregation, the checkout funnel, and the
// form-completion gate. All per-visitor state lives in the session store;
// the form-completion ledger is process-wide.
type Service struct {
	cfg      config.Config
	sessions session.Store
	catalog  catalog.Store
	audit    auditlog.Sink
	ledger   *forms.Ledger

	// draw is injectable so tests can pin the condition assignment.
	draw func() participant.Condition
	now  func() time.Time
}

func New(cfg config.Config, sessions session.Store, cat catalog.Store, audit auditlog.Sink, ledger *forms.Ledger) *Service {
	return &Service{
		cfg:      cfg,
		sessions: sessions,
		catalog:  cat,
		audit:    audit,
		ledger:   ledger,
		draw:     participant.RandomCondition,
		now:      time.Now,
	}
}

// State loads the visitor's session, treating an absent session as the
// defined zero state.
func (s *Service) State(ctx context.Context, sid string) (session.State, error) {
	state, err := s.sessions.Load(ctx, sid)
	if errors.Is(err, session.ErrNotFound) {
		return session.State{}, nil
	}
	if err != nil {
		return session.State{}, err
	}
	return state, nil
}

// Enter validates and stores the participant identifier. A malformed id
// leaves the session unmodified.
func (s *Service) Enter(ctx context.Context, sid, raw string) (session.State, error) {
	id, err := participant.ParseID(raw)
	if err != nil {
		return session.State{}, validationError(err.Error())
	}

	state, err := s.State(ctx, sid)
	if err != nil {
		return session.State{}, err
	}
	state.ParticipantID = id
	if err := s.sessions.Save(ctx, sid, state); err != nil {
		return session.State{}, fmt.Errorf("save session: %w", err)
	}

	s.logEvent(ctx, state, "login", "entry", nil)
	return state, nil
}

// AdoptHandoff accepts identity and condition carried over from the
// counterpart deployment. The values are adopted without re-validation (the
// counterpart already validated them); an unrecognized condition is left
// unset so the first catalog view re-draws it.
func (s *Service) AdoptHandoff(ctx context.Context, sid, participantID, rawCondition string) (session.State, error) {
	state, err := s.State(ctx, sid)
	if err != nil {
		return session.State{}, err
	}

	state.ParticipantID = participantID
	state.FromPrevious = true
	if cond, ok := participant.ParseCondition(rawCondition); ok {
		state.Condition = cond
	}
	if err := s.sessions.Save(ctx, sid, state); err != nil {
		return session.State{}, fmt.Errorf("save session: %w", err)
	}

	s.logEvent(ctx, state, "handoff_in", "index", nil)
	return state, nil
}

// EnsureCondition assigns the experimental condition exactly once per
// session. Repeated calls never re-draw.
func (s *Service) EnsureCondition(ctx context.Context, sid string, state session.State) (session.State, error) {
	if state.Condition != "" {
		return state, nil
	}

	state.Condition = s.draw()
	if err := s.sessions.Save(ctx, sid, state); err != nil {
		return session.State{}, fmt.Errorf("save session: %w", err)
	}

	s.logEvent(ctx, state, "condition_assigned", "index", nil)
	return state, nil
}

// Products lists the catalog for the index page.
func (s *Service) Products(ctx context.Context) ([]catalog.Product, error) {
	return s.catalog.List()
}

// Product resolves one product or returns a not-found domain error.
func (s *Service) Product(ctx context.Context, id string) (catalog.Product, error) {
	p, err := s.catalog.Lookup(id)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.Product{}, notFoundError("Product not found")
	}
	if err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

// ParseQuantity applies the storefront's lenient coercion: non-numeric or
// non-positive quantity input becomes 1 instead of an error. Preserved from
// the original experiment app; flagged as an open question in DESIGN.md.
func ParseQuantity(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// AddToCart merges one line into the cart, keyed by (product, color, size).
func (s *Service) AddToCart(ctx context.Context, sid string, state session.State, productID string, quantity int, color, size string) (session.State, error) {
	if _, err := s.Product(ctx, productID); err != nil {
		return session.State{}, err
	}

	state.Cart = cart.Add(state.Cart, productID, quantity, color, size)
	if err := s.sessions.Save(ctx, sid, state); err != nil {
		return session.State{}, fmt.Errorf("save session: %w", err)
	}

	if snap, err := s.Snapshot(ctx, state); err == nil {
		s.logEvent(ctx, state, "add_to_cart", "product", &snap)
	} else {
		s.logEvent(ctx, state, "add_to_cart", "product", nil)
	}
	return state, nil
}

// CartUpdate is one quantity replacement from the cart page.
type CartUpdate struct {
	ProductID string
	Color     string
	Size      string
	Quantity  int
}

// UpdateCart replaces quantities line by line; a quantity of zero or less
// removes the line, an unknown key is a no-op.
func (s *Service) UpdateCart(ctx context.Context, sid string, state session.State, updates []CartUpdate) (session.State, error) {
	for _, u := range updates {
		state.Cart = cart.SetQuantity(state.Cart, u.ProductID, u.Quantity, u.Color, u.Size)
	}
	if err := s.sessions.Save(ctx, sid, state); err != nil {
		return session.State{}, fmt.Errorf("save session: %w", err)
	}

	if snap, err := s.Snapshot(ctx, state); err == nil {
		s.logEvent(ctx, state, "update_cart", "cart", &snap)
	} else {
		s.logEvent(ctx, state, "update_cart", "cart", nil)
	}
	return state, nil
}

// Snapshot recomputes the checkout view from the current cart and catalog.
// It is never cached: the catalog is read through on every call.
func (s *Service) Snapshot(ctx context.Context, state session.State) (cart.Snapshot, error) {
	products, err := s.catalog.List()
	if err != nil {
		return cart.Snapshot{}, fmt.Errorf("list catalog: %w", err)
	}
	return cart.BuildSnapshot(state.Cart, cart.IndexProducts(products)), nil
}

// Checkout completes the purchase: it computes the final snapshot, appends
// the purchase event, and clears the cart — in that order. If the append
// fails the cart is NOT cleared, so the purchase can be retried without
// losing data; the visitor still sees the completion page either way.
func (s *Service) Checkout(ctx context.Context, sid string, state session.State) (cart.Snapshot, bool, error) {
	snap, err := s.Snapshot(ctx, state)
	if err != nil {
		return cart.Snapshot{}, false, err
	}

	event := s.snapshotEvent(state, "purchase_complete", "checkout", &snap)
	if err := s.audit.Append(ctx, event); err != nil {
		log.Printf("audit append failed, keeping cart for retry: %v", err)
		return snap, false, nil
	}

	state.Cart = nil
	if err := s.sessions.Save(ctx, sid, state); err != nil {
		return cart.Snapshot{}, false, fmt.Errorf("save session: %w", err)
	}
	return snap, true, nil
}

// Reset destroys the visitor's session state.
func (s *Service) Reset(ctx context.Context, sid string) error {
	return s.sessions.Delete(ctx, sid)
}

// NextTarget is the form-completion gate's decision procedure: where to send
// a participant who finished the local funnel.
func (s *Service) NextTarget(ctx context.Context, state session.State, participantIDParam string) (string, error) {
	pid := state.ParticipantID
	if pid == "" {
		pid = strings.TrimSpace(participantIDParam)
	}
	if pid == "" {
		return "", domainError(http.StatusBadRequest, "MISSING_PARTICIPANT", "participant id is required", nil)
	}

	if !s.ledger.AnyDone(pid) {
		return "", forbiddenError("No form completion recorded for this participant")
	}

	// Second deployment in the chain, or no counterpart configured: the
	// protocol terminates locally.
	if state.FromPrevious || s.cfg.CounterpartURL == "" {
		return "/finish", nil
	}

	target, err := url.Parse(s.cfg.CounterpartURL)
	if err != nil {
		return "", fmt.Errorf("parse counterpart url: %w", err)
	}
	query := url.Values{}
	query.Set("from_previous", "1")
	query.Set("participant_id", pid)
	query.Set("condition", string(state.Condition))
	target.RawQuery = query.Encode()

	s.logEvent(ctx, state, "handoff_out", "next", nil)
	return target.String(), nil
}

// VerifyWebhookSecret compares the shared-secret header in constant time.
func (s *Service) VerifyWebhookSecret(header string) bool {
	if s.cfg.WebhookSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(s.cfg.WebhookSecret)) == 1
}

// RecordFormCompletion marks a form done when the webhook's completion code
// matches the expected value for that form. A wrong code or unknown form id
// is ignored, not an error: the webhook caller gets a 202 and nothing flips.
func (s *Service) RecordFormCompletion(ctx context.Context, participantID, rawFormID, code string) bool {
	formID, ok := forms.ParseFormID(rawFormID)
	if !ok {
		return false
	}

	var expected string
	switch formID {
	case forms.Form1:
		expected = s.cfg.Form1Code
	case forms.Form2:
		expected = s.cfg.Form2Code
	}
	if expected == "" || subtle.ConstantTimeCompare([]byte(code), []byte(expected)) != 1 {
		return false
	}

	s.ledger.MarkDone(participantID, formID)
	s.logEvent(ctx, session.State{ParticipantID: participantID}, "form_completed", string(formID), nil)
	return true
}

// FormDone answers the status query for one participant and form.
func (s *Service) FormDone(participantID string, formID forms.FormID) bool {
	return s.ledger.IsDone(participantID, formID)
}

func (s *Service) snapshotEvent(state session.State, action, page string, snap *cart.Snapshot) auditlog.Event {
	event := auditlog.Event{
		Timestamp:     s.now(),
		ParticipantID: state.ParticipantID,
		Condition:     string(state.Condition),
		Action:        action,
		Page:          page,
	}
	if snap == nil {
		return event
	}
	event.TotalPrice = snap.Total
	for _, item := range snap.Items {
		event.ProductNames = append(event.ProductNames, item.Product.Name)
		event.Quantities = append(event.Quantities, item.Quantity)
		event.Subtotals = append(event.Subtotals, item.Subtotal)
		event.Colors = append(event.Colors, item.Color)
		event.Sizes = append(event.Sizes, item.Size)
	}
	return event
}

// logEvent appends fire-and-forget: a sink failure must never break the
// funnel outside the checkout boundary.
func (s *Service) logEvent(ctx context.Context, state session.State, action, page string, snap *cart.Snapshot) {
	if err := s.audit.Append(ctx, s.snapshotEvent(state, action, page, snap)); err != nil {
		log.Printf("audit append failed for %s: %v", action, err)
	}
}

// LogView records a page view.
func (s *Service) LogView(ctx context.Context, state session.State, action, page string) {
	s.logEvent(ctx, state, action, page, nil)
}
