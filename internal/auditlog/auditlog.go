// Package auditlog appends experiment action records to an external sink.
// Appends are fire-and-forget from most handlers; only the purchase-complete
// boundary treats a failed append as blocking (the cart is not cleared until
// the purchase row is durable).
package auditlog

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Event is one action row, matching the analysis spreadsheet's columns. The
// parallel slices describe the cart snapshot at the time of the action and
// are empty for actions that carry no cart.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	ParticipantID string    `json:"participant_id"`
	Condition     string    `json:"condition"`
	Action        string    `json:"action"`
	TotalPrice    int       `json:"total_price"`
	ProductNames  []string  `json:"product_names,omitempty"`
	Quantities    []int     `json:"quantities,omitempty"`
	Subtotals     []int     `json:"subtotals,omitempty"`
	Colors        []string  `json:"colors,omitempty"`
	Sizes         []string  `json:"sizes,omitempty"`
	Page          string    `json:"page"`
}

// Sink is an append-only event log. Ordering across concurrent requests is
// not guaranteed.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// LogSink writes events to the process log. It is the fallback when neither
// a collector URL nor a database is configured.
type LogSink struct{}

func (LogSink) Append(_ context.Context, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	log.Printf("audit: %s", raw)
	return nil
}
