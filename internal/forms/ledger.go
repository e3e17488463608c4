// Package forms tracks which external forms each participant has verifiably
// completed. The ledger is process-lifetime state: it is fed only by the
// verified webhook path and is lost on restart.
package forms

import "sync"

// FormID names one of the two external forms in the protocol.
type FormID string

const (
	Form1 FormID = "form1"
	Form2 FormID = "form2"
)

// ParseFormID accepts only the known form ids.
func ParseFormID(raw string) (FormID, bool) {
	switch FormID(raw) {
	case Form1, Form2:
		return FormID(raw), true
	}
	return "", false
}

// Ledger is a process-wide completion record. It is passed explicitly to the
// handlers that need it so tests can run against isolated instances.
type Ledger struct {
	mu   sync.Mutex
	done map[string]map[FormID]bool
}

func NewLedger() *Ledger {
	return &Ledger{done: make(map[string]map[FormID]bool)}
}

// MarkDone sets the form's flag for the participant. It is monotonic: a flag
// never resets to false, so duplicate webhook deliveries are harmless.
func (l *Ledger) MarkDone(participantID string, form FormID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.done[participantID]
	if !ok {
		entry = make(map[FormID]bool, 2)
		l.done[participantID] = entry
	}
	entry[form] = true
}

// IsDone reports whether the form's completion has been attested.
func (l *Ledger) IsDone(participantID string, form FormID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done[participantID][form]
}

// AnyDone reports whether either form has been completed; the hand-off gate
// opens on the first attested completion.
func (l *Ledger) AnyDone(participantID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.done[participantID]
	return entry[Form1] || entry[Form2]
}
