// Package participant holds participant identity normalization and the
// experimental condition assignment primitives.
package participant

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// Condition is the UI variant a participant is assigned to.
type Condition string

const (
	ConditionControl    Condition = "control"
	ConditionExperiment Condition = "experiment"
)

// ParseCondition accepts only the two known condition values.
func ParseCondition(raw string) (Condition, bool) {
	switch Condition(strings.TrimSpace(raw)) {
	case ConditionControl:
		return ConditionControl, true
	case ConditionExperiment:
		return ConditionExperiment, true
	}
	return "", false
}

// RandomCondition draws uniformly between control and experiment.
func RandomCondition() Condition {
	if rand.IntN(2) == 0 {
		return ConditionControl
	}
	return ConditionExperiment
}

// Participant ids are issued by the panel provider as 12-character codes.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{12}$`)

// InvalidIDError carries the user-facing message for a rejected identifier.
type InvalidIDError struct {
	Raw string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid participant id %q: must be 12 characters of letters, digits, '.', '-' or '_'", e.Raw)
}

// Normalize trims surrounding whitespace and folds full-width characters to
// their half-width forms, so ids pasted from Japanese IMEs validate.
func Normalize(raw string) string {
	folded := width.Fold.String(raw)
	return strings.TrimSpace(folded)
}

// ParseID normalizes raw and validates it against the issued-code pattern.
// The returned id is the normalized form.
func ParseID(raw string) (string, error) {
	id := Normalize(raw)
	if !idPattern.MatchString(id) {
		return "", &InvalidIDError{Raw: raw}
	}
	return id, nil
}
