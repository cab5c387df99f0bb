package dataflag

import "fmt"

// Decision is a user's judgment about the data of one LSD.
type Decision string

const (
	DecisionGood   Decision = "good"
	DecisionBad    Decision = "bad"
	DecisionUnsure Decision = "unsure"
)

// Decisions lists the closed set of valid decisions.
func Decisions() []Decision {
	return []Decision{DecisionGood, DecisionBad, DecisionUnsure}
}

// ParseDecision validates a raw decision string.
func ParseDecision(raw string) (Decision, error) {
	switch Decision(raw) {
	case DecisionGood, DecisionBad, DecisionUnsure:
		return Decision(raw), nil
	default:
		return "", fmt.Errorf("%w: %q (choose one of %v)", ErrInvalidDecision, raw, Decisions())
	}
}

func (d Decision) String() string { return string(d) }
