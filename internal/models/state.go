package models

import "fmt"

// PageState is the position of a page image in the pipeline.
type PageState string

const (
	StateRasterized PageState = "rasterized"
	StateNormalized PageState = "normalized"
	StateRecognized PageState = "recognized"
	// StateFiled and StateFlagged are terminal. Flagged means filed and copied for review.
	StateFiled   PageState = "filed"
	StateFlagged PageState = "flagged"
	// StateFailed is terminal; the failing stage is recorded separately.
	StateFailed PageState = "failed"
)

var transitions = map[PageState][]PageState{
	StateRasterized: {StateNormalized, StateFailed},
	StateNormalized: {StateRecognized, StateFailed},
	StateRecognized: {StateFiled, StateFlagged, StateFailed},
}

// Terminal reports whether no further transition is possible.
func (s PageState) Terminal() bool {
	return s == StateFiled || s == StateFlagged || s == StateFailed
}

// Next returns to if moving from s to to is allowed.
func (s PageState) Next(to PageState) (PageState, error) {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return to, nil
		}
	}
	return s, fmt.Errorf("invalid page state transition %s -> %s", s, to)
}

// Advance moves the page to the given state.
func (p *PageImage) Advance(to PageState) error {
	next, err := p.State.Next(to)
	if err != nil {
		return err
	}
	p.State = next
	return nil
}
