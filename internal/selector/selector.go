// Package selector ranks (profile, control mode) candidates for a
// requested operation. It never executes anything: callers attempt
// candidates in order and fall back on failure.
package selector

import (
	"errors"
	"sort"

	"github.com/sdiallo/browserpilot/pkg/models"
)

// ErrNoCandidateMode is returned by SelectOne when no profile offers a
// usable control mode.
var ErrNoCandidateMode = errors.New("no candidate control mode")

// operationBonus is added when a profile offers the control mode the
// operation favors.
const operationBonus = 0.3

// Candidate is one ranked (profile, mode) pair
type Candidate struct {
	Profile models.Profile        `json:"profile"`
	Mode    models.CapabilityKind `json:"mode"`
	Score   float64               `json:"score"`
}

// Select computes the ranked fallback order for an operation across the
// given profiles. Each available control mode of each available profile
// becomes a candidate; read/navigation-like operations favor protocol
// control, physical interactions favor synthetic input. An empty result
// means no profile is usable; that is an expected outcome, not an error.
func Select(op models.OperationKind, profiles []models.Profile) []Candidate {
	var candidates []Candidate

	for _, p := range profiles {
		if !p.IsAvailable() {
			continue
		}

		for _, cap := range p.Capabilities {
			if !cap.Kind.IsControlMode() || !cap.Available {
				continue
			}

			score := p.Score
			if favors(op, cap.Kind) {
				score += operationBonus
			}

			candidates = append(candidates, Candidate{
				Profile: p,
				Mode:    cap.Kind,
				Score:   score,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		// More recently active contexts are likelier to still be in a
		// stable foreground state.
		if !a.Profile.LastActive.Equal(b.Profile.LastActive) {
			return a.Profile.LastActive.After(b.Profile.LastActive)
		}
		ca, _ := a.Profile.Capability(a.Mode)
		cb, _ := b.Profile.Capability(b.Mode)
		if ca.Confidence != cb.Confidence {
			return ca.Confidence > cb.Confidence
		}
		return a.Profile.ContextID < b.Profile.ContextID
	})

	return candidates
}

func favors(op models.OperationKind, mode models.CapabilityKind) bool {
	switch {
	case op.IsProtocolFavored():
		return mode == models.CapProtocolControl
	case op.IsInputFavored():
		return mode == models.CapSyntheticInput
	}
	return false
}

// SelectOne returns the top candidate or ErrNoCandidateMode.
func SelectOne(op models.OperationKind, profiles []models.Profile) (Candidate, error) {
	candidates := Select(op, profiles)
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidateMode
	}
	return candidates[0], nil
}
