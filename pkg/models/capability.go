package models

import (
	"strings"
	"time"
)

// CapabilityKind names one probeable capability of a context
type CapabilityKind string

const (
	CapProtocolControl CapabilityKind = "protocol-control"
	CapSyntheticInput  CapabilityKind = "synthetic-input-control"
	CapHybridControl   CapabilityKind = "hybrid-control"
	CapWindowMgmt      CapabilityKind = "window-management"
	CapScriptExec      CapabilityKind = "script-execution"
	CapScreenshot      CapabilityKind = "screenshot"
	CapNetwork         CapabilityKind = "network-reachability"
)

// IsControlMode reports whether the kind denotes a browser control technique.
func (k CapabilityKind) IsControlMode() bool {
	return strings.HasSuffix(string(k), "-control")
}

// ProbeMethod records how a capability was checked
type ProbeMethod string

const (
	MethodEndpointCheck ProbeMethod = "endpoint-check"
	MethodCommandCheck  ProbeMethod = "command-check"
	MethodWindowCheck   ProbeMethod = "window-check"
	MethodDerived       ProbeMethod = "derived"
	// MethodProbeError marks records synthesized from a probe that
	// returned an error, as opposed to one that ran and reported
	// "unavailable" through its own method.
	MethodProbeError ProbeMethod = "probe-error"
)

// CapabilityRecord is the result of probing one (context, kind) pair.
// Confidence is always 0 when Available is false.
type CapabilityRecord struct {
	Kind       CapabilityKind `json:"kind"`
	Available  bool           `json:"available"`
	Confidence float64        `json:"confidence"`
	Method     ProbeMethod    `json:"method"`
	Details    map[string]any `json:"details,omitempty"`
	CheckedAt  time.Time      `json:"checkedAt"`
}

// Profile aggregates the capability records of one context plus
// derived score and best control mode.
type Profile struct {
	ContextID    string             `json:"contextId"`
	ContextType  ContextType        `json:"contextType"`
	Capabilities []CapabilityRecord `json:"capabilities"`
	Score        float64            `json:"score"`
	LastActive   time.Time          `json:"lastActive"`
	DetectedAt   time.Time          `json:"detectedAt"`
}

// IsAvailable reports whether any capability at all is available.
func (p *Profile) IsAvailable() bool {
	for _, cap := range p.Capabilities {
		if cap.Available {
			return true
		}
	}
	return false
}

// Capability returns the record for a kind, or false when absent.
func (p *Profile) Capability(kind CapabilityKind) (CapabilityRecord, bool) {
	for _, cap := range p.Capabilities {
		if cap.Kind == kind {
			return cap, true
		}
	}
	return CapabilityRecord{}, false
}

// Has reports whether a kind is present and available.
func (p *Profile) Has(kind CapabilityKind) bool {
	cap, ok := p.Capability(kind)
	return ok && cap.Available
}

// BestControlMode returns the available *-control capability with the
// highest confidence, or empty string when none is available.
func (p *Profile) BestControlMode() CapabilityKind {
	var best CapabilityKind
	bestConf := -1.0
	for _, cap := range p.Capabilities {
		if !cap.Kind.IsControlMode() || !cap.Available {
			continue
		}
		if cap.Confidence > bestConf {
			best = cap.Kind
			bestConf = cap.Confidence
		}
	}
	return best
}

// ComputeScore recalculates the profile score: mean confidence over
// available capabilities, 0 when none is available.
func (p *Profile) ComputeScore() {
	var sum float64
	var n int
	for _, cap := range p.Capabilities {
		if cap.Available {
			sum += cap.Confidence
			n++
		}
	}
	if n == 0 {
		p.Score = 0
		return
	}
	p.Score = sum / float64(n)
}
