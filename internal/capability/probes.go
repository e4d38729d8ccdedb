package capability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sdiallo/browserpilot/internal/transport"
	"github.com/sdiallo/browserpilot/internal/winsys"
	"github.com/sdiallo/browserpilot/pkg/models"
)

// Probe confidence levels, carried over from long observation of how
// reliable each technique is in practice.
const (
	confidenceProtocol   = 0.9
	confidenceInput      = 0.8
	confidenceWindowMgmt = 0.9
	confidenceScreenshot = 0.9
	confidenceNetwork    = 0.95
)

// ProbeDeps carries the external collaborators the builtin probes need
type ProbeDeps struct {
	Discoverer *transport.Discoverer
	Enumerator winsys.Enumerator
	Activator  winsys.Activator
	// ReachabilityURL is probed with a HEAD request for the
	// network-reachability capability.
	ReachabilityURL string
	HTTPClient      *http.Client
}

// BuiltinProbes returns the standard probe set. The list is fixed but
// extensible: callers may register more via Detector.RegisterProbe.
func BuiltinProbes(deps ProbeDeps) []Probe {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 3 * time.Second}
	}
	if deps.ReachabilityURL == "" {
		deps.ReachabilityURL = "https://www.google.com"
	}

	return []Probe{
		{Kind: models.CapProtocolControl, Run: probeProtocolControl(deps.Discoverer)},
		{Kind: models.CapSyntheticInput, Run: probeSyntheticInput(deps.Activator)},
		{Kind: models.CapWindowMgmt, Run: probeWindowManagement(deps.Enumerator)},
		{Kind: models.CapScreenshot, Run: probeScreenshot()},
		{Kind: models.CapNetwork, Run: probeNetwork(deps.HTTPClient, deps.ReachabilityURL)},
	}
}

// probeProtocolControl checks whether a debug endpoint answers its
// lightweight target listing. Only meaningful for browser contexts; a
// terminal or plain application can never speak the protocol.
func probeProtocolControl(d *transport.Discoverer) ProbeFunc {
	return func(ctx context.Context, target models.Context) (models.CapabilityRecord, error) {
		if !target.Type.IsBrowser() {
			return models.CapabilityRecord{Available: false, Method: models.MethodEndpointCheck}, nil
		}
		if d == nil {
			return models.CapabilityRecord{Available: false, Method: models.MethodEndpointCheck}, nil
		}

		ep, err := d.Discover(ctx)
		if err != nil {
			return models.CapabilityRecord{
				Available: false,
				Method:    models.MethodEndpointCheck,
				Details:   map[string]any{"error": err.Error()},
			}, nil
		}

		return models.CapabilityRecord{
			Available:  true,
			Confidence: confidenceProtocol,
			Method:     models.MethodEndpointCheck,
			Details:    map[string]any{"port": ep.Port, "tabs": ep.Tabs},
		}, nil
	}
}

// probeSyntheticInput checks whether the window accepts an activation
// command. This is the one probe with an observable side effect; the
// window it raises is the one being probed, so it is tolerable.
func probeSyntheticInput(a winsys.Activator) ProbeFunc {
	return func(ctx context.Context, target models.Context) (models.CapabilityRecord, error) {
		if a == nil {
			return models.CapabilityRecord{Available: false, Method: models.MethodCommandCheck}, nil
		}

		if err := a.Activate(ctx, target.ID); err != nil {
			return models.CapabilityRecord{
				Available: false,
				Method:    models.MethodCommandCheck,
				Details:   map[string]any{"error": err.Error()},
			}, nil
		}

		return models.CapabilityRecord{
			Available:  true,
			Confidence: confidenceInput,
			Method:     models.MethodCommandCheck,
			Details:    map[string]any{"windowId": target.ID},
		}, nil
	}
}

// probeWindowManagement checks that the window enumeration primitive works.
func probeWindowManagement(e winsys.Enumerator) ProbeFunc {
	return func(ctx context.Context, target models.Context) (models.CapabilityRecord, error) {
		if e == nil {
			return models.CapabilityRecord{Available: false, Method: models.MethodWindowCheck}, nil
		}

		windows, err := e.Windows(ctx)
		if err != nil {
			return models.CapabilityRecord{}, err
		}

		return models.CapabilityRecord{
			Available:  true,
			Confidence: confidenceWindowMgmt,
			Method:     models.MethodWindowCheck,
			Details:    map[string]any{"windows": len(windows)},
		}, nil
	}
}

// probeScreenshot checks for an installed capture tool.
func probeScreenshot() ProbeFunc {
	return func(ctx context.Context, target models.Context) (models.CapabilityRecord, error) {
		if !winsys.HasCaptureTool() {
			return models.CapabilityRecord{Available: false, Method: models.MethodCommandCheck}, nil
		}
		return models.CapabilityRecord{
			Available:  true,
			Confidence: confidenceScreenshot,
			Method:     models.MethodCommandCheck,
		}, nil
	}
}

// probeNetwork issues a HEAD request against a configured URL.
func probeNetwork(client *http.Client, url string) ProbeFunc {
	return func(ctx context.Context, target models.Context) (models.CapabilityRecord, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return models.CapabilityRecord{}, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return models.CapabilityRecord{
				Available: false,
				Method:    models.MethodEndpointCheck,
				Details:   map[string]any{"error": err.Error()},
			}, nil
		}
		resp.Body.Close()

		if resp.StatusCode >= 400 {
			return models.CapabilityRecord{
				Available: false,
				Method:    models.MethodEndpointCheck,
				Details:   map[string]any{"status": resp.StatusCode},
			}, nil
		}

		return models.CapabilityRecord{
			Available:  true,
			Confidence: confidenceNetwork,
			Method:     models.MethodEndpointCheck,
			Details:    map[string]any{"status": fmt.Sprintf("%d", resp.StatusCode)},
		}, nil
	}
}
