// Package orchestrator wires the tracker, capability detector and
// control-mode selector behind one explicitly constructed facade with
// injected dependencies, so callers and tests never touch process-wide
// state.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sdiallo/browserpilot/internal/capability"
	"github.com/sdiallo/browserpilot/internal/config"
	"github.com/sdiallo/browserpilot/internal/selector"
	"github.com/sdiallo/browserpilot/internal/tracker"
	"github.com/sdiallo/browserpilot/internal/transport"
	"github.com/sdiallo/browserpilot/internal/winsys"
	"github.com/sdiallo/browserpilot/pkg/models"
)

// ErrContextNotFound is returned when an operation names a context id
// the tracker does not know.
var ErrContextNotFound = errors.New("context not found")

// Options carries the injected dependencies of an Orchestrator
type Options struct {
	Config     config.Config
	Enumerator winsys.Enumerator
	Activator  winsys.Activator
	Clock      func() time.Time
	Logger     *log.Logger

	// ExtraProbes are appended to the builtin probe set.
	ExtraProbes []capability.Probe
}

// Orchestrator is the public operation surface of the automation core.
type Orchestrator struct {
	cfg      config.Config
	trk      *tracker.Tracker
	detector *capability.Detector
	logger   *log.Logger
}

// New constructs an Orchestrator from its dependencies.
func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	trk := tracker.New(tracker.Options{
		Enumerator: opts.Enumerator,
		Activator:  opts.Activator,
		Classifier: &tracker.Classifier{SiteTags: opts.Config.SiteTags},
		Interval:   opts.Config.ScanInterval,
		Clock:      opts.Clock,
		Logger:     opts.Logger,
	})

	discoverer := transport.NewDiscoverer(opts.Config.DebugHost, opts.Config.DebugPorts, opts.Config.ProbeTimeout)

	probes := capability.BuiltinProbes(capability.ProbeDeps{
		Discoverer:      discoverer,
		Enumerator:      opts.Enumerator,
		Activator:       opts.Activator,
		ReachabilityURL: opts.Config.ReachabilityURL,
	})
	probes = append(probes, opts.ExtraProbes...)

	detector := capability.New(capability.Options{
		Probes:       probes,
		CacheTTL:     opts.Config.CacheTTL,
		ProbeTimeout: opts.Config.ProbeTimeout,
		Clock:        opts.Clock,
		Logger:       opts.Logger,
	})

	return &Orchestrator{
		cfg:      opts.Config,
		trk:      trk,
		detector: detector,
		logger:   opts.Logger,
	}
}

// Start launches the background scan loop.
func (o *Orchestrator) Start(ctx context.Context) {
	o.trk.Start(ctx)
}

// Stop shuts the scan loop down and waits for it.
func (o *Orchestrator) Stop() {
	o.trk.Stop()
}

// Scan runs one window scan and, when configured, pins the first
// terminal context it sees so notification output has somewhere to go.
func (o *Orchestrator) Scan(ctx context.Context) *tracker.ScanResult {
	result := o.trk.Scan(ctx)

	if o.cfg.PinTerminal {
		if _, pinned := o.trk.Pinned(); !pinned {
			for _, c := range o.trk.List(models.TypeTerminal) {
				if o.trk.Pin(c.ID) {
					o.logger.Printf("orchestrator: pinned terminal context %s", c.ID)
				}
				break
			}
		}
	}

	return result
}

// ListContexts returns tracked contexts, optionally filtered by type.
func (o *Orchestrator) ListContexts(typeFilter models.ContextType) []models.Context {
	return o.trk.List(typeFilter)
}

// Current returns the context currently believed foreground.
func (o *Orchestrator) Current() (models.Context, bool) {
	return o.trk.Current()
}

// SwitchTo activates a context by id or title pattern. A miss is an
// expected outcome: ok is false and nothing changes.
func (o *Orchestrator) SwitchTo(ctx context.Context, query string) (models.Context, bool) {
	return o.trk.SwitchTo(ctx, query)
}

// DetectCapabilities probes one tracked context.
func (o *Orchestrator) DetectCapabilities(ctx context.Context, contextID string) (*models.Profile, error) {
	c, ok := o.trk.Get(contextID)
	if !ok {
		return nil, ErrContextNotFound
	}
	return o.detector.Detect(ctx, c)
}

// SelectMode ranks (profile, mode) candidates for an operation across
// the named contexts, or across every tracked context when none are
// named. An empty list means nothing is usable; it is not an error.
func (o *Orchestrator) SelectMode(ctx context.Context, op models.OperationKind, contextIDs []string) ([]selector.Candidate, error) {
	var targets []models.Context
	if len(contextIDs) == 0 {
		targets = o.trk.List("")
	} else {
		for _, id := range contextIDs {
			c, ok := o.trk.Get(id)
			if !ok {
				return nil, ErrContextNotFound
			}
			targets = append(targets, c)
		}
	}

	var profiles []models.Profile
	for _, c := range targets {
		profile, err := o.detector.Detect(ctx, c)
		if err != nil {
			// Cancellation aborts the whole selection; anything else was
			// already absorbed inside the detector.
			return nil, err
		}
		profiles = append(profiles, *profile)
	}

	return selector.Select(op, profiles), nil
}

// ClearCapabilityCache drops every cached profile.
func (o *Orchestrator) ClearCapabilityCache() {
	o.detector.ClearCache()
}

// CacheStats reports capability cache occupancy.
func (o *Orchestrator) CacheStats() capability.CacheStats {
	return o.detector.Stats()
}

// Subscribe exposes the tracker's context event stream.
func (o *Orchestrator) Subscribe() (string, <-chan models.ContextEvent) {
	return o.trk.Subscribe()
}

// Unsubscribe removes a subscriber.
func (o *Orchestrator) Unsubscribe(id string) {
	o.trk.Unsubscribe(id)
}
