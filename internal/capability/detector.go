package capability

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sdiallo/browserpilot/pkg/models"
)

const maxConcurrentProbes = 4

// ProbeFunc checks one capability of a context. It must be side-effect
// free beyond the narrow check it performs and must return within the
// ctx deadline; an error is recovered into "unavailable", never
// surfaced past the detector.
type ProbeFunc func(ctx context.Context, target models.Context) (models.CapabilityRecord, error)

// Probe pairs a capability kind with its check
type Probe struct {
	Kind models.CapabilityKind
	Run  ProbeFunc
}

type cacheEntry struct {
	profile models.Profile
	at      time.Time
}

// CacheStats reports cache occupancy
type CacheStats struct {
	Items int           `json:"items"`
	TTL   time.Duration `json:"ttl"`
}

// Options configures a Detector
type Options struct {
	Probes       []Probe
	CacheTTL     time.Duration
	ProbeTimeout time.Duration
	Clock        func() time.Time
	Logger       *log.Logger
}

// Detector probes contexts for capabilities and caches the resulting
// profiles. Probes for one profile run concurrently and independently:
// one probe timing out or failing never delays or fails the rest.
type Detector struct {
	probes       []Probe
	cacheTTL     time.Duration
	probeTimeout time.Duration
	clock        func() time.Time
	logger       *log.Logger
	sem          *semaphore.Weighted

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New creates a Detector around a probe list.
func New(opts Options) *Detector {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Detector{
		probes:       opts.Probes,
		cacheTTL:     opts.CacheTTL,
		probeTimeout: opts.ProbeTimeout,
		clock:        opts.Clock,
		logger:       opts.Logger,
		sem:          semaphore.NewWeighted(maxConcurrentProbes),
		cache:        make(map[string]cacheEntry),
	}
}

// RegisterProbe appends a probe to the fixed list. Meant for wiring at
// construction time, before Detect is called.
func (d *Detector) RegisterProbe(kind models.CapabilityKind, run ProbeFunc) {
	d.probes = append(d.probes, Probe{Kind: kind, Run: run})
}

// Detect returns the capability profile of a context. A cached profile
// younger than the TTL is returned without re-probing; a stale one is
// treated as absent and replaced. A batch where every probe fails still
// yields a valid all-unavailable profile.
func (d *Detector) Detect(ctx context.Context, target models.Context) (*models.Profile, error) {
	if cached, ok := d.cached(target.ID); ok {
		return cached, nil
	}

	now := d.clock()
	records := make([]models.CapabilityRecord, len(d.probes))

	var wg sync.WaitGroup
	for i, probe := range d.probes {
		wg.Add(1)
		go func(i int, probe Probe) {
			defer wg.Done()
			records[i] = d.runProbe(ctx, probe, target)
		}(i, probe)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		// Caller cancelled mid-batch; do not cache a half-probed profile.
		return nil, err
	}

	records = append(records, deriveHybrid(records, now), deriveScriptExecution(records, now))

	profile := models.Profile{
		ContextID:    target.ID,
		ContextType:  target.Type,
		Capabilities: records,
		LastActive:   target.LastActive,
		DetectedAt:   now,
	}
	profile.ComputeScore()

	d.mu.Lock()
	d.cache[target.ID] = cacheEntry{profile: profile, at: now}
	d.mu.Unlock()

	return &profile, nil
}

func (d *Detector) runProbe(ctx context.Context, probe Probe, target models.Context) models.CapabilityRecord {
	unavailable := func(detail string) models.CapabilityRecord {
		return models.CapabilityRecord{
			Kind:      probe.Kind,
			Available: false,
			Method:    models.MethodProbeError,
			Details:   map[string]any{"error": detail},
			CheckedAt: d.clock(),
		}
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return unavailable(err.Error())
	}
	defer d.sem.Release(1)

	probeCtx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	record, err := probe.Run(probeCtx, target)
	if err != nil {
		// Probe failure is absorbed: logged, recorded as unavailable,
		// never fatal to the batch.
		d.logger.Printf("capability: probe %s on %s failed: %v", probe.Kind, target.ID, err)
		rec := unavailable(err.Error())
		rec.Kind = probe.Kind
		return rec
	}

	record.Kind = probe.Kind
	record.CheckedAt = d.clock()
	if !record.Available {
		record.Confidence = 0
	}
	return record
}

// deriveHybrid marks hybrid control available when both protocol and
// synthetic-input control are, with the weaker confidence of the two.
func deriveHybrid(records []models.CapabilityRecord, now time.Time) models.CapabilityRecord {
	protocol := find(records, models.CapProtocolControl)
	input := find(records, models.CapSyntheticInput)

	available := protocol.Available && input.Available
	confidence := 0.0
	if available {
		confidence = min(protocol.Confidence, input.Confidence)
	}

	return models.CapabilityRecord{
		Kind:       models.CapHybridControl,
		Available:  available,
		Confidence: confidence,
		Method:     models.MethodDerived,
		Details: map[string]any{
			"protocol":       protocol.Available,
			"syntheticInput": input.Available,
		},
		CheckedAt: now,
	}
}

// deriveScriptExecution rides on protocol control: script evaluation is
// exactly as available as the debugging protocol.
func deriveScriptExecution(records []models.CapabilityRecord, now time.Time) models.CapabilityRecord {
	protocol := find(records, models.CapProtocolControl)

	return models.CapabilityRecord{
		Kind:       models.CapScriptExec,
		Available:  protocol.Available,
		Confidence: protocol.Confidence,
		Method:     models.MethodDerived,
		Details:    map[string]any{"viaProtocol": protocol.Available},
		CheckedAt:  now,
	}
}

func find(records []models.CapabilityRecord, kind models.CapabilityKind) models.CapabilityRecord {
	for _, r := range records {
		if r.Kind == kind {
			return r
		}
	}
	return models.CapabilityRecord{Kind: kind}
}

func (d *Detector) cached(contextID string) (*models.Profile, bool) {
	d.mu.RLock()
	entry, ok := d.cache[contextID]
	d.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if d.clock().Sub(entry.at) >= d.cacheTTL {
		// Stale: evict lazily and re-probe.
		d.mu.Lock()
		if current, still := d.cache[contextID]; still && current.at.Equal(entry.at) {
			delete(d.cache, contextID)
		}
		d.mu.Unlock()
		return nil, false
	}

	profile := entry.profile
	return &profile, true
}

// ClearCache drops all cached profiles. Used when the caller knows the
// environment changed materially, e.g. a browser was relaunched.
func (d *Detector) ClearCache() {
	d.mu.Lock()
	d.cache = make(map[string]cacheEntry)
	d.mu.Unlock()
	d.logger.Printf("capability: cache cleared")
}

// Stats reports current cache occupancy.
func (d *Detector) Stats() CacheStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return CacheStats{Items: len(d.cache), TTL: d.cacheTTL}
}
