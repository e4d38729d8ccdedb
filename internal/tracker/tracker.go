package tracker

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sdiallo/browserpilot/internal/winsys"
	"github.com/sdiallo/browserpilot/pkg/models"
)

const subscriberBuffer = 32

// ScanResult summarizes one pass over the OS window list
type ScanResult struct {
	NoOp    bool             `json:"noOp"`
	Created []models.Context `json:"created,omitempty"`
	Updated []models.Context `json:"updated,omitempty"`
	Closed  []models.Context `json:"closed,omitempty"`
	Total   int              `json:"total"`
}

// Options configures a Tracker
type Options struct {
	Enumerator winsys.Enumerator
	Activator  winsys.Activator
	Classifier *Classifier
	Interval   time.Duration
	Clock      func() time.Time
	Logger     *log.Logger
}

// Tracker maintains the live set of window contexts: it scans the OS
// window list, classifies new windows, expires vanished ones, and keeps
// the single "current" pointer. The context set and the current pointer
// are only ever mutated under one mutex, shared by the scan loop and
// explicit switch-to calls.
type Tracker struct {
	enum       winsys.Enumerator
	activator  winsys.Activator
	classifier *Classifier
	interval   time.Duration
	clock      func() time.Time
	logger     *log.Logger

	mu        sync.Mutex
	contexts  map[string]*models.Context
	currentID string
	pinnedID  string
	lastScan  []models.WindowDescriptor
	scanning  bool

	subMu sync.Mutex
	subs  map[string]chan models.ContextEvent

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New creates a Tracker. Enumerator and Activator are required; the
// remaining options default sensibly.
func New(opts Options) *Tracker {
	if opts.Classifier == nil {
		opts.Classifier = &Classifier{}
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Tracker{
		enum:       opts.Enumerator,
		activator:  opts.Activator,
		classifier: opts.Classifier,
		interval:   opts.Interval,
		clock:      opts.Clock,
		logger:     opts.Logger,
		contexts:   make(map[string]*models.Context),
		subs:       make(map[string]chan models.ContextEvent),
	}
}

// Start launches the background scan loop. A tick that arrives while a
// scan is still running is skipped, never queued.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loopCancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.loopCancel = cancel
	t.loopDone = done

	// The goroutine works on captured values only: Stop nils the struct
	// fields under t.mu, so the loop must never read them.
	go t.loop(loopCtx, done)
}

// Stop cancels the scan loop and waits for it to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.loopCancel
	done := t.loopDone
	t.loopCancel = nil
	t.loopDone = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (t *Tracker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			busy := t.scanning
			if !busy {
				t.scanning = true
			}
			t.mu.Unlock()

			if busy {
				continue
			}

			if _, err := t.scan(ctx); err != nil {
				t.logger.Printf("tracker: scan failed: %v", err)
			}

			t.mu.Lock()
			t.scanning = false
			t.mu.Unlock()
		}
	}
}

// Scan enumerates the OS windows once and reconciles the context set.
// An enumeration failure is recovered as "observed zero windows": it is
// logged, drains all non-pinned contexts, and never fails the caller.
func (t *Tracker) Scan(ctx context.Context) *ScanResult {
	result, err := t.scan(ctx)
	if err != nil {
		t.logger.Printf("tracker: scan failed: %v", err)
	}
	return result
}

func (t *Tracker) scan(ctx context.Context) (*ScanResult, error) {
	windows, err := t.enum.Windows(ctx)
	if err != nil {
		t.logger.Printf("tracker: window enumeration failed, treating as empty: %v", err)
		windows = nil
		err = nil
	}

	now := t.clock()
	var events []models.ContextEvent

	t.mu.Lock()

	if snapshotsEqual(t.lastScan, windows) {
		total := len(t.contexts)
		t.mu.Unlock()
		return &ScanResult{NoOp: true, Total: total}, nil
	}

	result := &ScanResult{}
	seen := make(map[string]bool, len(windows))

	for _, w := range windows {
		seen[w.ID] = true

		existing, ok := t.contexts[w.ID]
		if !ok {
			ctxType, siteTag := t.classifier.Classify(w)
			c := &models.Context{
				ID:         w.ID,
				Title:      w.Title,
				Class:      w.Class,
				PID:        w.PID,
				Type:       ctxType,
				SiteTag:    siteTag,
				Tags:       CapabilityTags(ctxType, siteTag),
				LastActive: now,
				CreatedAt:  now,
			}
			t.contexts[w.ID] = c
			result.Created = append(result.Created, *c)
			events = append(events, models.ContextEvent{Type: models.EventCreated, Context: *c, At: now})
			continue
		}

		titleChanged := existing.Title != w.Title
		oldTitle := existing.Title
		existing.Title = w.Title
		existing.Class = w.Class
		existing.PID = w.PID
		existing.LastActive = now

		if titleChanged {
			// Classification may depend on title substrings, so rerun it.
			ctxType, siteTag := t.classifier.Classify(w)
			existing.Type = ctxType
			existing.SiteTag = siteTag
			existing.Tags = CapabilityTags(ctxType, siteTag)
			events = append(events, models.ContextEvent{
				Type:     models.EventTitleChanged,
				Context:  *existing,
				OldTitle: oldTitle,
				At:       now,
			})
		}

		result.Updated = append(result.Updated, *existing)
		events = append(events, models.ContextEvent{Type: models.EventUpdated, Context: *existing, At: now})
	}

	for id, c := range t.contexts {
		if seen[id] || id == t.pinnedID {
			continue
		}
		delete(t.contexts, id)
		if t.currentID == id {
			t.currentID = ""
		}
		result.Closed = append(result.Closed, *c)
		events = append(events, models.ContextEvent{Type: models.EventClosed, Context: *c, At: now})
	}

	t.lastScan = windows
	result.Total = len(t.contexts)
	t.mu.Unlock()

	t.publish(events)

	return result, nil
}

func snapshotsEqual(a, b []models.WindowDescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// List returns a snapshot of tracked contexts, optionally filtered by
// type, sorted most recently active first.
func (t *Tracker) List(typeFilter models.ContextType) []models.Context {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []models.Context
	for _, c := range t.contexts {
		if typeFilter != "" && c.Type != typeFilter {
			continue
		}
		copy := *c
		copy.Current = c.ID == t.currentID
		copy.Pinned = c.ID == t.pinnedID
		out = append(out, copy)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActive.Equal(out[j].LastActive) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out
}

// Get returns a copy of one context by id.
func (t *Tracker) Get(id string) (models.Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.contexts[id]
	if !ok {
		return models.Context{}, false
	}
	copy := *c
	copy.Current = c.ID == t.currentID
	copy.Pinned = c.ID == t.pinnedID
	return copy, true
}

// Current returns the context currently believed foreground, if any.
func (t *Tracker) Current() (models.Context, bool) {
	t.mu.Lock()
	id := t.currentID
	t.mu.Unlock()
	if id == "" {
		return models.Context{}, false
	}
	return t.Get(id)
}

// Pin exempts one context from automatic closure when its window
// disappears from a scan. Pinning replaces any previous pin.
func (t *Tracker) Pin(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.contexts[id]; !ok {
		return false
	}
	t.pinnedID = id
	return true
}

// Pinned returns the id of the pinned context, if any.
func (t *Tracker) Pinned() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pinnedID, t.pinnedID != ""
}

// Unpin removes the closure exemption.
func (t *Tracker) Unpin() {
	t.mu.Lock()
	t.pinnedID = ""
	t.mu.Unlock()
}

// SwitchTo activates a context by exact id or, failing that, by scoring
// title/type keyword matches against the query. On activation success
// the context becomes current (clearing the previous holder) and an
// activation event fires; on failure the current pointer is untouched
// and ok is false. "No match" is an expected outcome, not an error.
func (t *Tracker) SwitchTo(ctx context.Context, query string) (models.Context, bool) {
	t.mu.Lock()
	target, ok := t.contexts[query]
	if !ok {
		target = t.matchByKeywordsLocked(query)
	}
	if target == nil {
		t.mu.Unlock()
		return models.Context{}, false
	}
	id := target.ID
	t.mu.Unlock()

	if err := t.activator.Activate(ctx, id); err != nil {
		t.logger.Printf("tracker: activate %s failed: %v", id, err)
		return models.Context{}, false
	}

	now := t.clock()

	t.mu.Lock()
	c, ok := t.contexts[id]
	if !ok {
		// Vanished between match and activation.
		t.mu.Unlock()
		return models.Context{}, false
	}
	t.currentID = id
	c.LastActive = now
	c.Activations++
	copy := *c
	copy.Current = true
	copy.Pinned = c.ID == t.pinnedID
	t.mu.Unlock()

	t.publish([]models.ContextEvent{{Type: models.EventActivated, Context: copy, At: now}})

	return copy, true
}

// matchByKeywordsLocked scores contexts by how many query keywords occur
// in their title or type. Caller holds t.mu.
func (t *Tracker) matchByKeywordsLocked(query string) *models.Context {
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil
	}

	var best *models.Context
	bestScore := 0
	for _, c := range t.contexts {
		title := strings.ToLower(c.Title)
		ctype := strings.ToLower(string(c.Type))

		score := 0
		for _, kw := range keywords {
			if strings.Contains(title, kw) || strings.Contains(ctype, kw) {
				score++
			}
		}
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

// Subscribe registers an event stream. The channel is bounded; when a
// subscriber cannot keep up the oldest queued event is dropped and the
// drop is logged.
func (t *Tracker) Subscribe() (string, <-chan models.ContextEvent) {
	id := uuid.New().String()
	ch := make(chan models.ContextEvent, subscriberBuffer)

	t.subMu.Lock()
	t.subs[id] = ch
	t.subMu.Unlock()

	return id, ch
}

// Unsubscribe removes and closes a subscriber stream.
func (t *Tracker) Unsubscribe(id string) {
	t.subMu.Lock()
	ch, ok := t.subs[id]
	if ok {
		delete(t.subs, id)
	}
	t.subMu.Unlock()

	if ok {
		close(ch)
	}
}

func (t *Tracker) publish(events []models.ContextEvent) {
	if len(events) == 0 {
		return
	}

	t.subMu.Lock()
	defer t.subMu.Unlock()

	for subID, ch := range t.subs {
		for _, ev := range events {
			select {
			case ch <- ev:
			default:
				select {
				case dropped := <-ch:
					t.logger.Printf("tracker: subscriber %s lagging, dropped %s event", subID, dropped.Type)
				default:
				}
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}
}
