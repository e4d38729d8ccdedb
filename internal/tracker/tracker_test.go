package tracker

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdiallo/browserpilot/internal/winsys"
	"github.com/sdiallo/browserpilot/pkg/models"
)

// fakeDesktop is a scriptable enumerator/activator pair
type fakeDesktop struct {
	mu          sync.Mutex
	windows     []models.WindowDescriptor
	enumErr     error
	activateErr error
	activated   []string
}

func (d *fakeDesktop) Windows(ctx context.Context) ([]models.WindowDescriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enumErr != nil {
		return nil, d.enumErr
	}
	return append([]models.WindowDescriptor{}, d.windows...), nil
}

func (d *fakeDesktop) Activate(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.activateErr != nil {
		return d.activateErr
	}
	d.activated = append(d.activated, id)
	return nil
}

func (d *fakeDesktop) set(windows ...models.WindowDescriptor) {
	d.mu.Lock()
	d.windows = windows
	d.mu.Unlock()
}

func newTestTracker(d *fakeDesktop) *Tracker {
	return New(Options{
		Enumerator: d,
		Activator:  d,
		Logger:     log.New(io.Discard, "", 0),
	})
}

func chromeWindow() models.WindowDescriptor {
	return models.WindowDescriptor{ID: "w1", Title: "Example - Chrome", Class: "chrome"}
}

func TestScanCreatesAndClassifies(t *testing.T) {
	desktop := &fakeDesktop{}
	desktop.set(chromeWindow())

	tr := newTestTracker(desktop)

	result := tr.Scan(context.Background())
	require.False(t, result.NoOp)
	require.Len(t, result.Created, 1)
	assert.Equal(t, models.TypeBrowserChrome, result.Created[0].Type)
	assert.Equal(t, 1, result.Total)

	contexts := tr.List("")
	require.Len(t, contexts, 1)
	assert.Equal(t, "w1", contexts[0].ID)
	assert.Contains(t, contexts[0].Tags, "protocol-control")
}

func TestIdenticalScanIsNoOp(t *testing.T) {
	desktop := &fakeDesktop{}
	desktop.set(chromeWindow())

	tr := newTestTracker(desktop)
	subID, events := tr.Subscribe()
	defer tr.Unsubscribe(subID)

	first := tr.Scan(context.Background())
	require.Len(t, first.Created, 1)
	<-events // drain the create event

	second := tr.Scan(context.Background())
	assert.True(t, second.NoOp)
	assert.Empty(t, second.Created)
	assert.Empty(t, second.Updated)
	assert.Empty(t, second.Closed)

	select {
	case ev := <-events:
		t.Fatalf("no-op scan emitted %s event", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWindowDisappearanceClosesContext(t *testing.T) {
	desktop := &fakeDesktop{}
	desktop.set(chromeWindow())

	tr := newTestTracker(desktop)
	subID, events := tr.Subscribe()
	defer tr.Unsubscribe(subID)

	tr.Scan(context.Background())
	<-events

	desktop.set() // []
	result := tr.Scan(context.Background())
	require.Len(t, result.Closed, 1)
	assert.Equal(t, "w1", result.Closed[0].ID)
	assert.Empty(t, tr.List(""))

	closes := 0
	for {
		select {
		case ev := <-events:
			if ev.Type == models.EventClosed {
				closes++
			}
		case <-time.After(50 * time.Millisecond):
			assert.Equal(t, 1, closes, "close event must fire exactly once")
			return
		}
	}
}

func TestPinnedContextSurvivesDisappearance(t *testing.T) {
	desktop := &fakeDesktop{}
	desktop.set(
		models.WindowDescriptor{ID: "term1", Title: "user@host: ~", Class: "gnome-terminal-server.Gnome-terminal"},
		chromeWindow(),
	)

	tr := newTestTracker(desktop)
	tr.Scan(context.Background())
	require.True(t, tr.Pin("term1"))

	desktop.set()
	result := tr.Scan(context.Background())

	require.Len(t, result.Closed, 1)
	assert.Equal(t, "w1", result.Closed[0].ID)

	remaining := tr.List("")
	require.Len(t, remaining, 1)
	assert.Equal(t, "term1", remaining[0].ID)
	assert.True(t, remaining[0].Pinned)
}

func TestTitleChangeReclassifies(t *testing.T) {
	desktop := &fakeDesktop{}
	desktop.set(chromeWindow())

	tr := newTestTracker(desktop)
	subID, events := tr.Subscribe()
	defer tr.Unsubscribe(subID)

	tr.Scan(context.Background())
	<-events

	desktop.set(models.WindowDescriptor{ID: "w1", Title: "Some Video - YouTube - Chrome", Class: "chrome"})
	result := tr.Scan(context.Background())
	require.Len(t, result.Updated, 1)
	assert.Equal(t, "youtube", result.Updated[0].SiteTag)

	var sawTitleChange bool
	for {
		select {
		case ev := <-events:
			if ev.Type == models.EventTitleChanged {
				sawTitleChange = true
				assert.Equal(t, "Example - Chrome", ev.OldTitle)
			}
		case <-time.After(50 * time.Millisecond):
			assert.True(t, sawTitleChange)
			return
		}
	}
}

func TestEnumerationFailureDrainsContexts(t *testing.T) {
	desktop := &fakeDesktop{}
	desktop.set(chromeWindow())

	tr := newTestTracker(desktop)
	tr.Scan(context.Background())
	require.Len(t, tr.List(""), 1)

	desktop.mu.Lock()
	desktop.enumErr = errors.New("wmctrl: cannot open display")
	desktop.mu.Unlock()

	result := tr.Scan(context.Background())
	assert.Len(t, result.Closed, 1)
	assert.Empty(t, tr.List(""))
}

func TestSwitchToByID(t *testing.T) {
	desktop := &fakeDesktop{}
	desktop.set(chromeWindow())

	tr := newTestTracker(desktop)
	tr.Scan(context.Background())

	c, ok := tr.SwitchTo(context.Background(), "w1")
	require.True(t, ok)
	assert.True(t, c.Current)
	assert.Equal(t, 1, c.Activations)
	assert.Equal(t, []string{"w1"}, desktop.activated)

	current, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, "w1", current.ID)
}

func TestSwitchToByTitlePattern(t *testing.T) {
	desktop := &fakeDesktop{}
	desktop.set(
		models.WindowDescriptor{ID: "w1", Title: "Some Video - YouTube", Class: "chrome"},
		models.WindowDescriptor{ID: "w2", Title: "News Feed - Facebook", Class: "chrome"},
	)

	tr := newTestTracker(desktop)
	tr.Scan(context.Background())

	c, ok := tr.SwitchTo(context.Background(), "facebook")
	require.True(t, ok)
	assert.Equal(t, "w2", c.ID)
}

func TestSwitchToNoMatchReturnsFalse(t *testing.T) {
	desktop := &fakeDesktop{}
	desktop.set(chromeWindow())

	tr := newTestTracker(desktop)
	tr.Scan(context.Background())

	_, ok := tr.SwitchTo(context.Background(), "does-not-exist")
	assert.False(t, ok)
	_, hasCurrent := tr.Current()
	assert.False(t, hasCurrent)
}

func TestSwitchToActivationFailureKeepsCurrent(t *testing.T) {
	desktop := &fakeDesktop{}
	desktop.set(chromeWindow(), models.WindowDescriptor{ID: "w2", Title: "Other", Class: "firefox"})

	tr := newTestTracker(desktop)
	tr.Scan(context.Background())

	_, ok := tr.SwitchTo(context.Background(), "w1")
	require.True(t, ok)

	desktop.mu.Lock()
	desktop.activateErr = errors.New("window gone")
	desktop.mu.Unlock()

	_, ok = tr.SwitchTo(context.Background(), "w2")
	assert.False(t, ok)

	current, hasCurrent := tr.Current()
	require.True(t, hasCurrent)
	assert.Equal(t, "w1", current.ID)
}

func TestAtMostOneCurrentUnderConcurrentSwitches(t *testing.T) {
	desktop := &fakeDesktop{}
	desktop.set(
		chromeWindow(),
		models.WindowDescriptor{ID: "w2", Title: "B", Class: "firefox"},
		models.WindowDescriptor{ID: "w3", Title: "C", Class: "chrome"},
	)

	tr := newTestTracker(desktop)
	tr.Scan(context.Background())

	var wg sync.WaitGroup
	for _, id := range []string{"w1", "w2", "w3", "w1", "w2", "w3"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			tr.SwitchTo(context.Background(), id)
		}(id)
	}
	wg.Wait()

	currents := 0
	for _, c := range tr.List("") {
		if c.Current {
			currents++
		}
	}
	assert.Equal(t, 1, currents)
}

func TestListFilterAndOrder(t *testing.T) {
	desktop := &fakeDesktop{}
	desktop.set(
		chromeWindow(),
		models.WindowDescriptor{ID: "term1", Title: "sh", Class: "xterm.XTerm"},
	)

	tr := newTestTracker(desktop)
	tr.Scan(context.Background())

	terminals := tr.List(models.TypeTerminal)
	require.Len(t, terminals, 1)
	assert.Equal(t, "term1", terminals[0].ID)

	// Activation bumps last-active, so w1 sorts first.
	_, ok := tr.SwitchTo(context.Background(), "w1")
	require.True(t, ok)
	all := tr.List("")
	require.Len(t, all, 2)
	assert.Equal(t, "w1", all[0].ID)
}

func TestSubscriberOverflowDropsOldest(t *testing.T) {
	desktop := &fakeDesktop{}
	tr := newTestTracker(desktop)

	subID, events := tr.Subscribe()
	defer tr.Unsubscribe(subID)

	// Generate far more events than the subscriber buffer holds without
	// ever reading: churn windows in and out.
	for i := 0; i < subscriberBuffer*3; i++ {
		if i%2 == 0 {
			desktop.set(chromeWindow())
		} else {
			desktop.set()
		}
		tr.Scan(context.Background())
	}

	// The tracker must still be alive and the channel capped.
	assert.LessOrEqual(t, len(events), subscriberBuffer)
	result := tr.Scan(context.Background())
	assert.NotNil(t, result)
}

func TestScanLoopStartStop(t *testing.T) {
	desktop := &fakeDesktop{}
	desktop.set(chromeWindow())

	tr := New(Options{
		Enumerator: desktop,
		Activator:  desktop,
		Interval:   10 * time.Millisecond,
		Logger:     log.New(io.Discard, "", 0),
	})

	tr.Start(context.Background())
	defer tr.Stop()

	deadline := time.Now().Add(time.Second)
	for len(tr.List("")) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Len(t, tr.List(""), 1)

	tr.Stop()
	// Stop twice must not panic or hang.
	tr.Stop()
}

func TestStartImmediatelyFollowedByStop(t *testing.T) {
	desktop := &fakeDesktop{}

	tr := New(Options{
		Enumerator: desktop,
		Activator:  desktop,
		Interval:   10 * time.Millisecond,
		Logger:     log.New(io.Discard, "", 0),
	})

	// Stop may run before the loop goroutine is ever scheduled; the
	// loop must still close the done channel Start handed it, not the
	// struct field Stop has already cleared.
	for i := 0; i < 5000; i++ {
		tr.Start(context.Background())
		tr.Stop()
	}
}

func TestClassifierOrdering(t *testing.T) {
	c := &Classifier{}

	tests := []struct {
		name    string
		window  models.WindowDescriptor
		want    models.ContextType
		siteTag string
	}{
		{"terminal beats title", models.WindowDescriptor{Class: "gnome-terminal", Title: "chrome docs"}, models.TypeTerminal, ""},
		{"chrome", models.WindowDescriptor{Class: "google-chrome.Google-chrome", Title: "Example"}, models.TypeBrowserChrome, ""},
		{"chrome with youtube title", models.WindowDescriptor{Class: "chromium", Title: "Video - YouTube"}, models.TypeBrowserChrome, "youtube"},
		{"firefox", models.WindowDescriptor{Class: "navigator.Firefox", Title: "Page"}, models.TypeBrowserFirefox, ""},
		{"application", models.WindowDescriptor{Class: "gimp.Gimp", Title: "image"}, models.TypeApplication, ""},
		{"unknown", models.WindowDescriptor{Class: "", Title: "?"}, models.TypeUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, siteTag := c.Classify(tt.window)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.siteTag, siteTag)
		})
	}
}

func TestSiteTagsAreConfigurable(t *testing.T) {
	c := &Classifier{SiteTags: map[string]string{"wikipedia": "wiki"}}

	_, siteTag := c.Classify(models.WindowDescriptor{Class: "chrome", Title: "Go - Wikipedia"})
	assert.Equal(t, "wiki", siteTag)

	// Defaults no longer apply once a custom list is set.
	_, siteTag = c.Classify(models.WindowDescriptor{Class: "chrome", Title: "Video - YouTube"})
	assert.Equal(t, "", siteTag)
}

var _ winsys.Enumerator = (*fakeDesktop)(nil)
var _ winsys.Activator = (*fakeDesktop)(nil)
