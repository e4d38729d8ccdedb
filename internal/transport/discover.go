package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Target is one debuggable target reported by the browser's /json endpoint
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Endpoint is a discovered debug endpoint: the port that answered plus
// the first page target it exposes.
type Endpoint struct {
	Host   string
	Port   int
	Target Target
	Tabs   int
}

// Discoverer probes a fixed set of candidate debug ports and picks the
// first one exposing a page target. The port list is configuration; the
// selection rule is fixed.
type Discoverer struct {
	Host   string
	Ports  []int
	client *http.Client
}

// DefaultPorts are the debug ports commonly used by locally launched browsers.
var DefaultPorts = []int{9222, 9999, 9223, 9224}

// NewDiscoverer creates a Discoverer with a bounded per-probe HTTP timeout.
func NewDiscoverer(host string, ports []int, probeTimeout time.Duration) *Discoverer {
	if host == "" {
		host = "localhost"
	}
	if len(ports) == 0 {
		ports = DefaultPorts
	}
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	return &Discoverer{
		Host:   host,
		Ports:  ports,
		client: &http.Client{Timeout: probeTimeout},
	}
}

// Discover returns the first candidate endpoint that answers /json with at
// least one page target, or an error when no candidate responds.
func (d *Discoverer) Discover(ctx context.Context) (*Endpoint, error) {
	for _, port := range d.Ports {
		ep, err := d.probe(ctx, port)
		if err != nil {
			continue
		}
		return ep, nil
	}
	return nil, fmt.Errorf("no debug endpoint found on %s ports %v", d.Host, d.Ports)
}

// Probe checks a single port for a reachable debug endpoint.
func (d *Discoverer) Probe(ctx context.Context, port int) (*Endpoint, error) {
	return d.probe(ctx, port)
}

func (d *Discoverer) probe(ctx context.Context, port int) (*Endpoint, error) {
	url := fmt.Sprintf("http://%s:%d/json", d.Host, port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("debug endpoint %s returned %d", url, resp.StatusCode)
	}

	var targets []Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("decode targets from %s: %w", url, err)
	}

	// Target-selection rule: first page-type target wins.
	for _, t := range targets {
		if t.Type == "page" {
			return &Endpoint{Host: d.Host, Port: port, Target: t, Tabs: len(targets)}, nil
		}
	}

	return nil, fmt.Errorf("no page target on %s", url)
}
