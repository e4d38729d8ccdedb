package tracker

import (
	"strings"

	"github.com/sdiallo/browserpilot/pkg/models"
)

// Classifier assigns a context type to a window descriptor. Structural
// classification (terminal vs browser vs application) is fixed; the
// site-tag refinement is configuration so the core is not tied to one
// browser's title conventions.
type Classifier struct {
	// SiteTags maps a lowercase title marker to a site tag, e.g.
	// "youtube" -> "youtube". First match in map iteration wins, so
	// markers should be mutually exclusive.
	SiteTags map[string]string
}

// DefaultSiteTags covers the sites the original operators cared about.
var DefaultSiteTags = map[string]string{
	"youtube":  "youtube",
	"facebook": "facebook",
	"google":   "search",
}

var terminalClassMarkers = []string{"terminal", "xterm", "konsole", "alacritty"}

// Classify returns the context type and optional site tag for a window.
// Ordered, first match wins: terminal class markers, then browser vendor
// markers (refined by title site markers), then any non-empty class is
// an application, and everything else is unknown.
func (c *Classifier) Classify(w models.WindowDescriptor) (models.ContextType, string) {
	class := strings.ToLower(w.Class)

	for _, marker := range terminalClassMarkers {
		if strings.Contains(class, marker) {
			return models.TypeTerminal, ""
		}
	}

	if strings.Contains(class, "chrome") || strings.Contains(class, "chromium") {
		return models.TypeBrowserChrome, c.siteTag(w.Title)
	}
	if strings.Contains(class, "firefox") || strings.Contains(class, "navigator") {
		return models.TypeBrowserFirefox, c.siteTag(w.Title)
	}

	if class != "" && class != "n/a" {
		return models.TypeApplication, ""
	}
	return models.TypeUnknown, ""
}

func (c *Classifier) siteTag(title string) string {
	tags := c.SiteTags
	if tags == nil {
		tags = DefaultSiteTags
	}
	lower := strings.ToLower(title)
	for marker, tag := range tags {
		if strings.Contains(lower, marker) {
			return tag
		}
	}
	return ""
}

// CapabilityTags derives the default capability tags for a classified
// context, letting the detector and selector attach defaults without
// re-probing.
func CapabilityTags(t models.ContextType, siteTag string) []string {
	var tags []string
	if t.IsBrowser() {
		tags = append(tags, "navigation", "scroll")
		if t == models.TypeBrowserChrome {
			tags = append(tags, "protocol-control")
		}
	}
	if siteTag != "" {
		tags = append(tags, "site:"+siteTag)
	}
	if t == models.TypeTerminal {
		tags = append(tags, "shell")
	}
	return tags
}
