package models

import "time"

// ContextType classifies what kind of window a context wraps
type ContextType string

const (
	TypeTerminal       ContextType = "terminal"
	TypeBrowserChrome  ContextType = "browser-chrome"
	TypeBrowserFirefox ContextType = "browser-firefox"
	TypeApplication    ContextType = "application"
	TypeUnknown        ContextType = "unknown"
)

// IsBrowser reports whether the type denotes a browser window of any vendor.
func (t ContextType) IsBrowser() bool {
	return t == TypeBrowserChrome || t == TypeBrowserFirefox
}

// Context is the orchestrator's enriched view of one OS window.
// The context ID is the underlying window ID.
type Context struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Class       string      `json:"class"`
	PID         int         `json:"pid,omitempty"`
	Type        ContextType `json:"type"`
	SiteTag     string      `json:"siteTag,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Current     bool        `json:"current"`
	Pinned      bool        `json:"pinned"`
	LastActive  time.Time   `json:"lastActive"`
	Activations int         `json:"activations"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// HasTag reports whether the context carries a derived capability tag.
func (c *Context) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ContextEventType identifies a lifecycle transition of a tracked context
type ContextEventType string

const (
	EventCreated      ContextEventType = "created"
	EventUpdated      ContextEventType = "updated"
	EventTitleChanged ContextEventType = "title-changed"
	EventClosed       ContextEventType = "closed"
	EventActivated    ContextEventType = "activated"
)

// ContextEvent is delivered to tracker subscribers on lifecycle transitions
type ContextEvent struct {
	Type     ContextEventType `json:"type"`
	Context  Context          `json:"context"`
	OldTitle string           `json:"oldTitle,omitempty"`
	At       time.Time        `json:"at"`
}
