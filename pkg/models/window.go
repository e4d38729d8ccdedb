package models

// WindowDescriptor is a raw OS-level window fact as reported by the
// enumeration primitive. PID and geometry are optional; not every
// window manager reports them.
type WindowDescriptor struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Class    string `json:"class"`
	PID      int    `json:"pid,omitempty"`
	Geometry string `json:"geometry,omitempty"`
}

// Equal reports whether two descriptors carry identical observable state.
// Used by the tracker to short-circuit scans when nothing changed.
func (w WindowDescriptor) Equal(other WindowDescriptor) bool {
	return w == other
}
