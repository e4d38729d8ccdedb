package winsys

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sdiallo/browserpilot/pkg/models"
)

const commandTimeout = 5 * time.Second

// WMCtl enumerates and activates windows by shelling out to wmctrl,
// with an xdotool fallback for activation. Both tools are standard on
// X11 desktops; on a headless host every call simply fails and the
// tracker drains to an empty context set.
type WMCtl struct{}

// NewWMCtl returns the real window-manager-backed primitives.
func NewWMCtl() *WMCtl { return &WMCtl{} }

// Windows runs `wmctrl -l -x -p` and parses one descriptor per line.
func (w *WMCtl) Windows(ctx context.Context) ([]models.WindowDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "wmctrl", "-l", "-x", "-p").Output()
	if err != nil {
		return nil, fmt.Errorf("wmctrl list: %w", err)
	}

	return ParseWMCtlOutput(string(out)), nil
}

// ParseWMCtlOutput parses `wmctrl -l -x -p` output. Each line is
//
//	0x04000007  0 1234   navigator.Firefox  host Example Title
//
// id, desktop, pid, wm_class, hostname, then the title (which may
// contain spaces). Malformed lines are skipped.
func ParseWMCtlOutput(out string) []models.WindowDescriptor {
	var windows []models.WindowDescriptor

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}

		pid, _ := strconv.Atoi(fields[2])

		title := ""
		if len(fields) > 5 {
			title = strings.Join(fields[5:], " ")
		}

		windows = append(windows, models.WindowDescriptor{
			ID:    fields[0],
			Title: title,
			Class: fields[3],
			PID:   pid,
		})
	}

	return windows
}

// Activate raises a window with `wmctrl -i -a`, falling back to
// `xdotool windowactivate` when wmctrl refuses the id.
func (w *WMCtl) Activate(ctx context.Context, windowID string) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := exec.CommandContext(ctx, "wmctrl", "-i", "-a", windowID).Run(); err == nil {
		return nil
	}

	if err := exec.CommandContext(ctx, "xdotool", "windowactivate", windowID).Run(); err != nil {
		return fmt.Errorf("activate window %s: %w", windowID, err)
	}

	return nil
}

// HasCaptureTool reports whether a screenshot capture tool is on PATH.
// Used by the screenshot capability probe.
func HasCaptureTool() bool {
	for _, tool := range []string{"scrot", "import"} {
		if _, err := exec.LookPath(tool); err == nil {
			return true
		}
	}
	return false
}
