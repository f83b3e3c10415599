package media

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pders01/photorama/internal/config"
	"github.com/pders01/photorama/internal/debuglog"
)

// ErrNoViewer is returned when no image viewer is configured or installed.
var ErrNoViewer = errors.New("no image viewer found")

// Launcher opens cached image files in an external viewer.
type Launcher struct {
	viewer   string
	args     []string
	custom   bool
	registry *Registry
	start    func(*exec.Cmd) error
}

// NewLauncher uses viewer.command when set and otherwise the first
// installed viewer for the platform.
func NewLauncher(cfg *config.Config) (*Launcher, error) {
	registry, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	return newLauncher(cfg.Viewer.Command, registry), nil
}

func newLauncher(command string, registry *Registry) *Launcher {
	l := &Launcher{registry: registry, start: startDetached}

	if fields := strings.Fields(command); len(fields) > 0 {
		l.viewer, l.args, l.custom = fields[0], fields[1:], true
		return l
	}

	l.viewer = findCommand(registry.Candidates()...)
	if l.viewer == "" {
		l.viewer = registry.DefaultOpener()
	}
	return l
}

// Viewer names the program Open will run.
func (l *Launcher) Viewer() string {
	return l.viewer
}

// Open starts the viewer on path without waiting for it to exit.
func (l *Launcher) Open(path string) error {
	if l.viewer == "" {
		return ErrNoViewer
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("opening image: %w", err)
	}

	var cmd *exec.Cmd
	if l.custom {
		args := append(append([]string{}, l.args...), path)
		cmd = exec.Command(l.viewer, args...)
	} else {
		var err error
		if cmd, err = l.registry.Command(l.viewer, path); err != nil {
			cmd = exec.Command(l.viewer, path)
		}
	}

	debuglog.Debugf("opening %s with %s", path, l.viewer)
	if err := l.start(cmd); err != nil {
		return fmt.Errorf("failed to start %s: %w", l.viewer, err)
	}
	return nil
}

// startDetached runs GUI viewers in the background and reaps them.
func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

func findCommand(commands ...string) string {
	for _, cmd := range commands {
		if _, err := exec.LookPath(cmd); err == nil {
			return cmd
		}
	}
	return ""
}
