package media

import (
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/pelletier/go-toml/v2"

	"github.com/pders01/photorama/internal/debuglog"
)

//go:embed viewers.toml
var viewersTOML []byte

// ViewerDefinition describes how an image viewer is invoked.
type ViewerDefinition struct {
	Description string   `toml:"description"`
	Platforms   []string `toml:"platforms"`
	Args        []string `toml:"args,omitempty"`
	ArgsDarwin  []string `toml:"args_darwin,omitempty"`
	ArgsLinux   []string `toml:"args_linux,omitempty"`
	ArgsWindows []string `toml:"args_windows,omitempty"`
}

type PlatformConfig struct {
	DefaultOpener string   `toml:"default_opener"`
	Viewers       []string `toml:"viewers"`
}

type ViewersConfig struct {
	Platforms map[string]PlatformConfig   `toml:"platforms"`
	Viewers   map[string]ViewerDefinition `toml:"viewers"`
}

// Registry holds the viewer definitions for one platform.
type Registry struct {
	goos     string
	platform PlatformConfig
	viewers  map[string]ViewerDefinition
}

// NewRegistry loads the built-in definitions and merges the user's
// ~/.config/photorama/viewers.toml when present.
func NewRegistry() (*Registry, error) {
	r, err := parseRegistry(viewersTOML, runtime.GOOS)
	if err != nil {
		return nil, err
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "photorama", "viewers.toml")
		if data, err := os.ReadFile(path); err == nil {
			if err := r.merge(data); err != nil {
				debuglog.Warnf("ignoring %s: %v", path, err)
			}
		}
	}

	return r, nil
}

func parseRegistry(data []byte, goos string) (*Registry, error) {
	var cfg ViewersConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing viewers.toml: %w", err)
	}

	r := &Registry{
		goos:     goos,
		platform: cfg.Platforms[goos],
		viewers:  cfg.Viewers,
	}
	if r.viewers == nil {
		r.viewers = make(map[string]ViewerDefinition)
	}
	return r, nil
}

// merge overlays user definitions; a platform entry replaces the built-in one.
func (r *Registry) merge(data []byte) error {
	var cfg ViewersConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	for name, def := range cfg.Viewers {
		r.viewers[name] = def
	}
	if p, ok := cfg.Platforms[r.goos]; ok {
		if p.DefaultOpener == "" {
			p.DefaultOpener = r.platform.DefaultOpener
		}
		r.platform = p
	}
	return nil
}

// Candidates lists viewers for this platform in preference order.
func (r *Registry) Candidates() []string {
	return slices.Clone(r.platform.Viewers)
}

func (r *Registry) DefaultOpener() string {
	return r.platform.DefaultOpener
}

// Command builds the invocation of viewer for path.
func (r *Registry) Command(viewer, path string) (*exec.Cmd, error) {
	def, ok := r.viewers[viewer]
	if !ok {
		return exec.Command(viewer, path), nil
	}
	if !slices.Contains(def.Platforms, r.goos) {
		return nil, fmt.Errorf("%s not supported on %s", viewer, r.goos)
	}

	args := append(slices.Clone(r.args(def)), path)
	return exec.Command(viewer, args...), nil
}

func (r *Registry) args(def ViewerDefinition) []string {
	switch r.goos {
	case "darwin":
		if len(def.ArgsDarwin) > 0 {
			return def.ArgsDarwin
		}
	case "linux":
		if len(def.ArgsLinux) > 0 {
			return def.ArgsLinux
		}
	case "windows":
		if len(def.ArgsWindows) > 0 {
			return def.ArgsWindows
		}
	}
	return def.Args
}
