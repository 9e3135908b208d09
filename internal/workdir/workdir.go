// Package workdir manages the per-process temporary working directory
// where the linux-tkg clone, kernel sources and builds live.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"

	"kforge/internal/log"
)

// Dir is a temporary working directory. It is removed on Cleanup unless
// the user asked to keep it.
type Dir struct {
	root string
	keep bool
}

// New creates the working directory under the system temp dir, keyed by
// pid so concurrent instances never collide.
func New() (*Dir, error) {
	root := filepath.Join(os.TempDir(), fmt.Sprintf("kforge-%d", os.Getpid()))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir %s: %w", root, err)
	}
	log.Info(log.CatConfig, "work dir ready", "path", root)
	return &Dir{root: root}, nil
}

// At wraps an existing directory, for tests and for user-chosen roots.
func At(root string) *Dir {
	return &Dir{root: root}
}

// Root is the working directory itself.
func (d *Dir) Root() string { return d.root }

// LinuxTkg is where the linux-tkg working copy is cloned.
func (d *Dir) LinuxTkg() string { return filepath.Join(d.root, "linux-tkg") }

// KernelSources is where downloaded kernel trees are extracted.
func (d *Dir) KernelSources() string { return filepath.Join(d.root, "kernel-sources") }

// CustomizationCfg is the config file inside the linux-tkg working copy.
func (d *Dir) CustomizationCfg() string {
	return filepath.Join(d.LinuxTkg(), "customization.cfg")
}

// SetKeep marks the directory to survive Cleanup.
func (d *Dir) SetKeep(keep bool) { d.keep = keep }

// Keep reports whether the directory will be preserved.
func (d *Dir) Keep() bool { return d.keep }

// LinuxTkgReady reports whether a usable linux-tkg working copy is
// present.
func (d *Dir) LinuxTkgReady() bool {
	_, err := os.Stat(d.CustomizationCfg())
	return err == nil
}

// Cleanup removes the directory and everything in it unless keep is set.
func (d *Dir) Cleanup() error {
	if d.keep {
		log.Info(log.CatConfig, "keeping work dir", "path", d.root)
		return nil
	}
	if err := os.RemoveAll(d.root); err != nil {
		return fmt.Errorf("cleaning up %s: %w", d.root, err)
	}
	log.Debug(log.CatConfig, "work dir removed", "path", d.root)
	return nil
}
