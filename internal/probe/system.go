package probe

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/smazurov/camloop/internal/systemd"
)

// System is the read-only view of the host that requirement checks inspect.
type System interface {
	// Run executes argv and returns its combined output. A binary that
	// cannot be found or a non-zero exit is an error.
	Run(ctx context.Context, argv []string) ([]byte, error)
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
	Glob(pattern string) ([]string, error)
	// ServiceActive queries the user service manager. An error means the
	// manager itself could not be asked.
	ServiceActive(ctx context.Context, unit string) (bool, error)
}

// OS inspects the real host.
type OS struct{}

// Run implements System.
func (OS) Run(ctx context.Context, argv []string) ([]byte, error) {
	return exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
}

// ReadFile implements System.
func (OS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Stat implements System.
func (OS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Glob implements System.
func (OS) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

// ServiceActive implements System over the user D-Bus session.
func (OS) ServiceActive(ctx context.Context, unit string) (bool, error) {
	m, err := systemd.NewManager(ctx)
	if err != nil {
		return false, err
	}
	defer m.Close()
	return m.IsActive(ctx, unit)
}
