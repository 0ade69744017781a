package devices

import (
	"errors"
	"fmt"
	"os"
)

// Device access errors.
var (
	ErrNotExist      = errors.New("device does not exist")
	ErrNotCharDevice = errors.New("not a character device")
	ErrNotWritable   = errors.New("device is not writable")
)

// CheckAccess verifies path is a character device the current user can open
// for writing. The node is opened and closed again without writing.
func CheckAccess(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return fmt.Errorf("%w: %s", ErrNotCharDevice, path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotWritable, path, err)
	}
	return f.Close()
}
