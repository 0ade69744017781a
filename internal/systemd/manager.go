package systemd

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager queries systemd units over D-Bus.
type Manager struct {
	conn *dbus.Conn
}

// NewManager creates a new systemd manager with a user-level D-Bus connection.
func NewManager(ctx context.Context) (*Manager, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, err
	}
	return &Manager{conn: conn}, nil
}

// ActiveState returns the ActiveState property of a unit ("active",
// "inactive", "failed", ...). A bare name gets the ".service" suffix.
func (m *Manager) ActiveState(ctx context.Context, unit string) (string, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, unitName(unit), "ActiveState")
	if err != nil {
		return "", err
	}
	state, ok := prop.Value.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected ActiveState type %s", prop.Value.Signature())
	}
	return state, nil
}

// IsActive reports whether the unit is active.
func (m *Manager) IsActive(ctx context.Context, unit string) (bool, error) {
	state, err := m.ActiveState(ctx, unit)
	if err != nil {
		return false, err
	}
	return state == "active", nil
}

// Close cleanly closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

func unitName(unit string) string {
	if strings.Contains(unit, ".") {
		return unit
	}
	return unit + ".service"
}
