package systemd

import "testing"

func TestUnitName(t *testing.T) {
	tests := map[string]string{
		"pipewire":            "pipewire.service",
		"pipewire.socket":     "pipewire.socket",
		"wireplumber.service": "wireplumber.service",
	}
	for in, want := range tests {
		if got := unitName(in); got != want {
			t.Errorf("unitName(%q) = %q, want %q", in, got, want)
		}
	}
}
