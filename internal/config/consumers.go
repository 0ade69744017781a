package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/camloop/internal/consumer"
)

// ConsumersVersion is the current consumers file version.
const ConsumersVersion = 1

// ErrNoConsumer is returned by Lookup for an unknown consumer name.
var ErrNoConsumer = errors.New("consumer not defined")

// ConsumersFile is the on-disk layout of a consumers file:
//
//	version = 1
//
//	[consumers.desk]
//	kind = "loopback"
//	source_url = "udp://@:8554"
//
//	[consumers.desk.loopback]
//	device_path = "/dev/video42"
type ConsumersFile struct {
	Version   int                        `toml:"version"`
	Consumers map[string]consumer.Config `toml:"consumers"`
}

// LoadConsumers reads a consumers file. Every entry starts from the defaults
// of its kind, so a file only needs to name what differs. Entries are
// validated; the first invalid one fails the whole load.
func LoadConsumers(path string) (map[string]consumer.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read consumers config: %w", err)
	}
	return ParseConsumers(data)
}

// ParseConsumers decodes consumers file content. See LoadConsumers.
func ParseConsumers(data []byte) (map[string]consumer.Config, error) {
	var raw struct {
		Version   int                       `toml:"version"`
		Consumers map[string]map[string]any `toml:"consumers"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse consumers config: %w", err)
	}
	if raw.Version > ConsumersVersion {
		return nil, fmt.Errorf("consumers config version %d is newer than %d", raw.Version, ConsumersVersion)
	}

	out := make(map[string]consumer.Config, len(raw.Consumers))
	for name, table := range raw.Consumers {
		cfg, err := decodeConsumer(table)
		if err != nil {
			return nil, fmt.Errorf("consumer %q: %w", name, err)
		}
		out[name] = cfg
	}
	return out, nil
}

// decodeConsumer layers one table over the defaults of its kind.
func decodeConsumer(table map[string]any) (consumer.Config, error) {
	kindName, _ := table["kind"].(string)
	if kindName == "" {
		kindName = string(consumer.KindLoopback)
	}
	kind, err := consumer.ParseKind(kindName)
	if err != nil {
		return consumer.Config{}, err
	}

	// Re-encoding the table lets the struct tags do the field mapping.
	data, err := toml.Marshal(table)
	if err != nil {
		return consumer.Config{}, err
	}
	cfg := consumer.DefaultConfig(kind)
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return consumer.Config{}, err
	}
	cfg.Kind = kind

	if err := cfg.Validate(); err != nil {
		return consumer.Config{}, err
	}
	return cfg, nil
}

// Lookup returns the named consumer.
func Lookup(consumers map[string]consumer.Config, name string) (consumer.Config, error) {
	cfg, ok := consumers[name]
	if !ok {
		names := Names(consumers)
		if len(names) == 0 {
			return consumer.Config{}, fmt.Errorf("%w: %q (no consumers defined)", ErrNoConsumer, name)
		}
		return consumer.Config{}, fmt.Errorf("%w: %q (have %s)", ErrNoConsumer, name, strings.Join(names, ", "))
	}
	return cfg, nil
}

// Names returns the consumer names in sorted order.
func Names(consumers map[string]consumer.Config) []string {
	names := make([]string, 0, len(consumers))
	for name := range consumers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SaveConsumers writes consumers to path, creating its directory.
func SaveConsumers(path string, consumers map[string]consumer.Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := toml.Marshal(ConsumersFile{Version: ConsumersVersion, Consumers: consumers})
	if err != nil {
		return fmt.Errorf("failed to marshal consumers config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write consumers config: %w", err)
	}
	return nil
}
