package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
)

// runOptions mirrors the shape of the CLI options struct.
type runOptions struct {
	Config string

	Consumer     string        `toml:"run.consumer" env:"RUN_CONSUMER"`
	Watch        bool          `toml:"run.watch" env:"RUN_WATCH"`
	MaxRestarts  int           `toml:"run.max_restarts" env:"RUN_MAX_RESTARTS"`
	GracePeriod  time.Duration `toml:"run.grace_period" env:"RUN_GRACE_PERIOD"`
	Speed        float64       `toml:"run.speed" env:"RUN_SPEED"`
	Decoders     []string      `toml:"graph.decoders" env:"GRAPH_DECODERS"`
	LoggingLevel string        `toml:"logging.level" env:"LOGGING_LEVEL"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const runTOML = `
[run]
consumer = "desk"
watch = true
max_restarts = 3
grace_period = "2s"
speed = 1

[graph]
decoders = ["v4l2h264dec", "avdec_h264"]

[logging]
level = "debug"
consumer = "warn"
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &runOptions{Config: writeFile(t, "camloop.toml", runTOML)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	want := &runOptions{
		Config:       opts.Config,
		Consumer:     "desk",
		Watch:        true,
		MaxRestarts:  3,
		GracePeriod:  2 * time.Second,
		Speed:        1,
		Decoders:     []string{"v4l2h264dec", "avdec_h264"},
		LoggingLevel: "debug",
	}
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	t.Setenv(EnvPrefix+"RUN_CONSUMER", "studio")
	t.Setenv(EnvPrefix+"RUN_WATCH", "false")
	t.Setenv(EnvPrefix+"RUN_GRACE_PERIOD", "750ms")
	t.Setenv(EnvPrefix+"RUN_SPEED", "0.5")
	t.Setenv(EnvPrefix+"GRAPH_DECODERS", "nvh264dec, avdec_h264")

	opts := &runOptions{Config: writeFile(t, "camloop.toml", runTOML)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Consumer != "studio" || opts.Watch {
		t.Errorf("env did not override toml: %+v", opts)
	}
	if opts.GracePeriod != 750*time.Millisecond || opts.Speed != 0.5 {
		t.Errorf("GracePeriod=%v Speed=%v", opts.GracePeriod, opts.Speed)
	}
	if diff := cmp.Diff([]string{"nvh264dec", "avdec_h264"}, opts.Decoders); diff != "" {
		t.Errorf("decoders mismatch (-want +got):\n%s", diff)
	}
	// Untouched by env.
	if opts.MaxRestarts != 3 {
		t.Errorf("MaxRestarts = %d, want 3", opts.MaxRestarts)
	}
}

func TestLoadConfigIgnoresUnprefixedEnv(t *testing.T) {
	t.Setenv("RUN_CONSUMER", "wrong")

	opts := &runOptions{Consumer: "default"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatal(err)
	}
	if opts.Consumer != "default" {
		t.Errorf("Consumer = %q, want default", opts.Consumer)
	}
}

func TestLoadConfigCLIWins(t *testing.T) {
	t.Setenv(EnvPrefix+"RUN_CONSUMER", "from-env")

	opts := &runOptions{Config: writeFile(t, "camloop.toml", runTOML)}
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().StringVar(&opts.Consumer, "consumer", "", "")
	cmd.Flags().IntVar(&opts.MaxRestarts, "max-restarts", 0, "")
	if err := cmd.Flags().Parse([]string{"--consumer", "from-cli", "--max-restarts", "9"}); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatal(err)
	}
	if opts.Consumer != "from-cli" || opts.MaxRestarts != 9 {
		t.Errorf("CLI values overwritten: %+v", opts)
	}
	if !opts.Watch {
		t.Error("unset flag should still come from toml")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &runOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Consumer: "keep"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig should not fail for missing file: %v", err)
	}
	if opts.Consumer != "keep" {
		t.Errorf("Consumer = %q", opts.Consumer)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	opts := &runOptions{Config: writeFile(t, "bad.toml", "[run\nconsumer = ")}
	if err := LoadConfig(opts, nil); err == nil {
		t.Fatal("LoadConfig should fail for invalid TOML")
	}
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	if err := LoadConfig(runOptions{}, nil); err == nil {
		t.Fatal("expected error for non-pointer options")
	}
}

func TestGetNestedValue(t *testing.T) {
	doc := map[string]any{
		"run": map[string]any{"consumer": "desk"},
		"top": "value",
	}
	tests := []struct {
		path string
		want any
	}{
		{"run.consumer", "desk"},
		{"top", "value"},
		{"run.missing", nil},
		{"top.deeper", nil},
		{"absent.key", nil},
	}
	for _, tt := range tests {
		if got := getNestedValue(doc, tt.path); got != tt.want {
			t.Errorf("getNestedValue(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSetFieldValueDuration(t *testing.T) {
	var opts runOptions
	field := reflectField(&opts, "GracePeriod")

	setFieldValue(field, int64(1500))
	if opts.GracePeriod != 1500*time.Millisecond {
		t.Errorf("integer duration = %v, want 1.5s", opts.GracePeriod)
	}
	setFieldValue(field, "3s")
	if opts.GracePeriod != 3*time.Second {
		t.Errorf("string duration = %v, want 3s", opts.GracePeriod)
	}
	setFieldValue(field, "soon")
	if opts.GracePeriod != 3*time.Second {
		t.Errorf("bad duration changed the field: %v", opts.GracePeriod)
	}
}

func TestSetFieldValueFromStringIgnoresGarbage(t *testing.T) {
	opts := runOptions{MaxRestarts: 4, Watch: true}
	setFieldValueFromString(reflectField(&opts, "MaxRestarts"), "many")
	setFieldValueFromString(reflectField(&opts, "Watch"), "perhaps")
	if opts.MaxRestarts != 4 || !opts.Watch {
		t.Errorf("garbage env values applied: %+v", opts)
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Consumer":     "consumer",
		"MaxRestarts":  "max-restarts",
		"LoggingLevel": "logging-level",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	cfg := LoadLoggingConfig(writeFile(t, "camloop.toml", runTOML))
	if cfg.Level != "debug" || cfg.Format != "text" {
		t.Errorf("Level=%q Format=%q", cfg.Level, cfg.Format)
	}
	if diff := cmp.Diff(map[string]string{"consumer": "warn"}, cfg.Modules); diff != "" {
		t.Errorf("modules mismatch (-want +got):\n%s", diff)
	}

	def := LoadLoggingConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if def.Level != "info" || def.Format != "text" || len(def.Modules) != 0 {
		t.Errorf("defaults = %+v", def)
	}
}

func reflectField(opts *runOptions, name string) reflect.Value {
	return reflect.ValueOf(opts).Elem().FieldByName(name)
}
