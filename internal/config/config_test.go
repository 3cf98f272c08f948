package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

// clusterOptions mirrors the shape of the primary's Options struct.
type clusterOptions struct {
	Config string `help:"Config file path"`

	Forks              int           `toml:"cluster.forks" env:"FORKS"`
	Port               int           `toml:"cluster.port" env:"PORT"`
	RestartMaxAttempts int           `toml:"cluster.restart_max_attempts" env:"RESTART_MAX_ATTEMPTS"`
	RestartDelay       time.Duration `toml:"cluster.restart_delay" env:"RESTART_DELAY"`
	ReusePort          bool          `toml:"cluster.reuse_port" env:"REUSE_PORT"`
	AdminAddr          string        `toml:"admin.addr" env:"ADMIN_ADDR"`
	WorkerArgs         []string      `toml:"worker.args" env:"WORKER_ARGS"`
}

// clearEnv blanks every variable clusterOptions reads, so the host
// environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"FORKS", "PORT", "RESTART_MAX_ATTEMPTS", "RESTART_DELAY", "REUSE_PORT", "ADMIN_ADDR", "WORKER_ARGS"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webcluster.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[cluster]
forks = 4
port = 3000
restart_max_attempts = 2
restart_delay = "250ms"
reuse_port = true

[admin]
addr = "127.0.0.1:9191"

[worker]
args = ["--crash-after", "5s"]
`)

	opts := &clusterOptions{Config: path, Forks: 1, Port: 8080}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	want := clusterOptions{
		Config:             path,
		Forks:              4,
		Port:               3000,
		RestartMaxAttempts: 2,
		RestartDelay:       250 * time.Millisecond,
		ReusePort:          true,
		AdminAddr:          "127.0.0.1:9191",
		WorkerArgs:         []string{"--crash-after", "5s"},
	}
	if !reflect.DeepEqual(*opts, want) {
		t.Errorf("got %+v\nwant %+v", *opts, want)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("FORKS", "8")
	t.Setenv("RESTART_DELAY", "2s")
	t.Setenv("REUSE_PORT", "false")
	t.Setenv("WORKER_ARGS", " a , b ")

	opts := &clusterOptions{Forks: 1, ReusePort: true}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Forks != 8 {
		t.Errorf("Forks = %d, want 8", opts.Forks)
	}
	if opts.RestartDelay != 2*time.Second {
		t.Errorf("RestartDelay = %s, want 2s", opts.RestartDelay)
	}
	if opts.ReusePort {
		t.Error("ReusePort should be false from env")
	}
	if !reflect.DeepEqual(opts.WorkerArgs, []string{"a", "b"}) {
		t.Errorf("WorkerArgs = %v", opts.WorkerArgs)
	}
}

func TestLoadConfigEnvOverridesToml(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[cluster]
forks = 4
port = 3000
`)
	t.Setenv("FORKS", "2")

	opts := &clusterOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Forks != 2 {
		t.Errorf("Forks = %d, want env value 2", opts.Forks)
	}
	if opts.Port != 3000 {
		t.Errorf("Port = %d, want TOML value 3000", opts.Port)
	}
}

func TestLoadConfigCLIWins(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[cluster]
forks = 4
port = 3000
`)
	t.Setenv("PORT", "4000")

	opts := &clusterOptions{Config: path}
	cmd := &cobra.Command{Use: "webcluster"}
	cmd.Flags().IntVar(&opts.Forks, "forks", 1, "")
	cmd.Flags().IntVar(&opts.Port, "port", 8080, "")
	if err := cmd.Flags().Parse([]string{"--forks", "6", "--port", "5000"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Forks != 6 || opts.Port != 5000 {
		t.Errorf("CLI flags were overwritten: forks=%d port=%d", opts.Forks, opts.Port)
	}
}

func TestLoadConfigInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		toml string
		env  map[string]string
	}{
		{name: "invalid toml", toml: "[cluster\nforks ="},
		{name: "duration not a string", toml: "[cluster]\nrestart_delay = 5"},
		{name: "bad duration", toml: "[cluster]\nrestart_delay = \"soon\""},
		{name: "bad env int", env: map[string]string{"FORKS": "many"}},
		{name: "bad env bool", env: map[string]string{"REUSE_PORT": "perhaps"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			opts := &clusterOptions{}
			if tt.toml != "" {
				opts.Config = writeConfig(t, tt.toml)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if err := LoadConfig(opts, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearEnv(t)
	opts := &clusterOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Forks: 3}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig should not fail for missing file: %v", err)
	}
	if opts.Forks != 3 {
		t.Errorf("defaults changed without a config file: %+v", opts)
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"cluster": map[string]any{
			"restart": map[string]any{
				"delay": "1s",
			},
			"forks": int64(2),
		},
		"root": "root_value",
	}

	tests := []struct {
		path     string
		expected any
	}{
		{"root", "root_value"},
		{"cluster.forks", int64(2)},
		{"cluster.restart.delay", "1s"},
		{"nonexistent", nil},
		{"cluster.nonexistent", nil},
		{"root.child", nil},
	}

	for _, tt := range tests {
		if got := getNestedValue(data, tt.path); got != tt.expected {
			t.Errorf("getNestedValue(%q) = %v, expected %v", tt.path, got, tt.expected)
		}
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":               "port",
		"RestartMaxAttempts": "restart-max-attempts",
		"LoggingLevel":       "logging-level",
		"LoggingIPC":         "logging-ipc",
		"AdminHTTPAddr":      "admin-http-addr",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReadLoggingConfig(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "warn"
format = "json"
cluster = "debug"
ipc = "error"
`)

	cfg, err := ReadLoggingConfig(path)
	if err != nil {
		t.Fatalf("ReadLoggingConfig failed: %v", err)
	}
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("unexpected level/format %+v", cfg)
	}
	want := map[string]string{"cluster": "debug", "ipc": "error"}
	if !reflect.DeepEqual(cfg.Modules, want) {
		t.Errorf("Modules = %v, want %v", cfg.Modules, want)
	}
}

func TestLoadLoggingConfigDefaults(t *testing.T) {
	cfg := LoadLoggingConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if cfg.Level != "info" || cfg.Format != "text" || len(cfg.Modules) != 0 {
		t.Errorf("unexpected defaults %+v", cfg)
	}

	if _, err := ReadLoggingConfig(writeConfig(t, "[logging\n")); err == nil {
		t.Error("expected parse error")
	}
}
