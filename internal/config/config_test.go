package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"DBPath", cfg.DBPath, "phaseline.db"},
		{"CatalogDir", cfg.CatalogDir, "catalog"},
		{"PostMortemAnchor", cfg.PostMortemAnchor, "Registration"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"Events.JSONLPath", cfg.Events.JSONLPath, ""},
		{"Events.NATSURL", cfg.Events.NATSURL, ""},
		{"Events.SubjectPrefix", cfg.Events.SubjectPrefix, "phaseline.events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
		field  func(Config) any
		want   any
	}{
		{
			name:   "db_path",
			envKey: "PHASELINE_DB_PATH",
			envVal: "/var/lib/phaseline.db",
			field:  func(c Config) any { return c.DBPath },
			want:   "/var/lib/phaseline.db",
		},
		{
			name:   "catalog_dir",
			envKey: "PHASELINE_CATALOG_DIR",
			envVal: "/etc/phaseline",
			field:  func(c Config) any { return c.CatalogDir },
			want:   "/etc/phaseline",
		},
		{
			name:   "post_mortem_anchor",
			envKey: "PHASELINE_POST_MORTEM_ANCHOR",
			envVal: "Submission",
			field:  func(c Config) any { return c.PostMortemAnchor },
			want:   "Submission",
		},
		{
			name:   "log_level",
			envKey: "PHASELINE_LOG_LEVEL",
			envVal: "debug",
			field:  func(c Config) any { return c.LogLevel },
			want:   "debug",
		},
		{
			name:   "events.nats_url",
			envKey: "PHASELINE_EVENTS_NATS_URL",
			envVal: "nats://127.0.0.1:4222",
			field:  func(c Config) any { return c.Events.NATSURL },
			want:   "nats://127.0.0.1:4222",
		},
		{
			name:   "events.jsonl_path",
			envKey: "PHASELINE_EVENTS_JSONL_PATH",
			envVal: "events.jsonl",
			field:  func(c Config) any { return c.Events.JSONLPath },
			want:   "events.jsonl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.envKey, tt.envVal)
			v := viper.New()
			Bind(v)

			cfg, err := Load(v)
			if err != nil {
				t.Fatalf("Load() returned unexpected error: %v", err)
			}
			got := tt.field(cfg)
			if got != tt.want {
				t.Errorf("%s: got %v (%T), want %v (%T)", tt.name, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ".phaseline.yaml")
	content := "db_path: from-file.db\nlog_format: json\nevents:\n  subject_prefix: tc.phases\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.DBPath != "from-file.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "from-file.db")
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
	if cfg.Events.SubjectPrefix != "tc.phases" {
		t.Errorf("Events.SubjectPrefix = %q, want tc.phases", cfg.Events.SubjectPrefix)
	}
	if cfg.CatalogDir != "catalog" {
		t.Errorf("CatalogDir = %q, want default", cfg.CatalogDir)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad level", "log_level", "loud"},
		{"bad format", "log_format", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := viper.New()
			v.Set(tt.key, tt.val)
			if _, err := Load(v); err == nil {
				t.Errorf("Load() with %s=%q: expected error", tt.key, tt.val)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := Config{LogLevel: in}.Level()
		if err != nil {
			t.Errorf("Level(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Level(%q) = %v, want %v", in, got, want)
		}
	}
}
