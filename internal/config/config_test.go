package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFrom(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *cfg != *Default() {
			t.Errorf("expected defaults, got %+v", cfg)
		}
	})

	t.Run("partial file keeps other defaults", func(t *testing.T) {
		path := writeConfig(t, "[notify]\nstrict = true\n")
		cfg, err := LoadFrom(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cfg.Notify.Strict {
			t.Error("expected strict mode")
		}
		if cfg.Notify.Workers != DefaultWorkers || cfg.Database != DefaultDatabase || cfg.Log.Level != "info" {
			t.Errorf("defaults lost: %+v", cfg)
		}
	})

	t.Run("full file", func(t *testing.T) {
		path := writeConfig(t, `
database = "/var/lib/herald/herald.db"
[log]
format = "json"
level = "debug"
[notify]
workers = 8
`)
		cfg, err := LoadFrom(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := Config{
			Database: "/var/lib/herald/herald.db",
			Log:      LogConfig{Format: "json", Level: "debug"},
			Notify:   NotifyConfig{Workers: 8},
		}
		if *cfg != want {
			t.Errorf("expected %+v, got %+v", want, cfg)
		}
	})

	errorCases := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "database = \n", "failed to parse config"},
		{"unknown key", "databse = \"x.db\"\n", "unknown keys: databse"},
		{"bad format", "[log]\nformat = \"xml\"\n", "log.format"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"no workers", "[notify]\nworkers = 0\n", "notify.workers"},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tc.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := &Config{Database: "data/herald.db"}
	got := cfg.DatabasePath("/etc/herald/config.toml")
	if want := filepath.Join("/etc/herald", "data", "herald.db"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	cfg.Database = "/abs/herald.db"
	if got := cfg.DatabasePath("/etc/herald/config.toml"); got != "/abs/herald.db" {
		t.Errorf("absolute path changed: %q", got)
	}

	cfg.Database = ""
	if got := cfg.DatabasePath("/etc/herald/config.toml"); got != filepath.Join("/etc/herald", DefaultDatabase) {
		t.Errorf("empty database should use default, got %q", got)
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := ResolveConfigPath("/tmp/x.toml"); got != "/tmp/x.toml" {
		t.Errorf("explicit path ignored: %q", got)
	}
	if got := ResolveConfigPath("  "); got != DefaultPath() {
		t.Errorf("blank path should use default, got %q", got)
	}
}

func TestCreateDefaultAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "herald", "config.toml")

	created, err := CreateDefault(path)
	if err != nil {
		t.Fatalf("CreateDefault: %v", err)
	}
	if !created {
		t.Fatal("expected file to be created")
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("default file differs from defaults: %+v", cfg)
	}

	created, err = CreateDefault(path)
	if err != nil || created {
		t.Errorf("second CreateDefault = (%v, %v), want (false, nil)", created, err)
	}

	cfg.Notify.Workers = 2
	cfg.Log.Format = "json"
	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	reloaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *reloaded != *cfg {
		t.Errorf("expected %+v, got %+v", cfg, reloaded)
	}

	if err := SaveTo(path, &Config{}); err == nil {
		t.Error("expected validation error for zero workers")
	}
}
