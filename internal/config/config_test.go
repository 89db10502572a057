package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFromMap_Defaults(t *testing.T) {
	cfg, err := FromMap(map[string]string{"STUDIO_DATA_DIR": "/data"})
	if err != nil {
		t.Fatalf("FromMap() error = %v", err)
	}

	if cfg.TextModel != "gemini-2.5-flash" {
		t.Errorf("TextModel = %q", cfg.TextModel)
	}
	if cfg.ImageModel != "gemini-2.5-flash-image" {
		t.Errorf("ImageModel = %q", cfg.ImageModel)
	}
	if cfg.RequestTimeout != 3*time.Minute {
		t.Errorf("RequestTimeout = %v, want 3m", cfg.RequestTimeout)
	}
	if cfg.ProbeTimeout != 3*time.Second {
		t.Errorf("ProbeTimeout = %v, want 3s", cfg.ProbeTimeout)
	}
	if !cfg.Journal {
		t.Error("Journal = false, want true")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.ImageDir() != filepath.Join("/data", "images") {
		t.Errorf("ImageDir() = %q", cfg.ImageDir())
	}
}

func TestFromMap_Overrides(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"GEMINI_API_KEY":         "k",
		"STUDIO_IMAGE_MODEL":     "imagen",
		"STUDIO_REQUEST_TIMEOUT": "45s",
		"STUDIO_JOURNAL":         "false",
		"STUDIO_LOG_FORMAT":      "json",
		"STUDIO_DATA_DIR":        "/tmp/x",
	})
	if err != nil {
		t.Fatalf("FromMap() error = %v", err)
	}
	if cfg.ImageModel != "imagen" || cfg.RequestTimeout != 45*time.Second || cfg.Journal || cfg.LogFormat != "json" {
		t.Errorf("FromMap() = %+v", cfg)
	}
}

func TestFromMap_DefaultDataDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := FromMap(map[string]string{})
	if err != nil {
		t.Fatalf("FromMap() error = %v", err)
	}
	if cfg.DataDir != filepath.Join(home, ".prodstudio") {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
}

func TestFromMap_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"bad duration", map[string]string{"STUDIO_REQUEST_TIMEOUT": "soon"}, "parse"},
		{"zero timeout", map[string]string{"STUDIO_REQUEST_TIMEOUT": "0s"}, "STUDIO_REQUEST_TIMEOUT"},
		{"bad format", map[string]string{"STUDIO_LOG_FORMAT": "xml"}, "STUDIO_LOG_FORMAT"},
		{"bad bool", map[string]string{"STUDIO_JOURNAL": "maybe"}, "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.vars["STUDIO_DATA_DIR"] = "/data"
			_, err := FromMap(tt.vars)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("FromMap() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestConfig_Key(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"primary", Config{APIKey: "a", APIKeyAlias: "b"}, "a"},
		{"alias", Config{APIKeyAlias: "b"}, "b"},
		{"none", Config{}, ""},
	}
	for _, tt := range tests {
		if got := tt.cfg.Key(); got != tt.want {
			t.Errorf("%s: Key() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLoad_Dotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("STUDIO_TEXT_MODEL=from-dotenv\nSTUDIO_DATA_DIR="+dir+"\n"), 0600)

	t.Setenv("STUDIO_TEXT_MODEL", "")
	os.Unsetenv("STUDIO_TEXT_MODEL")
	t.Setenv("STUDIO_DATA_DIR", "")
	os.Unsetenv("STUDIO_DATA_DIR")

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TextModel != "from-dotenv" {
		t.Errorf("TextModel = %q, want from-dotenv", cfg.TextModel)
	}
}
