package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.StoreBackend != BackendRedis {
		t.Errorf("StoreBackend = %q, want redis", cfg.StoreBackend)
	}
	if cfg.AudioLimit != 50 || cfg.APILimit != 500 {
		t.Errorf("limits = %d/%d, want 50/500", cfg.AudioLimit, cfg.APILimit)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if len(cfg.MediaPrefixes) != 2 || cfg.MediaPrefixes[0] != "/audio/" {
		t.Errorf("MediaPrefixes = %v", cfg.MediaPrefixes)
	}
	if cfg.PrefetchAttempts != 1 {
		t.Errorf("PrefetchAttempts = %d, want 1", cfg.PrefetchAttempts)
	}
	if !cfg.NetworkFirst {
		t.Error("NetworkFirst = false, want true")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("MCP_UPSTREAM_URL", "https://media.example.com")
	t.Setenv("MCP_STORE_BACKEND", "memory")
	t.Setenv("MCP_AUDIO_LIMIT", "7")
	t.Setenv("MCP_MEDIA_EXTENSIONS", ".mp3,.m4b")
	t.Setenv("MCP_NETWORK_FIRST", "false")
	t.Setenv("MCP_REQUEST_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.UpstreamURL != "https://media.example.com" {
		t.Errorf("UpstreamURL = %q", cfg.UpstreamURL)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if cfg.AudioLimit != 7 {
		t.Errorf("AudioLimit = %d, want 7", cfg.AudioLimit)
	}
	if len(cfg.MediaExtensions) != 2 || cfg.MediaExtensions[1] != ".m4b" {
		t.Errorf("MediaExtensions = %v", cfg.MediaExtensions)
	}
	if cfg.NetworkFirst {
		t.Error("NetworkFirst = true, want false")
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("MCP_UPSTREAM_URL", "https://media.example.com")
	t.Setenv("MCP_AUDIO_LIMIT", "many")

	if _, err := Load(); err == nil {
		t.Fatal("Expected parse error for non-numeric limit")
	}
}

func TestValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.UpstreamURL = "http://localhost:9000"

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing upstream", mutate: func(c *Config) { c.UpstreamURL = "" }, wantErr: "upstream URL is required"},
		{name: "relative upstream", mutate: func(c *Config) { c.UpstreamURL = "/media" }, wantErr: "absolute http(s) URL"},
		{name: "bad backend", mutate: func(c *Config) { c.StoreBackend = "disk" }, wantErr: `unknown store backend "disk"`},
		{name: "zero audio limit", mutate: func(c *Config) { c.AudioLimit = 0 }, wantErr: "audio limit must be >= 1"},
		{name: "negative API limit", mutate: func(c *Config) { c.APILimit = -1 }, wantErr: "API limit must be >= 1"},
		{name: "same store names", mutate: func(c *Config) { c.APIStore = c.AudioStore }, wantErr: "distinct names"},
		{name: "zero attempts", mutate: func(c *Config) { c.PrefetchAttempts = 0 }, wantErr: "prefetch attempts"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "unknown log level"},
		{name: "memory backend without redis", mutate: func(c *Config) { c.StoreBackend = BackendMemory; c.RedisAddr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AudioLimit = 0
	cfg.APILimit = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected error")
	}
	for _, want := range []string{"upstream URL", "audio limit", "API limit"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}
