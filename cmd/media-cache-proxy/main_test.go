package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/media-cache-proxy/pkg/config"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != Version {
		t.Errorf("version output = %q, want %q", got, Version)
	}
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	t.Setenv("MCP_UPSTREAM_URL", "http://origin.test")
	t.Setenv("MCP_LISTEN_ADDR", ":1111")
	t.Setenv("MCP_AUDIO_LIMIT", "7")

	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--listen", "127.0.0.1:9999", "--store", "memory", "--pretty"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr = %q, want flag value", cfg.ListenAddr)
	}
	if cfg.StoreBackend != config.BackendMemory {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, config.BackendMemory)
	}
	if !cfg.LogPretty {
		t.Error("LogPretty = false, want true")
	}
	if cfg.UpstreamURL != "http://origin.test" {
		t.Errorf("UpstreamURL = %q, want env value", cfg.UpstreamURL)
	}
	if cfg.AudioLimit != 7 {
		t.Errorf("AudioLimit = %d, want 7", cfg.AudioLimit)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("MCP_UPSTREAM_URL", "")

	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--store", "disk"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	_, err := loadConfig(cmd)
	if err == nil {
		t.Fatal("loadConfig() error = nil, want error")
	}
	for _, want := range []string{"invalid configuration", "upstream URL is required", `unknown store backend "disk"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not contain %q", err, want)
		}
	}
}

// startApp serves a memory-backed proxy for upstream and returns its base
// URL. The app is shut down when the test ends.
func startApp(t *testing.T, cfg config.Config) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	a, err := newApp(ctx, cfg)
	if err != nil {
		cancel()
		t.Fatalf("newApp() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		cancel()
		t.Fatalf("listen: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- a.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			if err != nil {
				t.Errorf("Serve() error = %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("Serve() did not return after cancel")
		}
		a.Close()
	})

	return "http://" + ln.Addr().String()
}

func testConfig(upstream string) config.Config {
	cfg := config.DefaultConfig()
	cfg.UpstreamURL = upstream
	cfg.StoreBackend = config.BackendMemory
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func TestApp_ServeMemoryBackend(t *testing.T) {
	audio := bytes.Repeat([]byte("a"), 4096)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer upstream.Close()

	base := startApp(t, testConfig(upstream.URL))

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("GET /health = %d %q, want 200 OK", resp.StatusCode, body)
	}

	resp, err = http.Get(base + "/audio/track.mp3")
	if err != nil {
		t.Fatalf("GET media: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET media status = %d, want 200", resp.StatusCode)
	}
	if !bytes.Equal(body, audio) {
		t.Errorf("GET media body length = %d, want %d", len(body), len(audio))
	}
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	cfg := testConfig("http://origin.test")
	cfg.StoreBackend = config.BackendRedis
	cfg.RedisAddr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := newApp(ctx, cfg)
	if err == nil {
		t.Fatal("newApp() error = nil, want connection error")
	}
	if !strings.Contains(err.Error(), "connect to redis") {
		t.Errorf("error = %v, want redis connection error", err)
	}
}
