// Command media-cache-proxy runs the intercepting media cache in front of a
// media/API origin.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/media-cache-proxy/pkg/config"
	"github.com/Sternrassler/media-cache-proxy/pkg/logging"
	"github.com/Sternrassler/media-cache-proxy/pkg/metrics"
)

// Version is set at build time.
var Version = "dev"

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "media-cache-proxy",
		Short: "Intercepting cache for large audio assets and API responses",
		Long: `media-cache-proxy sits between a player and its media server. Audio
requests are cached in full and served with synthesized byte ranges. API
requests are served network first with the cache as fallback.

Configuration is read from MCP_* environment variables; flags override them.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         run,
	}

	f := root.Flags()
	f.String("listen", "", "listen address (MCP_LISTEN_ADDR)")
	f.String("upstream", "", "upstream origin URL (MCP_UPSTREAM_URL)")
	f.String("store", "", "store backend: redis or memory (MCP_STORE_BACKEND)")
	f.String("redis", "", "redis address (MCP_REDIS_ADDR)")
	f.String("log-level", "", "log level: debug, info, warn, error (MCP_LOG_LEVEL)")
	f.Bool("pretty", false, "human-readable logs (MCP_LOG_PRETTY)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "media-cache-proxy",
	})
	metrics.SetBuildInfo(Version)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

// loadConfig reads the environment, applies flags that were set and
// validates the result.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return config.Config{}, err
	}

	f := cmd.Flags()
	overrides := map[string]*string{
		"listen":    &cfg.ListenAddr,
		"upstream":  &cfg.UpstreamURL,
		"store":     &cfg.StoreBackend,
		"redis":     &cfg.RedisAddr,
		"log-level": &cfg.LogLevel,
	}
	for name, dst := range overrides {
		if f.Changed(name) {
			v, _ := f.GetString(name)
			*dst = v
		}
	}
	if f.Changed("pretty") {
		cfg.LogPretty, _ = f.GetBool("pretty")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
