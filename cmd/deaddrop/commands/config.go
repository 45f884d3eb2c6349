package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	deaddrop "github.com/deaddrop/client-go"
	"github.com/deaddrop/client-go/kvstore"
)

// cliConfig is the resolved configuration a command runs with. Precedence is
// flags over DEADDROP_* environment variables over config.yaml in the data
// directory.
type cliConfig struct {
	Home      string
	RelayURL  string
	AuthToken string
	Verbose   bool
}

func resolveConfig(cmd *cobra.Command) (*cliConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("DEADDROP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, name := range []string{"home", "relay", "auth-token", "verbose"} {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(name, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	home := v.GetString("home")
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		home = filepath.Join(dir, ".deaddrop")
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(home)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return &cliConfig{
		Home:      home,
		RelayURL:  v.GetString("relay"),
		AuthToken: v.GetString("auth-token"),
		Verbose:   v.GetBool("verbose"),
	}, nil
}

func (cfg *cliConfig) logger() *slog.Logger {
	if cfg.Verbose {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openClient opens the store and client for one command invocation. The
// returned cleanup closes both; commands are one-shot, so the background
// scheduler stays off and pending deliveries are retried by sync instead.
func openClient(cmd *cobra.Command) (*deaddrop.Client, func(), error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RelayURL == "" {
		return nil, nil, fmt.Errorf("no relay configured; use --relay, DEADDROP_RELAY or config.yaml")
	}

	store, err := kvstore.OpenSQLite(cfg.Home)
	if err != nil {
		return nil, nil, err
	}

	client, err := deaddrop.New(cfg.RelayURL, store,
		deaddrop.WithLogger(cfg.logger()),
		deaddrop.WithAuthToken(cfg.AuthToken),
		deaddrop.WithRetryInterval(0),
	)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = client.Close()
		_ = store.Close()
	}
	return client, cleanup, nil
}
