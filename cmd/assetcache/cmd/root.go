package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aweris/assetcache"
)

var rootCmd = &cobra.Command{
	Use:   "assetcache",
	Short: "Asset cache CLI",
	Long:  "CLI for downloading assets into the local asset store and reading them back.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/assetcache/config.yaml)")
	flags.String("data-dir", "", "data directory (default: ~/.local/share/assetcache)")
	flags.String("db-name", assetcache.DefaultDBName, "database name")
	flags.String("store-name", assetcache.DefaultStoreName, "store name within the database")
	flags.Int("concurrency", assetcache.DefaultConcurrency, "parallel downloads and writes")
	flags.Bool("compression", true, "zstd-compress stored assets")
	flags.Int("compression-level", 2, "zstd level: 1 fastest, 2 default, 3 best")
	flags.Duration("lock-timeout", time.Second, "how long to wait for the database lock")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")

	viper.BindPFlag("data_dir", flags.Lookup("data-dir"))
	viper.BindPFlag("db_name", flags.Lookup("db-name"))
	viper.BindPFlag("store_name", flags.Lookup("store-name"))
	viper.BindPFlag("concurrency", flags.Lookup("concurrency"))
	viper.BindPFlag("compression", flags.Lookup("compression"))
	viper.BindPFlag("compression_level", flags.Lookup("compression-level"))
	viper.BindPFlag("lock_timeout", flags.Lookup("lock-timeout"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ASSETCACHE")
	viper.AutomaticEnv()
	viper.SetDefault("data_dir", assetcache.DefaultDataDir())

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "assetcache")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "assetcache")
	}
	return ".assetcache"
}

func newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return loggerConfig(level).Build()
}

// loggerConfig uses the human-readable development encoder when debugging
// and JSON production output otherwise.
func loggerConfig(level zapcore.Level) zap.Config {
	cfg := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg
}

func storeOptions() assetcache.StoreOptions {
	return assetcache.StoreOptions{
		Compression:      viper.GetBool("compression"),
		CompressionLevel: viper.GetInt("compression_level"),
		Timeout:          viper.GetDuration("lock_timeout"),
	}
}

// openManager opens the configured store and builds a manager on it. The
// returned close func syncs the logger and closes the store.
func openManager(ctx context.Context) (*assetcache.Manager, func() error, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}

	s, err := assetcache.OpenStore(
		viper.GetString("data_dir"),
		viper.GetString("db_name"),
		viper.GetString("store_name"),
		storeOptions(),
	)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("store opened", zap.String("path", s.Path()))

	m, err := assetcache.Build(ctx,
		assetcache.WithStore(s),
		assetcache.WithConcurrency(viper.GetInt("concurrency")),
		assetcache.WithLogger(logger),
	)
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}

	closeFn := func() error {
		m.Destroy()
		_ = logger.Sync()
		return s.Close()
	}
	return m, closeFn, nil
}
