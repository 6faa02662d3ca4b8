package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zardamhussain/outblog-crawl/backoff"
	"github.com/zardamhussain/outblog-crawl/client"
	"github.com/zardamhussain/outblog-crawl/internal/logging"
	"github.com/zardamhussain/outblog-crawl/internal/metrics"
)

// config captures every CLI knob loaded via Viper.
type config struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BufferCapacity int           `mapstructure:"buffer_capacity"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`

	Backoff backoffConfig `mapstructure:"backoff"`
	Log     logConfig     `mapstructure:"log"`
}

type backoffConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	Base           time.Duration `mapstructure:"base"`
	Cap            time.Duration `mapstructure:"cap"`
	Multiplier     float64       `mapstructure:"multiplier"`
	JitterFraction float64       `mapstructure:"jitter_fraction"`
}

type logConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Validate enforces required values before any network use.
func (c config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must be set (flag, config file, or OUTBLOG_BASE_URL)")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0")
	}
	if c.Backoff.MaxAttempts <= 0 {
		return fmt.Errorf("backoff.max_attempts must be > 0")
	}
	return nil
}

// app holds the long-lived services shared by the subcommands.
type app struct {
	cfg    config
	logger *zap.Logger
	client *client.Client
}

func loadConfig(path string) (config, error) {
	v := viper.New()
	v.SetEnvPrefix("OUTBLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "https://api.outblogai.com")
	v.SetDefault("poll_interval", "2s")
	v.SetDefault("timeout", "10m")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("buffer_capacity", 256)
	v.SetDefault("backoff.max_attempts", 5)
	v.SetDefault("backoff.base", "250ms")
	v.SetDefault("backoff.cap", "10s")
	v.SetDefault("backoff.multiplier", 2.0)
	v.SetDefault("backoff.jitter_fraction", 0.2)
	v.SetDefault("log.development", true)
	v.SetDefault("log.level", "info")
}

func (a *app) init(cfgFile string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		return err
	}

	cl, err := client.New(client.Config{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		PollInterval:   cfg.PollInterval,
		Timeout:        cfg.Timeout,
		RequestTimeout: cfg.RequestTimeout,
		BufferCapacity: cfg.BufferCapacity,
		Backoff: backoff.Config{
			MaxAttempts:    cfg.Backoff.MaxAttempts,
			Base:           cfg.Backoff.Base,
			Cap:            cfg.Backoff.Cap,
			Multiplier:     cfg.Backoff.Multiplier,
			JitterFraction: cfg.Backoff.JitterFraction,
		},
	}, client.WithLogger(logger))
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if serr := http.ListenAndServe(cfg.MetricsAddr, metrics.Handler()); serr != nil {
				logger.Warn("metrics listener failed", zap.Error(serr))
			}
		}()
	}

	a.cfg = cfg
	a.logger = logger
	a.client = cl
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "outblogctl",
		Short: "Client for the Outblog Crawl API",
		Long: `outblogctl submits crawl jobs to the Outblog Crawl API, polls them
to completion, and streams incremental page results over WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.init(cfgFile)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default uses env and built-in defaults)")

	cmd.AddCommand(
		newSubmitCmd(a),
		newStatusCmd(a),
		newWaitCmd(a),
		newWatchCmd(a),
		newCancelCmd(a),
		newVersionCmd(),
	)
	return cmd
}
