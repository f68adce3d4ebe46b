package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// WatchRule maps one local tree onto a remote root.
type WatchRule struct {
	LocalPath           string              `mapstructure:"local_path" yaml:"local_path"`
	RemotePath          string              `mapstructure:"remote_path" yaml:"remote_path"`
	Disabled            bool                `mapstructure:"disabled" yaml:"disabled"`
	Match               []string            `mapstructure:"match" yaml:"match"`
	Ignore              []string            `mapstructure:"ignore" yaml:"ignore"`
	IgnoreHidden        bool                `mapstructure:"ignore_hidden" yaml:"ignore_hidden"`
	IgnoreWithEventType map[string][]string `mapstructure:"ignore_with_event_type" yaml:"ignore_with_event_type"`
	SkipUnchanged       bool                `mapstructure:"skip_unchanged" yaml:"skip_unchanged"`
}

type ServerConfig struct {
	Addr          string        `mapstructure:"addr" yaml:"addr"`
	Root          string        `mapstructure:"root" yaml:"root"`
	Username      string        `mapstructure:"username" yaml:"username"`
	Password      string        `mapstructure:"password" yaml:"-"`
	ReservedNames []string      `mapstructure:"reserved_names" yaml:"reserved_names"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

type ClientConfig struct {
	RemoteHost string        `mapstructure:"remote_host" yaml:"remote_host"`
	Username   string        `mapstructure:"username" yaml:"username"`
	Password   string        `mapstructure:"password" yaml:"-"`
	RetryTimes int           `mapstructure:"retry_times" yaml:"retry_times"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Backoff    string        `mapstructure:"backoff" yaml:"backoff"`
	BackoffMax time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
}

type Config struct {
	Server     ServerConfig `mapstructure:"server" yaml:"server"`
	Client     ClientConfig `mapstructure:"client" yaml:"client"`
	Watches    []WatchRule  `mapstructure:"watches" yaml:"watches"`
	DaemonPort int          `mapstructure:"daemon_port" yaml:"daemon_port"`
	BufferSize int          `mapstructure:"buffer_size" yaml:"buffer_size"`
	CacheSize  int          `mapstructure:"cache_size" yaml:"cache_size"`
	DBPath     string       `mapstructure:"db_path" yaml:"db_path"`
	LogFile    string       `mapstructure:"log_file" yaml:"log_file"`
}

const (
	BackoffNone        = "none"
	BackoffExponential = "exponential"
)

var DefaultIgnore = []string{`.*/(\.git|\.idea|log)/.*`, `^.*~$`, `.*\.sw[ponml]$`, `^.*\.\d+$`}

var Default = Config{
	Server: ServerConfig{
		Addr:          ":8888",
		Root:          "/",
		ReservedNames: []string{"relaysync", "config.yaml"},
	},
	Client: ClientConfig{
		RemoteHost: "http://127.0.0.1:8888",
		RetryTimes: 2,
		Timeout:    3 * time.Second,
		Backoff:    BackoffNone,
		BackoffMax: 30 * time.Second,
	},
	DaemonPort: 8889,
	BufferSize: 100,
	CacheSize:  4096,
	DBPath:     "",
}

func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	return filepath.Join(home, ".relaysync"), nil
}

// Load reads file when given, otherwise config.yaml from ~/.relaysync. A
// missing default file is not an error.
func Load(file string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		configDir, err := Dir()
		if err != nil {
			return nil, err
		}

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config dir: %w", err)
		}

		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
	}

	v.SetDefault("server.addr", Default.Server.Addr)
	v.SetDefault("server.root", Default.Server.Root)
	v.SetDefault("server.reserved_names", Default.Server.ReservedNames)
	v.SetDefault("server.read_timeout", Default.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", Default.Server.WriteTimeout)
	v.SetDefault("client.remote_host", Default.Client.RemoteHost)
	v.SetDefault("client.retry_times", Default.Client.RetryTimes)
	v.SetDefault("client.timeout", Default.Client.Timeout)
	v.SetDefault("client.backoff", Default.Client.Backoff)
	v.SetDefault("client.backoff_max", Default.Client.BackoffMax)
	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("buffer_size", Default.BufferSize)
	v.SetDefault("cache_size", Default.CacheSize)
	v.SetDefault("db_path", Default.DBPath)
	v.SetDefault("log_file", Default.LogFile)

	v.SetEnvPrefix("RELAYSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials are usually injected as RELAYSYNC_SERVER_PASSWORD etc.
	_ = v.BindEnv("server.username")
	_ = v.BindEnv("server.password")
	_ = v.BindEnv("client.username")
	_ = v.BindEnv("client.password")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok || file != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for i := range cfg.Watches {
		cfg.Watches[i] = cfg.Watches[i].normalize()
	}

	return &cfg, nil
}

// ActiveWatches returns the rules that are not disabled, in configuration order.
func (c *Config) ActiveWatches() []WatchRule {
	var rules []WatchRule
	for _, w := range c.Watches {
		if !w.Disabled {
			rules = append(rules, w)
		}
	}

	return rules
}

func (c *Config) ValidateClient() error {
	if c.Client.RemoteHost == "" {
		return errors.New("client.remote_host is required")
	}

	if c.Client.RetryTimes < 0 {
		return fmt.Errorf("client.retry_times must not be negative: %d", c.Client.RetryTimes)
	}

	switch c.Client.Backoff {
	case BackoffNone, BackoffExponential:
	default:
		return fmt.Errorf("unknown client.backoff %q", c.Client.Backoff)
	}

	for _, w := range c.Watches {
		if w.LocalPath == "" || w.RemotePath == "" {
			return errors.New("every watch needs local_path and remote_path")
		}
	}

	return nil
}

func (c *Config) ValidateServer() error {
	if c.Server.Username == "" || c.Server.Password == "" {
		return errors.New("server.username and server.password are required")
	}

	if c.Server.Root == "" {
		return errors.New("server.root is required")
	}

	return nil
}

func (w WatchRule) normalize() WatchRule {
	if w.LocalPath != "" {
		if abs, err := filepath.Abs(w.LocalPath); err == nil {
			w.LocalPath = abs
		}
	}

	return w
}

// WatchFor returns the active rule with the longest local path containing dir.
func (c *Config) WatchFor(dir string) (WatchRule, bool) {
	var (
		best  WatchRule
		found bool
	)

	for _, w := range c.ActiveWatches() {
		if dir != w.LocalPath && !strings.HasPrefix(dir, w.LocalPath+string(filepath.Separator)) {
			continue
		}
		if !found || len(w.LocalPath) > len(best.LocalPath) {
			best, found = w, true
		}
	}

	return best, found
}
