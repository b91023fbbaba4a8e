// Package config provides unified configuration loading from files,
// environment variables, and CLI flags using viper and pflag.
//
// Resolution order (highest wins):
//  1. CLI flags
//  2. Environment variables (prefix IMAGECACHE_)
//  3. Config file (config.yaml in . or /etc/imagecache/)
//  4. Compiled defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/api/resource"
)

// Viper keys for agent configuration.
const (
	keyAgentAddress        = "agent.address"
	keyAgentAllowedOrigins = "agent.allowed_origins"
	keyAgentAuthToken      = "agent.auth_token"
	keyAgentDockerHost     = "agent.docker_host"

	keyCacheTimeWindow = "cache.time_window"
	keyCachePolicy     = "cache.policy"

	keyReclaimEnabled       = "reclaim.enabled"
	keyReclaimInterval      = "reclaim.interval"
	keyReclaimHighWatermark = "reclaim.high_watermark"
	keyReclaimLowWatermark  = "reclaim.low_watermark"
)

// Option describes a single configuration entry: its viper key, the
// corresponding CLI flag name, the compiled default, and a
// human-readable description shown in --help output.
type Option struct {
	Key         string
	Flag        string
	Default     any
	Description string
}

// AgentOptions defines the configuration entries available to the
// agent command. Each entry is registered as a viper default and a
// CLI flag.
var AgentOptions = []Option{
	{Key: keyAgentAddress, Flag: toFlag(keyAgentAddress), Default: ":8377", Description: "Agent API listen address"},
	{Key: keyAgentAllowedOrigins, Flag: toFlag(keyAgentAllowedOrigins), Default: []string{}, Description: "Agent API allowed CORS origins"},
	{Key: keyAgentAuthToken, Flag: toFlag(keyAgentAuthToken), Default: "", Description: "Static bearer token for the agent API (empty disables auth)"},
	{Key: keyAgentDockerHost, Flag: toFlag(keyAgentDockerHost), Default: "", Description: "Docker daemon host (empty uses DOCKER_HOST or the default socket)"},
	{Key: keyCacheTimeWindow, Flag: toFlag(keyCacheTimeWindow), Default: time.Hour, Description: "Trailing window for usage-frequency scoring"},
	{Key: keyCachePolicy, Flag: toFlag(keyCachePolicy), Default: "least-frequently-used", Description: "Default eviction policy (least-frequently-used or least-total-time-used)"},
	{Key: keyReclaimEnabled, Flag: toFlag(keyReclaimEnabled), Default: true, Description: "Enable the periodic storage reclaim loop"},
	{Key: keyReclaimInterval, Flag: toFlag(keyReclaimInterval), Default: time.Minute, Description: "Interval between storage pressure checks"},
	{Key: keyReclaimHighWatermark, Flag: toFlag(keyReclaimHighWatermark), Default: "20Gi", Description: "Layer storage level that triggers reclaiming"},
	{Key: keyReclaimLowWatermark, Flag: toFlag(keyReclaimLowWatermark), Default: "15Gi", Description: "Layer storage level reclaiming drives down to"},
}

// Config wraps a viper instance and exposes typed accessors for every
// known key.
type Config struct {
	v *viper.Viper
}

// New loads configuration from defaults, an optional config file, and
// the environment. Flag binding happens later, per command, via
// BindFlags.
func New() (*Config, error) {
	v := viper.New()

	for _, o := range AgentOptions {
		v.SetDefault(o.Key, o.Default)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/imagecache/")

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !(errors.As(err, &notFoundErr) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("IMAGECACHE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return &Config{v: v}, nil
}

// BindFlags registers the given options as CLI flags and binds them
// into the viper instance.
func (c *Config) BindFlags(fs *pflag.FlagSet, options []Option) error {
	for _, o := range options {
		switch v := o.Default.(type) {
		case string:
			fs.String(o.Flag, v, o.Description)
		case int:
			fs.Int(o.Flag, v, o.Description)
		case bool:
			fs.Bool(o.Flag, v, o.Description)
		case []string:
			fs.StringSlice(o.Flag, v, o.Description)
		case time.Duration:
			fs.Duration(o.Flag, v, o.Description)
		default:
			return fmt.Errorf("unsupported flag type for key: %s", o.Key)
		}

		if err := c.v.BindPFlag(o.Key, fs.Lookup(o.Flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", o.Flag, err)
		}
	}

	return nil
}

func (c *Config) AgentAddress() string {
	return c.v.GetString(keyAgentAddress) // IMAGECACHE_AGENT_ADDRESS
}

func (c *Config) AgentAllowedOrigins() []string {
	return c.v.GetStringSlice(keyAgentAllowedOrigins) // IMAGECACHE_AGENT_ALLOWED_ORIGINS
}

func (c *Config) AgentAuthToken() string {
	return c.v.GetString(keyAgentAuthToken) // IMAGECACHE_AGENT_AUTH_TOKEN
}

func (c *Config) AgentDockerHost() string {
	return c.v.GetString(keyAgentDockerHost) // IMAGECACHE_AGENT_DOCKER_HOST
}

func (c *Config) CacheTimeWindow() time.Duration {
	return c.v.GetDuration(keyCacheTimeWindow) // IMAGECACHE_CACHE_TIME_WINDOW
}

func (c *Config) CachePolicy() string {
	return c.v.GetString(keyCachePolicy) // IMAGECACHE_CACHE_POLICY
}

func (c *Config) ReclaimEnabled() bool {
	return c.v.GetBool(keyReclaimEnabled) // IMAGECACHE_RECLAIM_ENABLED
}

func (c *Config) ReclaimInterval() time.Duration {
	return c.v.GetDuration(keyReclaimInterval) // IMAGECACHE_RECLAIM_INTERVAL
}

// ReclaimHighWatermarkBytes parses the high watermark, accepting
// Kubernetes-style quantities such as "20Gi" or "500M".
func (c *Config) ReclaimHighWatermarkBytes() (int64, error) {
	return parseBytes(c.v.GetString(keyReclaimHighWatermark)) // IMAGECACHE_RECLAIM_HIGH_WATERMARK
}

// ReclaimLowWatermarkBytes parses the low watermark.
func (c *Config) ReclaimLowWatermarkBytes() (int64, error) {
	return parseBytes(c.v.GetString(keyReclaimLowWatermark)) // IMAGECACHE_RECLAIM_LOW_WATERMARK
}

func parseBytes(s string) (int64, error) {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte quantity %q: %w", s, err)
	}
	bytes, ok := q.AsInt64()
	if !ok {
		return 0, fmt.Errorf("byte quantity %q does not fit in int64", s)
	}
	return bytes, nil
}

// toFlag converts a viper key like "reclaim.high_watermark" into a
// CLI flag like "reclaim-high-watermark" by lower-casing, replacing
// dots and underscores with hyphens, and stripping the "agent-"
// prefix.
func toFlag(key string) string {
	flag := strings.ToLower(key)
	flag = strings.ReplaceAll(flag, ".", "-")
	flag = strings.ReplaceAll(flag, "_", "-")
	flag = strings.TrimPrefix(flag, "agent-")
	return flag
}
