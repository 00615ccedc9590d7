// Package config loads session client settings from defaults, an optional YAML file and the environment.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/viant/mcpsession"
	"github.com/viant/mcpsession/client"
	"github.com/viant/mcpsession/endpoint"
	"github.com/viant/mcpsession/internal/pointer"
	"github.com/viant/mcpsession/registry"
	"github.com/viant/mcpsession/transport"
)

// EnvPrefix prefixes every environment variable; "__" separates nested keys,
// e.g. MCPSESSION_REGISTRY__IDLE_TIMEOUT.
const EnvPrefix = "MCPSESSION_"

// Config represents the complete session client configuration.
type Config struct {
	BaseURL         string            `koanf:"base-url"`
	SessionPath     string            `koanf:"session-path"`
	EndpointPrefix  string            `koanf:"endpoint-prefix"`
	EndpointEvent   string            `koanf:"endpoint-event"`
	Kind            string            `koanf:"kind"`
	KeepStream      *bool             `koanf:"keep-stream"`
	ConnectTimeout  time.Duration     `koanf:"connect-timeout"`
	EndpointTimeout time.Duration     `koanf:"endpoint-timeout"`
	RequestTimeout  time.Duration     `koanf:"request-timeout"`
	CloseTimeout    time.Duration     `koanf:"close-timeout"`
	ClientName      string            `koanf:"client-name"`
	ClientVersion   string            `koanf:"client-version"`
	ProtocolVersion string            `koanf:"protocol-version"`
	BearerToken     string            `koanf:"bearer-token"`
	Headers         map[string]string `koanf:"headers"`
	MaxInFlight     int               `koanf:"max-in-flight"`
	IDStrategy      string            `koanf:"id-strategy"`

	Registry Registry `koanf:"registry"`
	Redis    Redis    `koanf:"redis"`
	Log      Log      `koanf:"log"`
}

// Registry configures session reuse.
type Registry struct {
	IdleTimeout time.Duration `koanf:"idle-timeout"`
	MaxAttempts int           `koanf:"max-attempts"`
}

// Redis configures the optional redis record store; an empty Addr keeps records in memory.
type Redis struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
}

// Log configures the CLI logger.
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		EndpointPrefix:  endpoint.DefaultPrefix,
		EndpointEvent:   endpoint.DefaultEventName,
		Kind:            "sse",
		KeepStream:      pointer.Ref(true),
		ConnectTimeout:  client.DefaultConnectTimeout,
		EndpointTimeout: endpoint.DefaultTimeout,
		RequestTimeout:  client.DefaultRequestTimeout,
		CloseTimeout:    client.DefaultCloseTimeout,
		ClientName:      client.DefaultClientName,
		ClientVersion:   client.DefaultClientVersion,
		ProtocolVersion: mcpsession.DefaultProtocolVersion,
		IDStrategy:      "method",
		Registry: Registry{
			IdleTimeout: registry.DefaultIdleTimeout,
			MaxAttempts: registry.DefaultMaxAttempts,
		},
		Redis: Redis{Prefix: "mcpsession:"},
		Log:   Log{Level: "info", Format: "text"},
	}
}

// Load layers the YAML file at path (optional) and MCPSESSION_ variables over the defaults.
// The result is not validated; callers apply flag overrides first and then call Validate.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}
	ret := Default()
	if err := k.Unmarshal("", ret); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return ret, nil
}

// envKey converts MCPSESSION_REGISTRY__IDLE_TIMEOUT to registry.idle-timeout.
func envKey(name string) string {
	name = strings.TrimPrefix(name, EnvPrefix)
	segments := strings.Split(name, "__")
	for i, segment := range segments {
		segments[i] = strings.ToLower(strings.ReplaceAll(segment, "_", "-"))
	}
	return strings.Join(segments, ".")
}

// Validate reports the first setting that would prevent a session from opening.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base-url was empty")
	}
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base-url %q: %w", c.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid base-url %q: unsupported scheme %q", c.BaseURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid base-url %q: missing host", c.BaseURL)
	}
	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"connect-timeout", c.ConnectTimeout},
		{"endpoint-timeout", c.EndpointTimeout},
		{"request-timeout", c.RequestTimeout},
		{"close-timeout", c.CloseTimeout},
		{"registry.idle-timeout", c.Registry.IdleTimeout},
	}
	for _, timeout := range timeouts {
		if timeout.value <= 0 {
			return fmt.Errorf("%v must be positive, was %s", timeout.name, timeout.value)
		}
	}
	if _, err := c.endpointKind(); err != nil {
		return err
	}
	if _, ok := transport.NewSequencer(c.IDStrategy); !ok {
		return fmt.Errorf("unsupported id-strategy %q", c.IDStrategy)
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("max-in-flight must not be negative, was %d", c.MaxInFlight)
	}
	if c.Registry.MaxAttempts < 1 {
		return fmt.Errorf("registry.max-attempts must be at least 1, was %d", c.Registry.MaxAttempts)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log.format %q", c.Log.Format)
	}
	return nil
}

func (c *Config) endpointKind() (endpoint.Kind, error) {
	switch strings.ToLower(c.Kind) {
	case "", "sse":
		return endpoint.KindSSE, nil
	case "streamable", "streamable-http":
		return endpoint.KindStreamableHTTP, nil
	}
	return endpoint.KindSSE, fmt.Errorf("unsupported kind %q", c.Kind)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log.level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// ClientOptions maps the configuration onto client options.
func (c *Config) ClientOptions() []client.Option {
	kind, _ := c.endpointKind()
	ret := []client.Option{
		client.WithEndpointPrefix(c.EndpointPrefix),
		client.WithEndpointEvent(c.EndpointEvent),
		client.WithKind(kind),
		client.WithKeepStream(pointer.DerefOr(c.KeepStream, true)),
		client.WithConnectTimeout(c.ConnectTimeout),
		client.WithEndpointTimeout(c.EndpointTimeout),
		client.WithRequestTimeout(c.RequestTimeout),
		client.WithCloseTimeout(c.CloseTimeout),
		client.WithClientInfo(c.ClientName, c.ClientVersion),
		client.WithProtocolVersion(c.ProtocolVersion),
		client.WithIDStrategy(c.IDStrategy),
		client.WithMaxInFlight(c.MaxInFlight),
	}
	for key, value := range c.Headers {
		ret = append(ret, client.WithHeader(key, value))
	}
	if c.BearerToken != "" {
		ret = append(ret, client.WithBearerToken(c.BearerToken))
	}
	return ret
}

// RegistryOptions maps the configuration onto registry options. The returned redis client,
// if any, must be closed by the caller after the registry.
func (c *Config) RegistryOptions(options ...client.Option) ([]registry.Option, *redis.Client) {
	ret := []registry.Option{
		registry.WithIdleTimeout(c.Registry.IdleTimeout),
		registry.WithMaxAttempts(uint(c.Registry.MaxAttempts)),
		registry.WithClientOptions(append(c.ClientOptions(), options...)...),
	}
	if c.Redis.Addr == "" {
		return append(ret, registry.WithStore(registry.NewMemoryStore(c.Registry.IdleTimeout))), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB})
	ttl := c.Redis.TTL
	if ttl == 0 {
		ttl = c.Registry.IdleTimeout
	}
	return append(ret, registry.WithStore(registry.NewRedisStore(rdb, c.Redis.Prefix, ttl))), rdb
}
