package config

import "time"

// DefaultEndpoint is used when no endpoint is configured. It points at a
// locally running chatd.
const DefaultEndpoint = "ws://localhost:8080/ws"

// Config holds client and reference server configuration values.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	Client   Client `mapstructure:"client" yaml:"client"`
	Server   Server `mapstructure:"server" yaml:"server"`
}

// Client controls how the chat client reaches the room server.
type Client struct {
	Endpoint             string        `mapstructure:"endpoint" yaml:"endpoint"`
	PreflightPath        string        `mapstructure:"preflight_path" yaml:"preflight_path"`
	PreflightTimeout     time.Duration `mapstructure:"preflight_timeout" yaml:"preflight_timeout"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReconnectAttempts    int           `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	ReconnectDelayMax    time.Duration `mapstructure:"reconnect_delay_max" yaml:"reconnect_delay_max"`
	ReconnectJitter      float64       `mapstructure:"reconnect_jitter" yaml:"reconnect_jitter"`
	ServerReconnectDelay time.Duration `mapstructure:"server_reconnect_delay" yaml:"server_reconnect_delay"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	PingInterval         time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
}

// Server holds reference server configuration values.
type Server struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	HistoryPath       string        `mapstructure:"history_path" yaml:"history_path"`
	HistoryLimit      int           `mapstructure:"history_limit" yaml:"history_limit"`
	RateLimit         int           `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Client:   DefaultClient(),
		Server:   DefaultServer(),
	}
}

// DefaultClient mirrors the socket options the web client shipped with.
func DefaultClient() Client {
	return Client{
		Endpoint:             DefaultEndpoint,
		PreflightPath:        "/health",
		PreflightTimeout:     5 * time.Second,
		ConnectTimeout:       20 * time.Second,
		ReconnectAttempts:    5,
		ReconnectDelay:       time.Second,
		ReconnectDelayMax:    5 * time.Second,
		ReconnectJitter:      0.5,
		ServerReconnectDelay: time.Second,
		WriteTimeout:         10 * time.Second,
		PingInterval:         25 * time.Second,
	}
}

// DefaultServer returns defaults for chatd.
func DefaultServer() Server {
	return Server{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		HistoryLimit:      100,
		RateLimit:         60,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	c.Client.UpdateFrom(other.Client)
	c.Server.UpdateFrom(other.Server)
}

// UpdateFrom overwrites non-zero values from other into receiver.
func (c *Client) UpdateFrom(other Client) {
	if other.Endpoint != "" {
		c.Endpoint = other.Endpoint
	}
	if other.PreflightPath != "" {
		c.PreflightPath = other.PreflightPath
	}
	if other.PreflightTimeout != 0 {
		c.PreflightTimeout = other.PreflightTimeout
	}
	if other.ConnectTimeout != 0 {
		c.ConnectTimeout = other.ConnectTimeout
	}
	if other.ReconnectAttempts != 0 {
		c.ReconnectAttempts = other.ReconnectAttempts
	}
	if other.ReconnectDelay != 0 {
		c.ReconnectDelay = other.ReconnectDelay
	}
	if other.ReconnectDelayMax != 0 {
		c.ReconnectDelayMax = other.ReconnectDelayMax
	}
	if other.ReconnectJitter != 0 {
		c.ReconnectJitter = other.ReconnectJitter
	}
	if other.ServerReconnectDelay != 0 {
		c.ServerReconnectDelay = other.ServerReconnectDelay
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.PingInterval != 0 {
		c.PingInterval = other.PingInterval
	}
}

// UpdateFrom overwrites non-zero values from other into receiver.
func (s *Server) UpdateFrom(other Server) {
	if other.Addr != "" {
		s.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		s.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		s.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.HistoryPath != "" {
		s.HistoryPath = other.HistoryPath
	}
	if other.HistoryLimit != 0 {
		s.HistoryLimit = other.HistoryLimit
	}
	if other.RateLimit != 0 {
		s.RateLimit = other.RateLimit
	}
}
