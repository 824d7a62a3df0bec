package config

// Default values for configuration options. These are layer 0 of the
// override chain and work without any config file.
const (
	defaultBaseURL         = "http://localhost:8080/api"
	defaultTransport       = TransportLive
	defaultTimeout         = "30s"
	defaultStore           = StoreFile
	defaultRefreshMode     = RefreshEndpoint
	defaultRefreshEndpoint = "/auth/refresh"
	defaultRefreshTimeout  = "15s"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
)

// DefaultConfig returns a Config populated with all default values. It is
// both the starting point for TOML decoding (so unset fields keep their
// defaults) and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   defaultBaseURL,
			Transport: defaultTransport,
			Timeout:   defaultTimeout,
		},
		Auth: AuthConfig{
			Store:           defaultStore,
			RefreshMode:     defaultRefreshMode,
			RefreshEndpoint: defaultRefreshEndpoint,
			RefreshTimeout:  defaultRefreshTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
