package types

// Config holds client configuration loaded from config files, .env files,
// and environment variables.
type Config struct {
	// ServerURL is the base URL of the clinical trials agent service.
	ServerURL string `json:"server_url,omitempty"`

	// APIKey is an optional user-supplied OpenAI API key. It is forwarded
	// to the service only over secure destinations.
	APIKey string `json:"api_key,omitempty"`

	// DataDir overrides the default storage location for the identity
	// cache and saved settings.
	DataDir string `json:"data_dir,omitempty"`

	// LogLevel sets the minimum log level (DEBUG|INFO|WARN|ERROR).
	LogLevel string `json:"log_level,omitempty"`
}
