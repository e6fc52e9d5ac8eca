package config

// Config file constants (searched in this order)
var (
	// SupportedAllyConfigFiles lists all supported ally config file names
	SupportedAllyConfigFiles = []string{
		"ally.yaml",
		"ally.yml",
		"ally.toml",
		"ally.json",
	}
)

// AllyConfig represents the complete ally configuration
type AllyConfig struct {
	ServerURL      string           `yaml:"server_url,omitempty" toml:"server_url,omitempty" json:"server_url,omitempty"`
	DefaultProject string           `yaml:"default_project,omitempty" toml:"default_project,omitempty" json:"default_project,omitempty"`
	Playground     PlaygroundConfig `yaml:"playground,omitempty" toml:"playground,omitempty" json:"playground,omitempty"`
	WebSearch      WebSearchConfig  `yaml:"web_search,omitempty" toml:"web_search,omitempty" json:"web_search,omitempty"`
}

// PlaygroundConfig holds the initial playground model settings
type PlaygroundConfig struct {
	Model       string   `yaml:"model,omitempty" toml:"model,omitempty" json:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" toml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// WebSearchConfig configures web-search queries
type WebSearchConfig struct {
	SummaryType string `yaml:"summary_type,omitempty" toml:"summary_type,omitempty" json:"summary_type,omitempty"`
}
