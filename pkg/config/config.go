package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the full service configuration. All values come from the
// environment (optionally seeded from a .env file) so the service carries no
// ambient global state; each adapter receives the section it needs.
type Config struct {
	Port     string
	Superset SupersetConfig
	LLM      LLMConfig
}

// SupersetConfig configures the Superset authentication adapter and client.
type SupersetConfig struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string

	// DatabaseID is the default database connection registered in Superset
	// that uploaded tables live in. Callers may override it per request.
	DatabaseID int
	Schema     string

	// CapabilityVersion selects the payload shapes for dataset creation.
	// Superset changed the dataset payload between releases; "v1" sends the
	// database as a plain id, "legacy" as an embedded object.
	CapabilityVersion string
}

// LLMConfig configures the chart advisor.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Load reads configuration from the environment. A missing .env file is not
// an error; explicit environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Superset: SupersetConfig{
			BaseURL:           getEnv("SUPERSET_URL", "http://localhost:8088"),
			APIKey:            os.Getenv("SUPERSET_API_KEY"),
			Username:          os.Getenv("SUPERSET_USERNAME"),
			Password:          os.Getenv("SUPERSET_PASSWORD"),
			DatabaseID:        getEnvInt("SUPERSET_DATABASE_ID", 1),
			Schema:            getEnv("SUPERSET_SCHEMA", "public"),
			CapabilityVersion: getEnv("SUPERSET_API_VERSION", "v1"),
		},
		LLM: LLMConfig{
			APIKey:  os.Getenv("LLM_API_KEY"),
			BaseURL: getEnv("LLM_BASE_URL", ""),
			Model:   getEnv("LLM_MODEL", "gpt-4"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that enough configuration is present to run.
func (c *Config) Validate() error {
	if c.Superset.BaseURL == "" {
		return fmt.Errorf("SUPERSET_URL is required")
	}

	if c.Superset.APIKey == "" && (c.Superset.Username == "" || c.Superset.Password == "") {
		return fmt.Errorf("either SUPERSET_API_KEY or SUPERSET_USERNAME/SUPERSET_PASSWORD must be set")
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
