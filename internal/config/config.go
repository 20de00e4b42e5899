package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lherron/cattree/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	DBPath        string             `yaml:"db_path"`
	DefaultActor  string             `yaml:"default_actor"`
	LogLevel      string             `yaml:"log_level"`
	LogFormat     string             `yaml:"log_format"`
	Output        string             `yaml:"output"`
	RedisAddr     string             `yaml:"redis_addr"`
	RedisPassword string             `yaml:"redis_password"`
	BatchSize     int                `yaml:"batch_size"`
	Dependents    []domain.Dependent `yaml:"dependents"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/cattree/config.yaml (YAML), or the file named by CATTREE_CONFIG
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:  "info",
		LogFormat: "console",
		Output:    "table",
		BatchSize: 400,
	}

	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	if err := loadYAMLConfig(cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if dbPath := getEnvOrFile("CATTREE_DB_PATH", "CATTREE_DB_PATH_FILE"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if v := os.Getenv("CATTREE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CATTREE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("CATTREE_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("CATTREE_ACTOR"); v != "" {
		cfg.DefaultActor = v
	}
	if v := os.Getenv("CATTREE_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := getEnvOrFile("CATTREE_REDIS_PASSWORD", "CATTREE_REDIS_PASSWORD_FILE"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CATTREE_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("CATTREE_BATCH_SIZE must be a positive integer, got %q", v)
		}
		cfg.BatchSize = n
	}
	if v := os.Getenv("CATTREE_DEPENDENTS"); v != "" {
		deps, err := ParseDependents(v)
		if err != nil {
			return nil, err
		}
		cfg.Dependents = deps
	}

	if len(cfg.Dependents) == 0 {
		cfg.Dependents = domain.DefaultDependents()
	}

	if cfg.DBPath == "" {
		if _, err := os.Stat(".cattree/cattree.db"); err == nil {
			cfg.DBPath = ".cattree/cattree.db"
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			cfg.DBPath = filepath.Join(homeDir, ".local", "share", "cattree", "cattree.db")
		}
	}

	return cfg, nil
}

// ParseDependents parses "Recipe.category_id,Ingredient.category_id"
func ParseDependents(s string) ([]domain.Dependent, error) {
	var deps []domain.Dependent
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		collection, field, ok := strings.Cut(part, ".")
		if !ok || collection == "" || field == "" {
			return nil, fmt.Errorf("invalid dependent %q (want Collection.field)", part)
		}
		deps = append(deps, domain.Dependent{Collection: collection, Field: field})
	}
	return deps, nil
}

func loadYAMLConfig(cfg *Config) error {
	configPath := os.Getenv("CATTREE_CONFIG")
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		configPath = filepath.Join(homeDir, ".config", "cattree", "config.yaml")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", configPath, err)
	}
	return nil
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		if dir == homeDir {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// GetActor returns the actor recorded in the event log.
// Priority: CATTREE_ACTOR > config default_actor > $USER
func (c *Config) GetActor() string {
	if actor := os.Getenv("CATTREE_ACTOR"); actor != "" {
		return actor
	}
	if c.DefaultActor != "" {
		return c.DefaultActor
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cattree"
}
