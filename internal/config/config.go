// Package config builds the runtime configuration for the nikola
// server. Everything is resolved once at startup: an optional TOML
// file, then environment overrides. Handlers never read the
// environment themselves.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Environment variable names.
const (
	EnvAddr      = "NIKOLA_ADDR"
	EnvOrigins   = "NIKOLA_ALLOWED_ORIGINS"
	EnvAPIKey    = "OPENROUTER_API_KEY"
	EnvStorePath = "NIKOLA_STORE_PATH"
	EnvChatRules = "NIKOLA_CHAT_RULES"
)

// Config is the explicit startup configuration.
type Config struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
	OpenRouterKey  string   `toml:"openrouter_api_key"`
	StorePath      string   `toml:"store_path"`
	ChatRulesPath  string   `toml:"chat_rules_path"`
}

// Default returns the built-in configuration: local bind, wildcard
// CORS, store file under the system temp directory.
func Default() Config {
	return Config{
		Addr:           "127.0.0.1:8080",
		AllowedOrigins: []string{"*"},
		StorePath:      filepath.Join(os.TempDir(), "nikola", "memory.db"),
	}
}

// Load reads an optional TOML file at path (empty path skips the
// file), then applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(EnvOrigins); v != "" {
		c.AllowedOrigins = SplitOrigins(v)
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.OpenRouterKey = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv(EnvChatRules); v != "" {
		c.ChatRulesPath = v
	}
}

// SplitOrigins parses a comma-separated origin allow-list, dropping
// empty entries.
func SplitOrigins(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
