// Package config loads configuration for the digital memory retrieval
// core. Values are resolved in order: built-in defaults, an optional YAML
// file, then environment variables — matching the override order used
// throughout the teacher's own configuration layer.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// PathsConfig locates the on-disk artifacts described in spec section 6.
type PathsConfig struct {
	DataDir      string `yaml:"data_dir"`
	ChunkStore   string `yaml:"chunk_store"`
	IndexPath    string `yaml:"index_path"`
	MetadataPath string `yaml:"metadata_path"`
	IndexedIDs   string `yaml:"indexed_ids_path"`
	DirtyFlag    string `yaml:"dirty_flag_path"`
	StatusFile   string `yaml:"status_file_path"`
}

// EmbeddingConfig configures the embedding endpoint (spec section 6).
// Endpoint is a base URL (e.g. "https://api.openai.com/v1"); the client
// appends the operation path (/embeddings) itself.
type EmbeddingConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	Model         string        `yaml:"model"`
	Dimensions    int           `yaml:"dimensions"`
	BatchSize     int           `yaml:"batch_size"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	CacheSize     int           `yaml:"cache_size"`
}

// ChatConfig configures the chat-completion endpoint used by the agent loop.
type ChatConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RetrievalConfig tunes the hybrid retriever (spec section 4.8).
type RetrievalConfig struct {
	DefaultK int `yaml:"default_k"`
}

// ServerConfig configures the HTTP surface (spec section 6).
type ServerConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// RebuildConfig tunes the rebuild supervisor (spec section 4.11).
type RebuildConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	HardTimeout  time.Duration `yaml:"hard_timeout"`
}

// Config aggregates every subsystem's configuration.
type Config struct {
	Paths      PathsConfig     `yaml:"paths"`
	Embedding  EmbeddingConfig `yaml:"embedding"`
	Chat       ChatConfig      `yaml:"chat"`
	Retrieval  RetrievalConfig `yaml:"retrieval"`
	Server     ServerConfig    `yaml:"server"`
	Rebuild    RebuildConfig   `yaml:"rebuild"`
}

// Default returns the built-in configuration rooted at dataDir.
func Default(dataDir string) Config {
	return Config{
		Paths: PathsConfig{
			DataDir:      dataDir,
			ChunkStore:   filepath.Join(dataDir, "records.json"),
			IndexPath:    filepath.Join(dataDir, "vectors.idx"),
			MetadataPath: filepath.Join(dataDir, "metadata.json"),
			IndexedIDs:   filepath.Join(dataDir, "indexed_ids.json"),
			DirtyFlag:    filepath.Join(dataDir, "dirty.flag"),
			StatusFile:   filepath.Join(dataDir, "status.json"),
		},
		Embedding: EmbeddingConfig{
			Endpoint:   "http://localhost:11434/v1",
			APIKeyEnv:  "EMBEDDING_API_KEY",
			Model:      "text-embedding-3-small",
			BatchSize:  20,
			Timeout:    60 * time.Second,
			MaxRetries: 3,
			CacheSize:  1000,
		},
		Chat: ChatConfig{
			Endpoint:  "http://localhost:11434/v1",
			APIKeyEnv: "EMBEDDING_API_KEY",
			Model:     "gpt-4o-mini",
			Timeout:   120 * time.Second,
		},
		Retrieval: RetrievalConfig{DefaultK: 10},
		Server:    ServerConfig{Port: 8080, LogLevel: "info"},
		Rebuild: RebuildConfig{
			PollInterval: 30 * time.Minute,
			HardTimeout:  10 * time.Minute,
		},
	}
}

// DefaultDataDir returns ~/.digitalmemory, falling back to a temp directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".digitalmemory")
	}
	return filepath.Join(home, ".digitalmemory")
}

// Load resolves configuration: defaults, then an optional YAML file at
// yamlPath (ignored if absent), then environment variable overrides.
func Load(yamlPath string) (Config, error) {
	cfg := Default(DefaultDataDir())

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("INDEX_PATH"); v != "" {
		cfg.Paths.IndexPath = v
	}
	if v := os.Getenv("METADATA_PATH"); v != "" {
		cfg.Paths.MetadataPath = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("EMBEDDING_ENDPOINT"); v != "" {
		cfg.Embedding.Endpoint = v
	}
	if v := os.Getenv("CHAT_ENDPOINT"); v != "" {
		cfg.Chat.Endpoint = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// APIKey reads the embedding API key from the configured environment
// variable. Returns empty string if unset.
func (c EmbeddingConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// APIKey reads the chat API key from the configured environment variable.
func (c ChatConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}
