package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MilvusConfig holds the Milvus connection settings.
type MilvusConfig struct {
	Address string `yaml:"address"`
}

// OpenAIConfig holds the model settings. The API key is never stored in the
// YAML file; it comes from the OPENAI_API_KEY environment variable.
type OpenAIConfig struct {
	EmbeddingModel string `yaml:"embeddingModel"`
	ChatModel      string `yaml:"chatModel"`
}

// ChunkerConfig holds the text splitting policy.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunkSize"`
	ChunkOverlap int `yaml:"chunkOverlap"`
}

// RetrievalConfig holds the retrieval policy.
type RetrievalConfig struct {
	TopK       int `yaml:"topK"`
	CharBudget int `yaml:"charBudget"`
}

// BatchConfig holds the concurrent driver settings.
type BatchConfig struct {
	MaxParallel    int `yaml:"maxParallel"`
	TaskTimeoutSec int `yaml:"taskTimeoutSec"`
	PacingDelayMs  int `yaml:"pacingDelayMs"`
}

// AppConfig is the root configuration for the service.
type AppConfig struct {
	LogLevel  string          `yaml:"logLevel"`
	Milvus    MilvusConfig    `yaml:"milvus"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Batch     BatchConfig     `yaml:"batch"`
}

// LoadConfig reads and parses the YAML configuration at path.
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return &cfg, nil
}
