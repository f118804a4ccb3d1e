// Package config loads the tunables and topic catalogue for an interview
// from YAML, the way tarsy's pkg/config loads agent/chain/provider
// definitions: environment-variable expansion, then struct validation via
// github.com/go-playground/validator/v10.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/bookinterview/coordinator/internal/content"
)

// TopicConfig is the YAML shape of one content.Topic.
type TopicConfig struct {
	ID            string `yaml:"id" validate:"required"`
	Name          string `yaml:"name" validate:"required"`
	Starter       string `yaml:"starter" validate:"required"`
	DepthCriteria string `yaml:"depth_criteria" validate:"required"`
}

// LLMConfig holds the LLM tunables. Temperature and MaxTokens are passed to
// every LLM call; Model is validated but not passed on, since the agents
// always request llmtransport.DefaultModel.
type LLMConfig struct {
	Model       string  `yaml:"model" validate:"required"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=1"`
	MaxTokens   int32   `yaml:"max_tokens" validate:"required,gt=0"`
}

// Config is the full set of tunables for one interview run.
type Config struct {
	TotalSeconds       int           `yaml:"total_seconds" validate:"required,gt=0"`
	CollectionWindowMS int           `yaml:"collection_window_ms" validate:"required,gt=0"`
	TickerPeriodSeconds int          `yaml:"ticker_period_seconds" validate:"required,gt=0"`
	MaxHistoryTurns    int           `yaml:"max_history_turns" validate:"required,gt=0"`
	LLM                LLMConfig     `yaml:"llm" validate:"required"`
	Topics             []TopicConfig `yaml:"topics" validate:"required,min=1,dive"`
}

// CollectionWindow returns the collection window as a time.Duration.
func (c *Config) CollectionWindow() time.Duration {
	return time.Duration(c.CollectionWindowMS) * time.Millisecond
}

// TickerPeriod returns the ticker period as a time.Duration.
func (c *Config) TickerPeriod() time.Duration {
	return time.Duration(c.TickerPeriodSeconds) * time.Second
}

// Registry builds the content.Registry described by Topics.
func (c *Config) Registry() (*content.Registry, error) {
	topics := make([]content.Topic, 0, len(c.Topics))
	for _, t := range c.Topics {
		topics = append(topics, content.Topic{
			ID:            content.TopicID(t.ID),
			Name:          t.Name,
			Starter:       t.Starter,
			DepthCriteria: t.DepthCriteria,
		})
	}
	return content.NewRegistry(topics)
}

// Load reads, env-expands, parses, and validates a YAML config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse env-expands, parses, and validates raw YAML content. Exported
// separately from Load so tests and embedded defaults can skip the
// filesystem.
func Parse(raw []byte) (*Config, error) {
	expanded := ExpandEnv(raw)

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: invalid YAML: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// ExpandEnv expands ${VAR}/$VAR references using the standard library,
// mirroring tarsy's pkg/config/envexpand.go.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
