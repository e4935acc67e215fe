package anthropic

import (
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type Config struct {
	APIKey      string        `envconfig:"API_KEY" split_words:"true"`
	Model       string        `envconfig:"MODEL" split_words:"true" default:"claude-sonnet-4-20250514"`
	MaxTokens   int64         `envconfig:"MAX_TOKENS" split_words:"true" default:"600"`
	Temperature float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.4"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// NewClient returns nil when no API key is configured.
func NewClient(cfg Config) *anthropicsdk.Client {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := anthropicsdk.NewClient(opts...)
	return &client
}
