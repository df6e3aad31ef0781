package services

import (
	"errors"
	"os"
	"sync"

	"github.com/sashabaranov/go-openai"
)

var ErrNoLLMConfigured = errors.New("no LLM provider configured: set OPENAI_API_KEY, DEEPSEEK_API_KEY, USE_OPENROUTER or USE_OLLAMA_DEEPSEEK")

// Provider names the backend an LLM client talks to.
type Provider string

const (
	ProviderOllama     Provider = "ollama"
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
	ProviderDeepseek   Provider = "deepseek"
)

// LLMConfig resolves the OpenAI-compatible client configuration from the
// environment. Local Ollama wins over OpenRouter, which wins over the
// hosted APIs.
func LLMConfig() (openai.ClientConfig, Provider, error) {
	if os.Getenv("USE_OLLAMA_DEEPSEEK") == "true" {
		config := openai.DefaultConfig("not-needed")
		config.BaseURL = "http://localhost:11434/v1"
		if url := os.Getenv("OLLAMA_URL"); url != "" {
			config.BaseURL = url + "/v1"
		}
		return config, ProviderOllama, nil
	}

	if os.Getenv("USE_OPENROUTER") == "true" {
		apiKey := os.Getenv("OPENROUTER_API_KEY")
		if apiKey == "" {
			return openai.ClientConfig{}, "", errors.New("OPENROUTER_API_KEY environment variable is not set")
		}
		config := openai.DefaultConfig(apiKey)
		config.BaseURL = "https://openrouter.ai/api/v1"
		config.OrgID = "openrouter"
		return config, ProviderOpenRouter, nil
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config := openai.DefaultConfig(apiKey)
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			config.BaseURL = baseURL
		}
		return config, ProviderOpenAI, nil
	}

	if apiKey := os.Getenv("DEEPSEEK_API_KEY"); apiKey != "" {
		baseURL := os.Getenv("DEEPSEEK_API_BASE")
		if baseURL == "" {
			baseURL = "https://api.deepseek.com/v1"
		}
		config := openai.DefaultConfig(apiKey)
		config.BaseURL = baseURL
		return config, ProviderDeepseek, nil
	}

	return openai.ClientConfig{}, "", ErrNoLLMConfigured
}

// DefaultLLMClient returns the process-wide client built from LLMConfig.
var DefaultLLMClient = sync.OnceValues(func() (*openai.Client, error) {
	config, _, err := LLMConfig()
	if err != nil {
		return nil, err
	}
	return openai.NewClientWithConfig(config), nil
})
