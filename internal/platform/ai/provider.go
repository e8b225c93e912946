// Package ai selects the model provider backing embeddings and text
// generation. Both providers expose the openai.Client interface.
package ai

import (
	"fmt"
	"strings"

	"github.com/incuisenix/backend/internal/pkg/envutil"
	"github.com/incuisenix/backend/internal/pkg/logger"
	"github.com/incuisenix/backend/internal/platform/ollama"
	"github.com/incuisenix/backend/internal/platform/openai"
)

// NewFromEnv returns the client named by AI_PROVIDER ("openai" or
// "ollama"). OpenAI is the default.
func NewFromEnv(log *logger.Logger) (openai.Client, error) {
	provider := strings.ToLower(envutil.String("AI_PROVIDER", "openai"))
	switch provider {
	case "", "openai":
		return openai.NewClient(log)
	case "ollama":
		return ollama.NewClient(log)
	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q", provider)
	}
}
