package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/incuisenix/backend/internal/pkg/ctxutil"
	"github.com/incuisenix/backend/internal/pkg/envutil"
	"github.com/incuisenix/backend/internal/pkg/httpx"
	"github.com/incuisenix/backend/internal/pkg/logger"
	"github.com/incuisenix/backend/internal/platform/openai"
)

// Client talks to a local Ollama daemon through its native HTTP API. It
// satisfies openai.Client so the assistant and indexing code can swap
// providers with AI_PROVIDER=ollama and no other changes.
type Client struct {
	log        *logger.Logger
	baseURL    string
	model      string
	embedModel string
	httpClient *http.Client
	maxRetries int
}

var _ openai.Client = (*Client)(nil)

func NewClient(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Client{
		log:        log.With("service", "OllamaClient"),
		baseURL:    strings.TrimRight(envutil.String("OLLAMA_BASE_URL", "http://localhost:11434"), "/"),
		model:      envutil.String("OLLAMA_MODEL", "llama3.1"),
		embedModel: envutil.String("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		httpClient: &http.Client{Timeout: envutil.DurationSeconds("OLLAMA_TIMEOUT_SECONDS", 300)},
		maxRetries: envutil.Int("OLLAMA_MAX_RETRIES", 2),
	}, nil
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("ollama http %d: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "POST", c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := c.httpClient.Do(req)
		if doErr == nil {
			raw, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				return readErr
			}
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				if out == nil {
					return nil
				}
				return json.Unmarshal(raw, out)
			}
			doErr = &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
			if !httpx.RetryableStatus(resp.StatusCode) || attempt == c.maxRetries {
				return doErr
			}
		} else if attempt == c.maxRetries {
			return doErr
		}

		sleepFor := httpx.Backoff(time.Second, 8*time.Second, attempt+1)
		c.log.Warn("Ollama request retrying",
			"path", path,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", doErr.Error(),
		)
		time.Sleep(sleepFor)
	}
	return fmt.Errorf("unreachable retry loop")
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	var resp embedResponse
	if err := c.do(ctx, "/api/embed", embedRequest{Model: c.embedModel, Input: clean}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(clean) {
		return nil, fmt.Errorf("ollama embeddings count mismatch: requested=%d returned=%d model=%s",
			len(clean), len(resp.Embeddings), c.embedModel)
	}
	return resp.Embeddings, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []chatMessage   `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (c *Client) chat(ctx context.Context, system, user string, format json.RawMessage) (string, error) {
	req := chatRequest{Model: c.model, Stream: false, Format: format}
	if strings.TrimSpace(system) != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: user})

	var resp chatResponse
	if err := c.do(ctx, "/api/chat", req, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

func (c *Client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	return c.chat(ctx, system, user, nil)
}

func (c *Client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}

	// Ollama takes the bare JSON schema as the format value.
	format, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	text, err := c.chat(ctx, system, user, format)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("ollama structured output decode: %w; raw=%s", err, text)
	}
	return out, nil
}
