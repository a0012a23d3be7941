// Package tokencount counts and truncates text by model tokens using tiktoken-go,
// so embedding inputs stay within the provider's context window.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// BPE ranks are embedded in the binary so counting never touches the network.
func init() { tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader()) }

// fallbackEncoding is used by every current OpenAI embedding model.
const fallbackEncoding = "cl100k_base"

// Counter provides thread-safe token counting with cached encodings.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{encodingCache: make(map[string]*tiktoken.Tiktoken)}
}

// DefaultCounter is a process-wide counter instance.
var DefaultCounter = NewCounter()

func (c *Counter) encodingFor(model string) (*tiktoken.Tiktoken, error) {
	model = normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[model]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[model]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding", slog.String("model", model), slog.Any("error", err))
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	c.encodingCache[model] = enc
	return enc, nil
}

// normalizeModelName strips provider prefixes such as "openai/".
func normalizeModelName(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	return model
}

// CountTokens counts the tokens of text under model's encoding.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.encodingFor(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// Truncate cuts text to at most maxTokens tokens. The second result reports
// whether anything was removed. maxTokens <= 0 disables truncation.
func (c *Counter) Truncate(text, model string, maxTokens int) (string, bool, error) {
	if maxTokens <= 0 || text == "" {
		return text, false, nil
	}
	enc, err := c.encodingFor(model)
	if err != nil {
		return text, false, err
	}
	toks := enc.Encode(text, nil, nil)
	if len(toks) <= maxTokens {
		return text, false, nil
	}
	return enc.Decode(toks[:maxTokens]), true, nil
}
