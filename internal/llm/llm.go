// Package llm is a thin client over the engine's three model-provider
// endpoints (spec §6): chat completion, embedding, and tokenization. The
// provider is an abstract local-model server (LM Studio, Ollama, or
// compatible) addressed by a single base URL; none of the ecosystem SDKs
// in the example corpus model this exact three-endpoint contract, so the
// client is hand-written the way the teacher writes its own provider
// client (internal/llm/llm.go in the teacher repo): a struct, a
// constructor reading config/env, and context-bound methods that return
// errors rather than panicking.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ire/internal/ireerr"
)

// Client talks to the chat/embed/tokenize endpoints of a single base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client against baseURL with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ChatMessage is one turn in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float32       `json:"temperature"`
	KeepAlive   string        `json:"keep_alive,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete performs a non-streaming chat completion and returns the first
// choice's message content. On any transport or shape failure it returns a
// ModelError/TransportError and an empty string; callers must tolerate this
// per spec §4.A/§7.
func (c *Client) Complete(ctx context.Context, model string, messages []ChatMessage, temperature float32) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Stream:      false,
		Temperature: temperature,
	})
	if err != nil {
		return "", ireerr.Parse("encode chat request", err)
	}

	resp, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return "", err
	}
	defer resp.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp).Decode(&parsed); err != nil {
		return "", ireerr.Parse("decode chat response", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", ireerr.Model("empty chat response", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse accepts either shape named in spec §6: {embedding:[...]}
// for a single input, or {embeddings:[[...]]} for a batch.
type embedResponse struct {
	Embedding  []float32   `json:"embedding"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed requests a single embedding. A transport failure, an undecodable
// body, or a response with neither embedding field is returned as an
// error, not as a nil vector.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}

// EmbedBatch requests embeddings for multiple inputs in one call.
func (c *Client) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: model, Input: texts})
	if err != nil {
		return nil, ireerr.Parse("encode embed request", err)
	}

	resp, err := c.post(ctx, "/embed", body)
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	var parsed embedResponse
	if err := json.NewDecoder(resp).Decode(&parsed); err != nil {
		return nil, ireerr.Parse("decode embed response", err)
	}

	switch {
	case len(parsed.Embeddings) > 0:
		return parsed.Embeddings, nil
	case len(parsed.Embedding) > 0:
		return [][]float32{parsed.Embedding}, nil
	default:
		return nil, ireerr.Model("embed response had neither embedding nor embeddings field", nil)
	}
}

type tokenizeRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

// Tokenize returns the token count for prompt according to the model
// endpoint. Callers fall back to a word-count estimate on error (spec §6).
func (c *Client) Tokenize(ctx context.Context, model, prompt string) (int, error) {
	body, err := json.Marshal(tokenizeRequest{Model: model, Prompt: prompt})
	if err != nil {
		return 0, ireerr.Parse("encode tokenize request", err)
	}

	resp, err := c.post(ctx, "/tokenize", body)
	if err != nil {
		return 0, err
	}
	defer resp.Close()

	var parsed tokenizeResponse
	if err := json.NewDecoder(resp).Decode(&parsed); err != nil {
		return 0, ireerr.Parse("decode tokenize response", err)
	}
	return len(parsed.Tokens), nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, ireerr.Transport("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ireerr.Transport(fmt.Sprintf("request to %s", path), err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, ireerr.Transport(fmt.Sprintf("%s returned status %d", path, resp.StatusCode), nil)
	}
	return resp.Body, nil
}
