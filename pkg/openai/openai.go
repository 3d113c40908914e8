// Package openai provides thin clients for the OpenAI embeddings and chat
// completions HTTP APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// EmbedClient computes embeddings with a fixed model and output dimension.
type EmbedClient struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	client  *http.Client
}

// NewEmbedClient creates an embeddings client. The model and dimension count
// are fixed per client so ingestion and query time cannot drift apart.
func NewEmbedClient(baseURL, apiKey, model string, dims int) *EmbedClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &EmbedClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		dims:    dims,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type embedRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(embedRequest{Model: c.model, Input: text, Dimensions: c.dims})

	var result embedResponse
	if err := c.post(ctx, "/embeddings", body, &result); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}
	return result.Data[0].Embedding, nil
}

func (c *EmbedClient) post(ctx context.Context, path string, body []byte, out any) error {
	return doPost(ctx, c.client, c.baseURL+path, c.apiKey, body, out)
}

// ChatClient generates completions with a fixed model.
type ChatClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewChatClient creates a chat completions client.
func NewChatClient(baseURL, apiKey, model string) *ChatClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &ChatClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user message and returns the generated
// text.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, _ := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})

	var result chatResponse
	if err := doPost(ctx, c.client, c.baseURL+"/chat/completions", c.apiKey, body, &result); err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai chat: empty response")
	}
	return result.Choices[0].Message.Content, nil
}

// doPost sends an authenticated JSON POST and decodes the response into out.
func doPost(ctx context.Context, client *http.Client, url, apiKey string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
