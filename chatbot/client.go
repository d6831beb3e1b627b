package chatbot

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
)

// ErrMissingContent is returned when a reply has no content field
var ErrMissingContent = errors.New("response is missing content")

// Request is the body of a chat request
type Request struct {
	SessionID         string            `json:"session_id"`
	ConversationID    string            `json:"conversation_id"`
	Question          string            `json:"question"`
	LLMType           string            `json:"llm_type"`
	Temperature       float64           `json:"temperature"`
	NumberOfDocuments int               `json:"number_of_documents"`
	MessageHistory    []json.RawMessage `json:"message_history"`
}

// Response is a validated chat reply
type Response struct {
	Content        string
	MessageHistory []json.RawMessage
}

// wireResponse is the reply body as sent by the endpoint
type wireResponse struct {
	SessionID      string            `json:"session_id"`
	ConversationID string            `json:"conversation_id"`
	Content        *string           `json:"content"`
	MessageHistory []json.RawMessage `json:"message_history"`
}

// RatingRequest is the body of a message rating
type RatingRequest struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Value          string `json:"value"`
	Message        string `json:"message"`
}

// Client is the remote chat endpoint
type Client interface {
	Ask(ctx context.Context, req *Request) (*Response, error)
	Rate(ctx context.Context, req *RatingRequest) error
}

// TokenSource provides the bearer token for authenticated calls. An empty token sends no header.
type TokenSource interface {
	IDToken() (string, error)
}

// HTTPClient is a Client for the HTTP JSON endpoint
type HTTPClient struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewHTTPClient creates a new client for the endpoint at baseURL. tokens may be nil.
// A zero timeout means requests never time out.
func NewHTTPClient(baseURL string, tokens TokenSource, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.IDToken()
		if err != nil {
			return nil, fmt.Errorf("failed to read token: %w", err)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return resp, nil
}

// Ask sends a question and returns the full reply
func (c *HTTPClient) Ask(ctx context.Context, req *Request) (*Response, error) {
	if req.MessageHistory == nil {
		req.MessageHistory = []json.RawMessage{}
	}

	resp, err := c.post(ctx, "/llm", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if wire.Content == nil {
		return nil, ErrMissingContent
	}

	history := wire.MessageHistory
	if history == nil {
		history = []json.RawMessage{}
	}

	return &Response{Content: *wire.Content, MessageHistory: history}, nil
}

// Rate sends a rating for a reply
func (c *HTTPClient) Rate(ctx context.Context, req *RatingRequest) error {
	resp, err := c.post(ctx, "/rating", req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
