package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"github.com/bharatr21/clinical-trials-agent/pkg/types"
)

// maxGetRetries bounds retries of idempotent GETs. Mutating calls are never
// retried.
const maxGetRetries = 3

// APIError is a non-success response from the service.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("service returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("service returned %d", e.StatusCode)
}

// ListConversations returns this client's stored conversations, most
// recently updated first.
func (c *Client) ListConversations(ctx context.Context, limit, offset int) (*types.ConversationList, error) {
	url := fmt.Sprintf("%s?limit=%d&offset=%d", c.endpoint("/conversations"), limit, offset)

	var list types.ConversationList
	if err := c.getJSON(ctx, url, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetConversation returns one conversation with its full message history.
func (c *Client) GetConversation(ctx context.Context, id string) (*types.ConversationDetail, error) {
	var detail types.ConversationDetail
	if err := c.getJSON(ctx, c.endpoint("/conversations/"+id), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// DeleteConversation removes a stored conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("/conversations/"+id), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if err := c.applyHeaders(ctx, req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	defer resp.Body.Close()
	c.adoptIdentity(ctx, resp)

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// Query runs a question through the non-streaming endpoint and waits for
// the complete answer.
func (c *Client) Query(ctx context.Context, question, conversationID string) (*types.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	body, err := json.Marshal(types.QueryRequest{Question: question, ConversationID: conversationID})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/query"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.applyHeaders(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying service: %w", err)
	}
	defer resp.Body.Close()
	c.adoptIdentity(ctx, resp)

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var result types.QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &result, nil
}

// Health checks service availability.
func (c *Client) Health(ctx context.Context) (*types.Health, error) {
	var health types.Health
	if err := c.getJSON(ctx, c.baseURL.String()+"/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// getJSON performs an idempotent GET with capped exponential backoff.
// Transport failures and 5xx responses are retried; 4xx responses are
// permanent.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("building request: %w", err))
		}
		if err := c.applyHeaders(ctx, req); err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("requesting %s: %w", url, err)
		}
		defer resp.Body.Close()
		c.adoptIdentity(ctx, resp)

		if resp.StatusCode >= http.StatusInternalServerError {
			return apiError(resp)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(apiError(resp))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxGetRetries), ctx)
	return backoff.Retry(operation, policy)
}

// apiError reads the response detail into an APIError.
func apiError(resp *http.Response) error {
	var payload struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)
	return &APIError{StatusCode: resp.StatusCode, Detail: payload.Detail}
}
