package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bharatr21/clinical-trials-agent/internal/event"
	"github.com/bharatr21/clinical-trials-agent/internal/stream"
	"github.com/bharatr21/clinical-trials-agent/pkg/types"
)

// Observers are the caller's callbacks for one streaming query. Every field
// is optional. OnToken receives only the incremental fragment; callers that
// want the running text accumulate it themselves.
type Observers struct {
	OnStage    func(stage, label string)
	OnToken    func(content string)
	OnSQL      func(query string)
	OnComplete func(result *types.QueryResult)
	OnError    func(message, code string)
}

func (o Observers) stage(stage, label string) {
	if o.OnStage != nil {
		o.OnStage(stage, label)
	}
}

func (o Observers) token(content string) {
	if o.OnToken != nil {
		o.OnToken(content)
	}
}

func (o Observers) sql(query string) {
	if o.OnSQL != nil {
		o.OnSQL(query)
	}
}

func (o Observers) complete(result *types.QueryResult) {
	if o.OnComplete != nil {
		o.OnComplete(result)
	}
}

func (o Observers) error(message, code string) {
	if o.OnError != nil {
		o.OnError(message, code)
	}
}

// sessionState is the ephemeral per-query state. It lives for one request
// and is rebuilt from scratch on the next.
type sessionState struct {
	text      strings.Builder
	sql       string
	lastLabel string
}

// ExecuteQuery streams a question through the service and drives the
// observers as events arrive. It returns the final result, or nil when the
// query failed or was cancelled. Failures never surface as panics or
// errors here: every failure path invokes OnError (cancellation invokes
// nothing) and yields a nil result.
//
// A query already in flight on this Client is cancelled first; its
// observers see no further callbacks once the new query starts.
func (c *Client) ExecuteQuery(ctx context.Context, question, conversationID string, obs Observers) *types.QueryResult {
	c.CancelQuery()

	ctx, cancel := context.WithCancel(ctx)
	run := &inflight{cancel: cancel}
	c.mu.Lock()
	c.current = run
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.current == run {
			c.current = nil
		}
		c.mu.Unlock()
	}()

	resp, ok := c.openStream(ctx, question, conversationID, obs)
	if !ok {
		return nil
	}
	c.adoptIdentity(ctx, resp)

	return c.consumeStream(ctx, resp.Body, obs)
}

// CancelQuery cancels the active streaming query, if any. Cancelling an
// idle Client is a no-op.
func (c *Client) CancelQuery() {
	c.mu.Lock()
	run := c.current
	c.current = nil
	c.mu.Unlock()

	if run != nil {
		c.log.Debug().Msg("cancelling active query")
		run.cancel()
	}
}

// openStream issues the streaming request. On any failure it reports
// through the observers and returns ok=false.
func (c *Client) openStream(ctx context.Context, question, conversationID string, obs Observers) (*http.Response, bool) {
	body, err := json.Marshal(types.QueryRequest{Question: question, ConversationID: conversationID})
	if err != nil {
		c.fail(obs, "failed to encode request", "")
		return nil, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/query/stream"), bytes.NewReader(body))
	if err != nil {
		c.fail(obs, "failed to build request", "")
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if err := c.applyHeaders(ctx, req); err != nil {
		c.log.Error().Err(err).Msg("identity resolution failed")
		c.fail(obs, "failed to resolve client identity", "")
		return nil, false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			c.cancelled()
			return nil, false
		}
		c.log.Error().Err(err).Msg("stream request failed")
		c.fail(obs, "could not reach the service", "")
		return nil, false
	}

	if resp.StatusCode != http.StatusOK {
		message, code := classifyStatus(resp)
		resp.Body.Close()
		c.fail(obs, message, code)
		return nil, false
	}

	return resp, true
}

// consumeStream runs the decode loop: a single coordinator consuming the
// event sequence and fanning out to observers at the boundary.
func (c *Client) consumeStream(ctx context.Context, body io.ReadCloser, obs Observers) *types.QueryResult {
	dec := stream.NewDecoder(body)
	defer dec.Close()

	var state sessionState

	for {
		ev, err := dec.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
				// Cancellation is not an error: no callback fires.
				c.cancelled()
			case errors.Is(err, io.EOF):
				// The server closed the stream without a terminal event.
				c.fail(obs, "stream ended before completion", "")
			default:
				c.log.Error().Err(err).Msg("stream read failed")
				c.fail(obs, "connection lost while streaming", "")
			}
			return nil
		}

		switch ev.Type {
		case stream.EventStage:
			state.lastLabel = ev.Label
			obs.stage(ev.Stage, ev.Label)
			c.publish(event.Event{Type: event.QueryStage, Data: event.QueryStageData{Stage: ev.Stage, Label: ev.Label}})

		case stream.EventToken:
			state.text.WriteString(ev.Content)
			obs.token(ev.Content)
			c.publish(event.Event{Type: event.QueryToken, Data: event.QueryTokenData{Content: ev.Content}})

		case stream.EventSQL:
			state.sql = ev.Query
			obs.sql(ev.Query)
			c.publish(event.Event{Type: event.QuerySQL, Data: event.QuerySQLData{Query: ev.Query}})

		case stream.EventDone:
			result := &types.QueryResult{
				Answer:         ev.Answer,
				SQL:            ev.SQLQuery,
				ConversationID: ev.ConversationID,
			}
			if result.Answer == "" {
				result.Answer = state.text.String()
			}
			if result.SQL == "" {
				result.SQL = state.sql
			}
			obs.complete(result)
			c.publish(event.Event{Type: event.QueryDone, Data: event.QueryDoneData{Result: result}})
			return result

		case stream.EventError:
			c.fail(obs, ev.Message, ev.Code)
			return nil

		default:
			c.log.Debug().Str("type", string(ev.Type)).Msg("ignoring unknown event type")
		}
	}
}

// fail reports a failure through the observer and the bus.
func (c *Client) fail(obs Observers, message, code string) {
	obs.error(message, code)
	c.publish(event.Event{Type: event.QueryError, Data: event.QueryErrorData{Message: message, Code: code}})
}

// cancelled publishes the cancellation marker. No observer fires.
func (c *Client) cancelled() {
	c.publish(event.Event{Type: event.QueryCancelled})
}

// classifyStatus maps a non-success HTTP response to an observer message
// and optional machine-readable code. The service reports rate limiting and
// credential failures through the response detail.
func classifyStatus(resp *http.Response) (message, code string) {
	var payload struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return "Invalid API key. Please provide a valid OpenAI API key.", types.ErrCodeInvalidAPIKey
	case http.StatusTooManyRequests:
		code := payload.Detail
		if code != types.ErrCodeInsufficientQuota {
			code = types.ErrCodeRateLimit
		}
		if code == types.ErrCodeInsufficientQuota {
			return "API quota exceeded. Please provide your own API key.", code
		}
		return "Rate limit reached. Please wait a moment or provide your own API key.", code
	}

	if payload.Detail != "" {
		return payload.Detail, ""
	}
	return "the service returned status " + resp.Status, ""
}
