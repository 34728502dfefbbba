// Package stream decodes the service's Server-Sent Event stream into typed
// events. It is purely a framing and parsing layer: terminal-event
// invariants are enforced by the consumer.
package stream

// EventType discriminates decoded stream events.
type EventType string

const (
	// EventStage marks which phase of server-side processing is active.
	EventStage EventType = "stage"
	// EventToken carries an incremental fragment of the answer.
	EventToken EventType = "token"
	// EventSQL carries the SQL query the agent generated mid-stream.
	EventSQL EventType = "sql"
	// EventDone is the terminal success event.
	EventDone EventType = "done"
	// EventError is the terminal failure event.
	EventError EventType = "error"
)

// Event is one decoded frame payload. The populated fields depend on Type.
type Event struct {
	Type EventType `json:"type"`

	// Stage events.
	Stage string `json:"stage,omitempty"`
	Label string `json:"label,omitempty"`

	// Token events.
	Content string `json:"content,omitempty"`

	// SQL events.
	Query string `json:"query,omitempty"`

	// Done events. Answer may be empty when the full text was already
	// delivered through token events.
	ConversationID string `json:"conversation_id,omitempty"`
	Answer         string `json:"answer,omitempty"`
	SQLQuery       string `json:"sql_query,omitempty"`

	// Error events. Code is optional and machine readable.
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Terminal reports whether no further events may follow this one.
func (e *Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
