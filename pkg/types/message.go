package types

// Message roles as they appear in persisted conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a persisted conversation record as returned by the service.
// The history is flat: it interleaves user turns, assistant turns, and
// tool-invocation records. A record whose Content is empty but which carries
// ToolCalls is a pure tool-invocation turn with no user-visible text.
type Message struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall records a tool invocation emitted by an assistant turn.
// Only SQL-generating calls carry a query in their arguments.
type ToolCall struct {
	Name string       `json:"name,omitempty"`
	Args ToolCallArgs `json:"args,omitempty"`
}

// ToolCallArgs holds the arguments of a tool call. Tools other than the SQL
// executor leave Query empty.
type ToolCallArgs struct {
	Query string `json:"query,omitempty"`
}

// SQL returns the generated SQL query carried by this message's tool calls,
// or "" when none is present. When several calls carry a query the last one
// wins, matching the streaming endpoint which overwrites earlier captures.
func (m *Message) SQL() string {
	var query string
	for _, tc := range m.ToolCalls {
		if tc.Args.Query != "" {
			query = tc.Args.Query
		}
	}
	return query
}

// DisplayMessage is a single entry in the rendered conversation, produced
// either synthetically (the user just submitted a question) or by
// reconstruction from persisted history. Ordering is chronological.
type DisplayMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"` // RoleUser or RoleAssistant
	Content string `json:"content"`
	SQL     string `json:"sql_query,omitempty"` // assistant turns only
}
