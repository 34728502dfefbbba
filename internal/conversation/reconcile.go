// Package conversation rebuilds a displayable message list from the flat
// persisted history the service returns. The history interleaves user turns,
// assistant turns, and tool-invocation records; reconstruction attaches each
// generated SQL query to the assistant turn it belongs to.
package conversation

import (
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/bharatr21/clinical-trials-agent/pkg/types"
)

// Reconstruct converts persisted history into ordered display messages.
//
// A single pending SQL slot carries a captured query forward: a record with
// a query in its tool calls overwrites the slot (last writer wins), a record
// with no visible content emits nothing but keeps the slot, and the first
// content-bearing assistant turn consumes it. The slot is cleared after
// consumption so a query never leaks into a later, unrelated turn. Roles
// other than user and assistant are structural carriers and never display.
func Reconstruct(history []types.Message) []types.DisplayMessage {
	display := make([]types.DisplayMessage, 0, len(history))
	var pendingSQL string

	for _, msg := range history {
		if msg.Role != types.RoleUser && msg.Role != types.RoleAssistant {
			continue
		}

		if q := msg.SQL(); q != "" {
			pendingSQL = q
		}

		if strings.TrimSpace(msg.Content) == "" {
			// Pure tool-invocation turn: no display entry, but the
			// captured query stays pending for the next assistant
			// turn with content.
			continue
		}

		dm := types.DisplayMessage{
			ID:      messageID(msg.ID),
			Role:    msg.Role,
			Content: msg.Content,
		}
		if msg.Role == types.RoleAssistant {
			dm.SQL = pendingSQL
			pendingSQL = ""
		}
		display = append(display, dm)
	}

	return display
}

// messageID keeps the persisted id when present and mints a fresh one
// otherwise, so every display entry is addressable.
func messageID(id string) string {
	if id != "" {
		return id
	}
	return ulid.Make().String()
}
