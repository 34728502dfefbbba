package mockserver

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bharatr21/clinical-trials-agent/pkg/types"
)

// memoryStore keeps conversations per client identity. Everything lives in
// process memory; restarting the server clears it.
type memoryStore struct {
	mu      sync.Mutex
	byOwner map[string]map[string]*storedConversation
}

type storedConversation struct {
	id        string
	title     string
	messages  []types.Message
	createdAt time.Time
	updatedAt time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byOwner: make(map[string]map[string]*storedConversation)}
}

// appendExchange records one question/answer turn, creating the
// conversation when id is empty. The assistant turn carries the executed
// query as a tool call so history rebuilds can recover it.
func (m *memoryStore) appendExchange(owner, id, question, answer, sql string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	convs := m.byOwner[owner]
	if convs == nil {
		convs = make(map[string]*storedConversation)
		m.byOwner[owner] = convs
	}

	now := time.Now().UTC()
	conv := convs[id]
	if conv == nil {
		conv = &storedConversation{
			id:        uuid.NewString(),
			title:     title(question),
			createdAt: now,
		}
		convs[conv.id] = conv
	}
	conv.updatedAt = now

	conv.messages = append(conv.messages, types.Message{
		ID:      uuid.NewString(),
		Role:    types.RoleUser,
		Content: question,
	})
	answerMsg := types.Message{
		ID:      uuid.NewString(),
		Role:    types.RoleAssistant,
		Content: answer,
	}
	if sql != "" {
		answerMsg.ToolCalls = []types.ToolCall{{
			Name: "execute_sql",
			Args: types.ToolCallArgs{Query: sql},
		}}
	}
	conv.messages = append(conv.messages, answerMsg)

	return conv.id
}

// list returns summaries for one owner, most recently updated first.
func (m *memoryStore) list(owner string, limit, offset int) ([]types.ConversationSummary, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	convs := make([]*storedConversation, 0, len(m.byOwner[owner]))
	for _, c := range m.byOwner[owner] {
		convs = append(convs, c)
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].updatedAt.After(convs[j].updatedAt)
	})

	total := len(convs)
	if offset >= total {
		return []types.ConversationSummary{}, total
	}
	convs = convs[offset:]
	if limit > 0 && limit < len(convs) {
		convs = convs[:limit]
	}

	summaries := make([]types.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summaries = append(summaries, types.ConversationSummary{
			ID:        c.id,
			Title:     c.title,
			CreatedAt: c.createdAt.Format(time.RFC3339),
			UpdatedAt: c.updatedAt.Format(time.RFC3339),
		})
	}
	return summaries, total
}

// get returns one conversation, or nil when unknown.
func (m *memoryStore) get(owner, id string) *types.ConversationDetail {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.byOwner[owner][id]
	if conv == nil {
		return nil
	}
	messages := make([]types.Message, len(conv.messages))
	copy(messages, conv.messages)
	return &types.ConversationDetail{
		ID:        conv.id,
		Title:     conv.title,
		Messages:  messages,
		CreatedAt: conv.createdAt.Format(time.RFC3339),
		UpdatedAt: conv.updatedAt.Format(time.RFC3339),
	}
}

// delete removes a conversation. It reports whether it existed.
func (m *memoryStore) delete(owner, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	convs := m.byOwner[owner]
	if _, ok := convs[id]; !ok {
		return false
	}
	delete(convs, id)
	return true
}

// title derives a conversation title from the first question. Truncation
// counts runes so a multi-byte character is never split.
func title(question string) string {
	const maxTitle = 60
	runes := []rune(question)
	if len(runes) <= maxTitle {
		return question
	}
	return string(runes[:maxTitle]) + "..."
}
