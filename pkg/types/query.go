package types

// QueryRequest is the body of both the streaming and non-streaming query
// endpoints.
type QueryRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// QueryResult is the final outcome of a query: the answer text, the SQL the
// agent executed (if any), and the conversation the exchange belongs to.
type QueryResult struct {
	Answer         string `json:"answer"`
	SQL            string `json:"sql_query,omitempty"`
	ConversationID string `json:"conversation_id"`
}

// Machine-readable error codes the service attaches to classified failures.
// These are the only codes that change caller-side control flow: a credential
// code means the caller should prompt for an alternate API key.
const (
	ErrCodeRateLimit         = "rate_limit"
	ErrCodeInsufficientQuota = "insufficient_quota"
	ErrCodeInvalidAPIKey     = "invalid_api_key"
)

// CredentialError reports whether an error code indicates the request failed
// for credential or quota reasons and a user-supplied key could help.
func CredentialError(code string) bool {
	switch code {
	case ErrCodeInvalidAPIKey, ErrCodeInsufficientQuota, ErrCodeRateLimit:
		return true
	}
	return false
}

// Health is the response of the health endpoint.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
