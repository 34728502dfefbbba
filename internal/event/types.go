package event

import "github.com/bharatr21/clinical-trials-agent/pkg/types"

// QueryStageData is the data for query.stage events.
type QueryStageData struct {
	Stage string `json:"stage"`
	Label string `json:"label"`
}

// QueryTokenData is the data for query.token events. Content is the
// incremental fragment, never the accumulated text.
type QueryTokenData struct {
	Content string `json:"content"`
}

// QuerySQLData is the data for query.sql events.
type QuerySQLData struct {
	Query string `json:"query"`
}

// QueryDoneData is the data for query.done events.
type QueryDoneData struct {
	Result *types.QueryResult `json:"result"`
}

// QueryErrorData is the data for query.error events. Code is empty for
// unclassified transport failures.
type QueryErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// IdentityAssignedData is the data for identity.assigned events, published
// when the service hands back a replacement client identity.
type IdentityAssignedData struct {
	ClientID string `json:"clientID"`
}
