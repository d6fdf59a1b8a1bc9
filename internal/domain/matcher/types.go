package matcher

import "github.com/yanqian/support-copilot/internal/domain/support"

// Error codes surfaced by the matcher.
const (
	CodeInvalidQuery      = "invalid_query"
	CodeModelUnavailable  = "model_unavailable"
	CodeDimensionMismatch = "dimension_mismatch"
	CodeRecordStore       = "record_store_error"
)

// Status messages attached to every Result.
const (
	MessageGoodMatch    = "Found similar questions in the database"
	MessageNoGoodMatch  = "No highly similar questions found"
	MessageNoCandidates = "No support responses found in database"
)

// Request is the analyze payload received from the transport.
type Request struct {
	Query string `json:"query"`
}

// Match pairs a stored record with its similarity to the query.
type Match struct {
	Record               support.Record `json:"response"`
	Similarity           float64        `json:"similarity"`
	SimilarityPercentage string         `json:"similarityPercentage"`
}

// Result is the ranked outcome of one analysis.
type Result struct {
	Query        string  `json:"query"`
	Matches      []Match `json:"matches"`
	HasGoodMatch bool    `json:"hasGoodMatch"`
	BestMatch    *Match  `json:"bestMatch"`
	Message      string  `json:"message"`
}
