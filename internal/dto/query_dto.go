package dto

type QueryRequest struct {
	Q    string `json:"q" validate:"required"`
	TopK int    `json:"top_k,omitempty" validate:"gte=0"`
}

type ChunkDTO struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

// QueryResponse keeps answer raw: it is a JSON string that may itself contain JSON, or null
type QueryResponse struct {
	Query   string     `json:"query,omitempty"`
	Answer  *string    `json:"answer"`
	Results []ChunkDTO `json:"results"`
}
