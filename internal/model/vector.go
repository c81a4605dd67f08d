package model

type RecordMetadata struct {
	DocumentMetadata
	Text            string `json:"text"`
	IsTextTruncated bool   `json:"isTextTruncated"`
}

type VectorRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata RecordMetadata `json:"metadata"`
}

type VectorMatch struct {
	Score    float64        `json:"score"`
	Metadata RecordMetadata `json:"metadata"`
}
