package model

type DocumentMetadata struct {
	Title       string   `json:"title"`
	Author      string   `json:"author,omitempty"`
	Source      string   `json:"source"`
	PublishDate string   `json:"publishDate,omitempty"`
	Category    []string `json:"category"`
	URL         string   `json:"url,omitempty"`
}

type Document struct {
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

// MetadataOverrides holds caller-provided values that win over metadata
// derived from a fetched URL. Empty fields are ignored.
type MetadataOverrides struct {
	Title       string   `json:"title,omitempty"`
	Author      string   `json:"author,omitempty"`
	Source      string   `json:"source,omitempty"`
	PublishDate string   `json:"publishDate,omitempty"`
	Category    []string `json:"category,omitempty"`
}

type Chunk struct {
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

type ProcessedDocument struct {
	Chunks     []Chunk          `json:"chunks"`
	Embeddings [][]float32      `json:"embeddings"`
	Metadata   DocumentMetadata `json:"metadata"`
}
