package model

type Origin string

const (
	OriginDatabase Origin = "database"
	OriginWeb      Origin = "web"
)

type HitMetadata struct {
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	URL    string `json:"url,omitempty"`
	Source string `json:"source,omitempty"`
	Date   string `json:"date,omitempty"`
}

type SearchHit struct {
	Content  string      `json:"content"`
	Score    float64     `json:"score"`
	Metadata HitMetadata `json:"metadata"`
	Origin   Origin      `json:"origin"`
}

type Source struct {
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	Link   string `json:"link"`
	Type   Origin `json:"type"`
	Date   string `json:"date,omitempty"`
}

type Answer struct {
	Text              string   `json:"text"`
	Sources           []Source `json:"sources"`
	FollowUpQuestions []string `json:"followUpQuestions"`
	Disclaimer        string   `json:"disclaimer,omitempty"`
}
