package types

// Floor is one turn of the conversation. Floors are addressed 1-based.
type Floor struct {
	Speaker string `json:"speaker"`
	IsUser  bool   `json:"is_user"` // True when the human speaker authored the turn
	Text    string `json:"text"`
}

// Message is one element of a model request, OpenAI chat style.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TagResult is one parsed tag span from a model response.
type TagResult struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}
