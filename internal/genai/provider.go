package genai

import "context"

// PostRequest describes one post generation call. PreviousPosts carries the
// last few contents generated in the same run as an anti-repetition signal;
// the provider is free to ignore it.
type PostRequest struct {
	PersonaName   string   `json:"persona_name"`
	PersonaPrompt string   `json:"persona_prompt"`
	Topics        []string `json:"topics,omitempty"`
	Tone          string   `json:"tone,omitempty"`
	PostType      string   `json:"post_type"`
	Temperature   float64  `json:"temperature"`
	Model         string   `json:"model"`
	PreviousPosts []string `json:"previous_posts,omitempty"`
}

// PostResult is the structured content returned for a post request
type PostResult struct {
	Content  string `json:"content"`
	PostType string `json:"post_type"`
}

// CommentRequest describes one comment generation call
type CommentRequest struct {
	PersonaName     string  `json:"persona_name"`
	PersonaPrompt   string  `json:"persona_prompt"`
	EngagementStyle string  `json:"engagement_style,omitempty"`
	PostContent     string  `json:"post_content"`
	PostType        string  `json:"post_type"`
	Temperature     float64 `json:"temperature"`
	Model           string  `json:"model"`
}

// CommentResult is the content returned for a comment request
type CommentResult struct {
	Content string `json:"content"`
}

// VisualPersona is a structured visual descriptor derived from a free-text
// persona description, used to keep generated reference images consistent
type VisualPersona struct {
	Gender     string `json:"gender,omitempty"`
	AgeRange   string `json:"age_range,omitempty"`
	Appearance string `json:"appearance"`
	Style      string `json:"style,omitempty"`
	Setting    string `json:"setting,omitempty"`
}

// Provider is the external generation provider consumed by the content
// generator and the queue processor
type Provider interface {
	GeneratePost(ctx context.Context, req PostRequest) (*PostResult, error)
	GenerateComment(ctx context.Context, req CommentRequest) (*CommentResult, error)
	DeriveVisualPersona(ctx context.Context, description string) (*VisualPersona, error)
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}
