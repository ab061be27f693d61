package models

// Push channel protocol
const (
	ActionJoin = "join"

	MessageTypeWelcome    = "welcome"
	MessageTypeSuggestion = "suggestion"
	MessageTypeAudio      = "audio"
)

// PushCommand is a client-to-server push channel frame.
type PushCommand struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
}

type WelcomeMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ResultEvent is pushed to every connection joined to the request's session.
type ResultEvent struct {
	Type string     `json:"type"`
	Data MoodResult `json:"data"`
}

// MoodResult is both the HTTP response body and the payload of a ResultEvent.
// Language is empty for audio analysis.
type MoodResult struct {
	Mood        string `json:"mood"`
	Language    string `json:"language,omitempty"`
	PlaylistID  string `json:"playlistId"`
	PlaylistURL string `json:"playlistUrl"`
}

// Mood requests
type SuggestRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"sessionId,omitempty"`
}

type NewSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// Error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
