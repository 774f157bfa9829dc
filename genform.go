// Package genform defines the request/response types shared by the genform
// web host and its JSON endpoint.
package genform

// Level is the severity of a Notice shown to the user.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is a user-facing status message emitted while loading the model or
// generating a response.
type Notice struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	// Prompt is the text to continue. Empty prompts are passed through.
	Prompt string `json:"prompt"`
}

// GenerateResponse is returned from POST /api/generate.
type GenerateResponse struct {
	// RequestID identifies the request in logs.
	RequestID string `json:"request_id"`
	// Response is the generated continuation, or a user-facing message when
	// generation was not possible.
	Response string `json:"response"`
	// ElapsedSeconds is the wall-clock generation time; 0 on failure.
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	// Notices lists the notifications emitted while serving the request.
	Notices []Notice `json:"notices"`
	// Error is set when the response text is a failure message.
	Error *Error `json:"error,omitempty"`
}

// Error describes why a response could not be generated.
type Error struct {
	// Code is a machine-readable identifier ("not_loaded", "generation_error").
	Code string `json:"code"`
	// Message is the failure detail.
	Message string `json:"message"`
}

// CacheResponse is returned from POST /api/cache/clear.
type CacheResponse struct {
	OK bool `json:"ok"`
}
