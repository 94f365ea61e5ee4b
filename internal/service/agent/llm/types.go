package llm

import "context"

// Role constants for chat messages.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Request is one text-generation call.
type Request struct {
	// System is the persona sent as the system instruction.
	System string
	Prompt string
	// JSON asks the backend for a structured (JSON object) response.
	JSON bool
}

// Usage is what a single call consumed.
type Usage struct {
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// Backend generates text. Implementations report usage for successful calls only.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, Usage, error)
	// Name is the provider name recorded as provenance.
	Name() string
}
