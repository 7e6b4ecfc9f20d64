package domain

import "context"

// Capability is the contract every processing backend implements
// (transcription, vision, scraping, chat). A capability exposes a fixed
// catalogue of named operations and is only ever called through
// a dispatch registry, never directly.
type Capability interface {
	Name() string
	Operations() []Operation
	Invoke(ctx context.Context, op string, args map[string]any) Result
}

// Operation describes one named entry in a capability's catalogue.
type Operation struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema "parameters" object
}

// Result is the tagged success/failure value returned by every capability
// invocation. Callers above the dispatch boundary never see a raised
// fault, only this record.
type Result struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Ok wraps a plain output value as a success result.
func Ok(output any) Result {
	return Result{Success: true, Output: output}
}

// Fail builds a failure result from a message.
func Fail(msg string) Result {
	return Result{Success: false, Error: msg}
}

// Text returns the output as a string when possible, else "".
func (r Result) Text() string {
	if !r.Success {
		return ""
	}
	s, _ := r.Output.(string)
	return s
}
