package ports

import "context"

// CodeRequest is a script plus its input payload.
type CodeRequest struct {
	Language string
	Code     string
	// Input is handed to the script on stdin.
	Input []byte
}

// Artifact is a file the script produced.
type Artifact struct {
	Name     string
	MimeType string
	Data     []byte
}

// CodeResult is what a sandboxed run produced.
type CodeResult struct {
	Stdout    string
	Stderr    string
	Success   bool
	Artifacts []Artifact
}

// CodeRunner is the sandboxed code runner collaborator.
type CodeRunner interface {
	Run(ctx context.Context, req CodeRequest) (CodeResult, error)
}
