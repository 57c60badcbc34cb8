package prompt

import "context"

// CreativeRequest asks the language model for one scene description.
type CreativeRequest struct {
	Theme         string
	Style         string
	Composition   string
	Quirk         int
	AvoidSubjects []string
	RecentPrompts []string
}

// Reference is an inspiration image handed to the vision model.
type Reference struct {
	Data []byte
	MIME string
}

// Result is the prompt text returned by a Writer. Subjects holds the tags the
// model reported on its trailing "Subjects:" line, lowercased, in order.
type Result struct {
	Text     string
	Subjects []string
	Provider string
	Model    string
}

// Writer is the language-model collaborator. Every error returned wraps
// domain.ErrPromptGenerationFailed.
type Writer interface {
	Creative(ctx context.Context, req CreativeRequest) (Result, error)
	Describe(ctx context.Context, ref Reference) (Result, error)
}
