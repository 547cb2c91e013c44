package advisor

import "fmt"

// ErrorKind distinguishes the two ways a suggestion request fails.
type ErrorKind string

const (
	// KindRequestFailed covers transport and API errors from the LLM service.
	KindRequestFailed ErrorKind = "request_failed"
	// KindParseFailed means the model responded but the output contained no
	// recognizable suggestion list. The advisor does not guess.
	KindParseFailed ErrorKind = "parse_failed"
)

// Error is a typed LLM adapter failure.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}
