package ai

import (
	"errors"
	"fmt"
)

// ErrGenerationTimeout is matched by a GenerationError caused by a deadline.
var ErrGenerationTimeout = errors.New("generation timed out")

// GenerationError describes a failed generation request. StatusCode is set
// when the backend answered with a non-success status.
type GenerationError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s generation failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s generation failed: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request ran past its deadline.
func (e *GenerationError) Timeout() bool {
	return errors.Is(e.Err, ErrGenerationTimeout)
}

// UserMessage is the text returned to the caller in place of an answer.
func (e *GenerationError) UserMessage() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("Error: Unable to generate response. Status code: %d", e.StatusCode)
	case e.Timeout():
		return "Error: The language model did not respond in time."
	case e.Err != nil:
		return "Error: " + e.Err.Error()
	default:
		return "Error: Unable to generate response."
	}
}
