package util

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	sessionIDPrefix   = "session_"
	sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	sessionIDSuffix   = 10
)

// NewSessionID returns "session_<unix millis>_<random suffix>".
// The random suffix keeps ids unique for sessions opened in the same millisecond.
func NewSessionID() string {
	return newSessionIDAt(time.Now())
}

func newSessionIDAt(now time.Time) string {
	suffix, err := gonanoid.Generate(sessionIDAlphabet, sessionIDSuffix)
	if err != nil {
		suffix = fmt.Sprintf("%x", now.UnixNano())
	}
	return fmt.Sprintf("%s%d_%s", sessionIDPrefix, now.UnixMilli(), suffix)
}
