package seer

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration // parsed Retry-After header, 0 if absent
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value given either as
// delta-seconds or as an HTTP date. Returns 0 when absent or unparsable.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Turn-level failure classes. Use errors.Is against a *TurnError to find out
// why a turn ended early.
var (
	// ErrUnknownNode is returned when a transition target is not one of the
	// workflow's nodes.
	ErrUnknownNode = errors.New("unknown node")
	// ErrMalformedOutput is returned when structured extraction still
	// violates its schema after the corrective retry.
	ErrMalformedOutput = errors.New("malformed structured output")
	// ErrLoopLimit is returned when an agent keeps requesting tools past the
	// configured iteration cap.
	ErrLoopLimit = errors.New("tool loop iteration limit exceeded")
	// ErrTurnTimeout is returned when the whole-turn deadline expires.
	ErrTurnTimeout = errors.New("turn timed out")
	// ErrCommitFailed is returned when the memory commit at the end of a
	// turn does not persist.
	ErrCommitFailed = errors.New("memory commit failed")
	// ErrAlreadySet is returned when a write-once turn field is written twice.
	ErrAlreadySet = errors.New("field already set")
	// ErrThreadNotFound is returned by a MemoryStore when the thread does
	// not exist yet.
	ErrThreadNotFound = errors.New("thread not found")
)

// TurnError is a fatal turn error annotated with the node that produced it.
type TurnError struct {
	Node Node
	Err  error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed at %s: %v", e.Node, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// MalformedError describes an extraction result that violated its schema.
type MalformedError struct {
	Mode   string // "route", "cards", "summary", "reply"
	Raw    string // model output as received
	Reason string
	Err    error // underlying cause, e.g. ErrUnknownNode; may be nil
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s extraction: %s", e.Mode, e.Reason)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Is makes every MalformedError match ErrMalformedOutput.
func (e *MalformedError) Is(target error) bool { return target == ErrMalformedOutput }
