package mctp

import (
	"errors"
	"fmt"
)

// Protocol-state errors, detected while reassembling.
var (
	// ErrTruncated is returned when a buffer is shorter than its header.
	ErrTruncated = errors.New("truncated packet")
	// ErrBadVersion is returned when the header version is not 1.
	ErrBadVersion = errors.New("unsupported MCTP header version")
	// ErrSequence is returned when a packet skips or repeats a sequence number.
	ErrSequence = errors.New("packet sequence error")
	// ErrUnknownConversation is returned for a non-SOM packet with no active reassembly.
	ErrUnknownConversation = errors.New("unknown conversation")
	// ErrMessageTooLarge is returned when a message exceeds MaxPayload.
	ErrMessageTooLarge = errors.New("message exceeds maximum payload")
)

// Resource-exhaustion errors. The caller decides whether to retry.
var (
	ErrNoReassemblySlot = errors.New("no free reassembly slot")
	ErrTagExhausted     = errors.New("no free tag")
	ErrQueueFull        = errors.New("port queue full")
)

// Routing and request errors.
var (
	ErrNoRoute     = errors.New("no route to destination")
	ErrTimedOut    = errors.New("request timed out")
	ErrClosed      = errors.New("closed")
	ErrBusy        = errors.New("handler busy")
	ErrNoSpace     = errors.New("buffer too small")
	ErrUnsupported = errors.New("unsupported")
)

type ErrBadArgument struct {
	Item  string
	Value any
}

func (e ErrBadArgument) Error() string {
	return fmt.Sprintf("invalid value for %s: %v", e.Item, e.Value)
}
