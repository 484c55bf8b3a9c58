// Package event defines the notifications emitted while a file is being
// compressed and the Listener interface used to observe them.
package event

import (
	"fmt"
	"time"
)

// Type identifies what happened.
type Type int

const (
	CompressionStart Type = iota // Emitted once per file, before the first read
	CompressionEnd               // Emitted once per file, after the sink is closed
	BeforeTransform              // Block level, emitted by the codec sink
	AfterTransform
	BeforeEntropy
	AfterEntropy
)

var typeNames = [...]string{
	CompressionStart: "COMPRESSION_START",
	CompressionEnd:   "COMPRESSION_END",
	BeforeTransform:  "BEFORE_TRANSFORM",
	AfterTransform:   "AFTER_TRANSFORM",
	BeforeEntropy:    "BEFORE_ENTROPY",
	AfterEntropy:     "AFTER_ENTROPY",
}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("EVENT_%d", int(t))
}

// Event carries the payload of a notification. For file level events ID is
// -1 and Size is the number of bytes written so far; for block level events
// ID is the block number and Size the block size at that stage.
type Event struct {
	Type    Type
	ID      int
	Size    int64
	Hash    uint64
	HashSet bool
	Time    time.Time
	Source  string // Input name, set for file level events
}

// New creates an event stamped with the current time.
func New(t Type, id int, size int64) *Event {
	return &Event{Type: t, ID: id, Size: size, Time: time.Now()}
}

// NewWithHash creates a block event carrying the block checksum.
func NewWithHash(t Type, id int, size int64, hash uint64) *Event {
	evt := New(t, id, size)
	evt.Hash = hash
	evt.HashSet = true
	return evt
}

func (e *Event) String() string {
	if e.HashSet {
		return fmt.Sprintf("{ type:%s id:%d size:%d hash:%016x }", e.Type, e.ID, e.Size, e.Hash)
	}
	return fmt.Sprintf("{ type:%s id:%d size:%d }", e.Type, e.ID, e.Size)
}

// Listener observes events. Implementations must be safe for concurrent use
// when the same listener is shared by several files compressed in parallel.
type Listener interface {
	ProcessEvent(evt *Event)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(evt *Event)

// ProcessEvent calls f(evt).
func (f ListenerFunc) ProcessEvent(evt *Event) {
	f(evt)
}

// Notify delivers evt to every listener, in registration order.
func Notify(listeners []Listener, evt *Event) {
	for _, l := range listeners {
		l.ProcessEvent(evt)
	}
}
