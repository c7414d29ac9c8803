// Package clipboard turns a platform clipboard into a stream of classified
// change notifications.
//
// A Monitor polls a Platform's change counter, waits a short grace period
// after each change so multi-type writers can finish, builds an immutable
// Snapshot, drops snapshots carrying the self-write marker, and hands the
// rest to a single subscriber. Classification (text, binary, empty, unknown)
// decides whether a change is processable at all.
package clipboard

import (
	"context"
	"time"
)

// Read is the raw result of one platform clipboard read.
type Read struct {
	// ChangeCount increases monotonically with every clipboard write.
	ChangeCount int64
	// TypeTags are the representations the current content declares
	// (UTIs, MIME types, or platform format names).
	TypeTags []string
	// Text is the string representation, when one was declared.
	Text    string
	HasText bool
}

// Platform is the system clipboard as seen by the engine.
type Platform interface {
	// Read returns the current change counter, type tags, and text.
	Read(ctx context.Context) (Read, error)
	// Write replaces the clipboard with text plus the marker type tag in a
	// single declaration, so no reader ever sees one without the other.
	Write(ctx context.Context, text, markerTag string) error
}

// Kind is the classification of a snapshot.
type Kind string

const (
	KindText    Kind = "text"
	KindBinary  Kind = "binary"
	KindEmpty   Kind = "empty"
	KindUnknown Kind = "unknown"
)

// Snapshot is an immutable view of the clipboard at one poll tick.
type Snapshot struct {
	SequenceID    int64     `json:"sequence_id"`
	Kind          Kind      `json:"kind"`
	Text          string    `json:"text,omitempty"`
	BinaryTypeTag string    `json:"binary_type_tag,omitempty"`
	TypeTags      []string  `json:"type_tags,omitempty"`
	CapturedAt    time.Time `json:"captured_at"`
}

// NewSnapshot classifies r and captures it at now.
func NewSnapshot(r Read, now time.Time) Snapshot {
	kind, tag := classifyRead(r)
	s := Snapshot{
		SequenceID:    r.ChangeCount,
		Kind:          kind,
		BinaryTypeTag: tag,
		TypeTags:      append([]string(nil), r.TypeTags...),
		CapturedAt:    now,
	}
	if kind == KindText {
		s.Text = r.Text
	}
	return s
}

// Category returns the human category of a binary snapshot ("image",
// "pdf", ...) or "empty"/"text"/"unknown/non-text" for the other kinds.
func (s Snapshot) Category() string {
	switch s.Kind {
	case KindText:
		return "text"
	case KindEmpty:
		return "empty"
	case KindBinary:
		return Category(s.BinaryTypeTag)
	default:
		return CategoryUnknown
	}
}
