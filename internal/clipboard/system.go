package clipboard

import (
	"context"
	"crypto/sha256"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned when no system clipboard utility is available.
var ErrUnsupported = stderrors.New("clipboard: system clipboard not supported on this host")

// System is the OS clipboard. The portable clipboard API exposes text only
// and has no change counter, so System derives one from content hashes and
// remembers the hash of its own last write to report the marker tag.
type System struct {
	mu         sync.Mutex
	count      int64
	seeded     bool
	lastHash   [sha256.Size]byte
	markerHash [sha256.Size]byte
	markerTag  string
}

// NewSystem returns the OS clipboard, or ErrUnsupported.
func NewSystem() (*System, error) {
	if clipboard.Unsupported {
		return nil, ErrUnsupported
	}
	return &System{}, nil
}

func (s *System) Read(ctx context.Context) (Read, error) {
	if err := ctx.Err(); err != nil {
		return Read{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	text, err := clipboard.ReadAll()
	if err != nil {
		return Read{}, fmt.Errorf("read system clipboard: %w", err)
	}

	h := sha256.Sum256([]byte(text))
	if !s.seeded || h != s.lastHash {
		s.count++
		s.lastHash = h
		s.seeded = true
	}

	r := Read{ChangeCount: s.count, Text: text, HasText: text != ""}
	if r.HasText {
		r.TypeTags = []string{TagTextPlain}
	}
	if s.markerTag != "" {
		if h == s.markerHash {
			r.TypeTags = append(r.TypeTags, s.markerTag)
		} else {
			s.markerTag = ""
		}
	}
	return r, nil
}

// Write holds the read lock across the system write so a concurrent Read
// never pairs the new text with a stale marker.
func (s *System) Write(ctx context.Context, text, markerTag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write system clipboard: %w", err)
	}
	s.markerHash = sha256.Sum256([]byte(text))
	s.markerTag = markerTag
	return nil
}
