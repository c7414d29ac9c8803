package clipboard

import (
	"context"
	"sync"
)

// Memory is an in-process Platform. The CLI uses it for one-shot
// transforms and tests use it to simulate external copies.
type Memory struct {
	mu      sync.Mutex
	count   int64
	tags    []string
	text    string
	hasText bool
	writes  int
}

// NewMemory returns an empty clipboard at sequence 0.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Read(ctx context.Context) (Read, error) {
	if err := ctx.Err(); err != nil {
		return Read{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Read{
		ChangeCount: m.count,
		TypeTags:    append([]string(nil), m.tags...),
		Text:        m.text,
		HasText:     m.hasText,
	}, nil
}

func (m *Memory) Write(ctx context.Context, text, markerTag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set([]string{TagUTF8PlainText, markerTag}, text, true)
	m.writes++
	return nil
}

// SetText simulates another application copying text.
func (m *Memory) SetText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set([]string{TagUTF8PlainText}, text, true)
}

// SetTypes simulates a copy that declares only the given type tags.
func (m *Memory) SetTypes(tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(tags, "", false)
}

// Clear empties the clipboard, which also counts as a change.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(nil, "", false)
}

// Text returns the current string content.
func (m *Memory) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// Writes returns how many times Write was called.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) set(tags []string, text string, hasText bool) {
	m.count++
	m.tags = append([]string(nil), tags...)
	m.text = text
	m.hasText = hasText
}
