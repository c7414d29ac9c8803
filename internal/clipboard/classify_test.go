package clipboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/clipflow/internal/errors"
)

func TestNewSnapshot_Classification(t *testing.T) {
	tests := []struct {
		name     string
		read     Read
		kind     Kind
		tag      string
		category string
	}{
		{
			name:     "plain text",
			read:     Read{TypeTags: []string{TagUTF8PlainText}, Text: "hello", HasText: true},
			kind:     KindText,
			category: "text",
		},
		{
			name:     "whitespace only text is empty",
			read:     Read{TypeTags: []string{TagUTF8PlainText}, Text: " \n\t", HasText: true},
			kind:     KindEmpty,
			category: "empty",
		},
		{
			name:     "no types at all",
			read:     Read{},
			kind:     KindEmpty,
			category: "empty",
		},
		{
			name:     "image",
			read:     Read{TypeTags: []string{"public.png"}},
			kind:     KindBinary,
			tag:      "public.png",
			category: "image",
		},
		{
			name:     "rich text with plain fallback is text",
			read:     Read{TypeTags: []string{"public.rtf", TagUTF8PlainText}, Text: "bold words", HasText: true},
			kind:     KindText,
			category: "text",
		},
		{
			name:     "image with text caption is text",
			read:     Read{TypeTags: []string{"public.png", TagTextPlain}, Text: "caption", HasText: true},
			kind:     KindText,
			category: "text",
		},
		{
			name:     "file copy wins over file name text",
			read:     Read{TypeTags: []string{"public.file-url", TagUTF8PlainText}, Text: "report.pdf", HasText: true},
			kind:     KindBinary,
			tag:      "public.file-url",
			category: "file",
		},
		{
			name:     "mime family fallback",
			read:     Read{TypeTags: []string{"image/webp"}},
			kind:     KindBinary,
			tag:      "image/webp",
			category: "image",
		},
		{
			name:     "unrecognized tag",
			read:     Read{TypeTags: []string{"com.example.private"}},
			kind:     KindUnknown,
			tag:      "com.example.private",
			category: CategoryUnknown,
		},
		{
			name:     "marker alone is empty",
			read:     Read{TypeTags: []string{MarkerTypeTag}},
			kind:     KindEmpty,
			category: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSnapshot(tt.read, time.Unix(0, 0))
			assert.Equal(t, tt.kind, s.Kind)
			assert.Equal(t, tt.kind, Classify(s))
			assert.Equal(t, tt.tag, s.BinaryTypeTag)
			assert.Equal(t, tt.category, s.Category())
			if tt.kind != KindText {
				assert.Empty(t, s.Text)
			}
		})
	}
}

func TestNewSnapshot_CopiesTags(t *testing.T) {
	tags := []string{TagUTF8PlainText}
	s := NewSnapshot(Read{ChangeCount: 7, TypeTags: tags, Text: "x", HasText: true}, time.Unix(1, 0))
	tags[0] = "mutated"

	assert.Equal(t, int64(7), s.SequenceID)
	assert.Equal(t, []string{TagUTF8PlainText}, s.TypeTags)
	assert.Equal(t, time.Unix(1, 0), s.CapturedAt)
}

func TestIsProcessable(t *testing.T) {
	assert.True(t, IsProcessable(KindText))
	assert.False(t, IsProcessable(KindBinary))
	assert.False(t, IsProcessable(KindEmpty))
	assert.False(t, IsProcessable(KindUnknown))
}

func TestRejectionError(t *testing.T) {
	text := NewSnapshot(Read{TypeTags: []string{TagTextPlain}, Text: "ok", HasText: true}, time.Now())
	assert.NoError(t, RejectionError(text))

	img := NewSnapshot(Read{TypeTags: []string{"com.adobe.pdf"}}, time.Now())
	err := RejectionError(img)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrContentNotProcessable))
	ce, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, "pdf", ce.Details["category"])

	empty := NewSnapshot(Read{}, time.Now())
	ce, ok = errors.As(RejectionError(empty))
	require.True(t, ok)
	assert.Equal(t, "clipboard is empty", ce.Message)
}

func TestHasMarker(t *testing.T) {
	own := NewSnapshot(Read{TypeTags: []string{TagUTF8PlainText, MarkerTypeTag}, Text: "x", HasText: true}, time.Now())
	other := NewSnapshot(Read{TypeTags: []string{TagUTF8PlainText}, Text: "x", HasText: true}, time.Now())

	assert.True(t, HasMarker(own))
	assert.Equal(t, KindText, own.Kind)
	assert.False(t, HasMarker(other))
}
