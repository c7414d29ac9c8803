package clipboard

import (
	"strings"

	"github.com/hpungsan/clipflow/internal/errors"
)

// Type tags for plain text across platforms.
const (
	TagUTF8PlainText = "public.utf8-plain-text"
	TagTextPlain     = "text/plain"
)

// CategoryUnknown is the fallback category for unrecognized binary tags.
const CategoryUnknown = "unknown/non-text"

var textTags = map[string]bool{
	TagUTF8PlainText:            true,
	"public.plain-text":         true,
	"public.text":               true,
	"NSStringPboardType":        true,
	TagTextPlain:                true,
	"text/plain;charset=utf-8":  true,
	"text/plain; charset=utf-8": true,
	"UTF8_STRING":               true,
	"STRING":                    true,
	"TEXT":                      true,
	"CF_TEXT":                   true,
	"CF_UNICODETEXT":            true,
}

// binaryCategories maps binary type tags to user-facing categories.
var binaryCategories = map[string]string{
	"public.png":                   "image",
	"public.jpeg":                  "image",
	"public.tiff":                  "image",
	"public.heic":                  "image",
	"com.compuserve.gif":           "image",
	"NSTIFFPboardType":             "image",
	"CF_BITMAP":                    "image",
	"CF_DIB":                       "image",
	"public.file-url":              "file",
	"NSFilenamesPboardType":        "file",
	"text/uri-list":                "file",
	"CF_HDROP":                     "file",
	"com.adobe.pdf":                "pdf",
	"application/pdf":              "pdf",
	"public.zip-archive":           "archive",
	"application/zip":              "archive",
	"application/gzip":             "archive",
	"application/x-tar":            "archive",
	"public.audio":                 "audio",
	"public.mp3":                   "audio",
	"com.microsoft.waveform-audio": "audio",
	"public.movie":                 "video",
	"public.mpeg-4":                "video",
	"com.apple.quicktime-movie":    "video",
}

// mimePrefixes cover MIME families not listed explicitly.
var mimePrefixes = map[string]string{
	"image/": "image",
	"audio/": "audio",
	"video/": "video",
}

// Category maps a binary type tag to its human category.
func Category(tag string) string {
	if c, ok := binaryCategories[tag]; ok {
		return c
	}
	for prefix, c := range mimePrefixes {
		if strings.HasPrefix(tag, prefix) {
			return c
		}
	}
	return CategoryUnknown
}

// Classify returns the snapshot's kind. It exists for symmetry with the
// platform-facing classifyRead; snapshots are classified on construction.
func Classify(s Snapshot) Kind {
	return s.Kind
}

// IsProcessable reports whether content of kind can enter the pipeline.
func IsProcessable(kind Kind) bool {
	return kind == KindText
}

// RejectionError returns CONTENT_NOT_PROCESSABLE for non-text snapshots,
// nil for text.
func RejectionError(s Snapshot) error {
	if IsProcessable(s.Kind) {
		return nil
	}
	return errors.NewContentNotProcessable(string(s.Kind), s.Category())
}

// classifyRead decides the kind from declared type tags. File references win
// over text because file copies also carry the file name as a string.
// The self-write marker never affects the result.
func classifyRead(r Read) (Kind, string) {
	var binaryTag, fileTag string
	declaresText := r.HasText
	declared := 0
	for _, tag := range r.TypeTags {
		if tag == MarkerTypeTag {
			continue
		}
		declared++
		switch {
		case textTags[tag]:
			declaresText = true
		case Category(tag) == "file":
			if fileTag == "" {
				fileTag = tag
			}
		default:
			if binaryTag == "" {
				binaryTag = tag
			}
		}
	}

	switch {
	case fileTag != "":
		return KindBinary, fileTag
	case declaresText && strings.TrimSpace(r.Text) != "":
		return KindText, ""
	case binaryTag != "" && Category(binaryTag) != CategoryUnknown:
		return KindBinary, binaryTag
	case declaresText:
		return KindEmpty, ""
	case declared == 0:
		return KindEmpty, ""
	case binaryTag != "":
		return KindUnknown, binaryTag
	default:
		return KindUnknown, ""
	}
}
