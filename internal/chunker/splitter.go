package chunker

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	DefaultChunkSize    = 300
	DefaultChunkOverlap = 100
	DefaultMaxChunks    = 500
)

// DefaultSeparators are tried in order. The trailing " " and "" act as
// word and character fallbacks for text without any sentence boundary.
var DefaultSeparators = []string{"\n\n", "\n", ".", "!", "?", ";", " ", ""}

// Splitter cuts text into overlapping chunks of at most Size runes.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

type Option func(*Splitter)

func WithSeparators(seps []string) Option {
	return func(s *Splitter) {
		if len(seps) > 0 {
			s.separators = seps
		}
	}
}

func New(size, overlap int, opts ...Option) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	s := &Splitter{size: size, overlap: overlap, separators: DefaultSeparators}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Splitter) Size() int    { return s.size }
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the chunks of text. Whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := ""
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var out []string
	var good []string
	for _, piece := range splitKeep(text, separator) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			if t := strings.TrimSpace(piece); t != "" {
				out = append(out, t)
			}
			continue
		}
		out = append(out, s.split(piece, rest)...)
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// merge packs small pieces into chunks no larger than size, carrying at
// most overlap runes from the end of one chunk into the next.
func (s *Splitter) merge(pieces []string) []string {
	var out []string
	var current []string
	total := 0
	for _, p := range pieces {
		l := runeLen(p)
		if total+l > s.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				out = append(out, doc)
			}
			for total > s.overlap || (total+l > s.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += l
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		out = append(out, doc)
	}
	return out
}

// splitKeep splits text after each separator so the separator stays
// attached to the preceding piece. An empty separator splits into runes.
func splitKeep(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Cap keeps at most max chunks. max <= 0 disables the cap.
func Cap(ctx context.Context, chunks []string, max int) []string {
	if max <= 0 || len(chunks) <= max {
		return chunks
	}
	logutil.GetLogger(ctx).Warn("document exceeds chunk limit, truncating",
		zap.Int("chunks", len(chunks)),
		zap.Int("max_chunks", max),
	)
	return chunks[:max]
}
