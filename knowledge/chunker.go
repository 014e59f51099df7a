package knowledge

import "strings"

// DefaultSeparator splits page text into paragraphs.
const DefaultSeparator = "\n\n"

// Chunker splits page text into chunk texts.
type Chunker struct {
	// Separator between chunks. Defaults to DefaultSeparator.
	Separator string
	// KeepEmpty retains pieces that are blank after trimming. Chunk text
	// itself is never trimmed.
	KeepEmpty bool
}

// Split returns the chunk texts of text in order.
func (c Chunker) Split(text string) []string {
	sep := c.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	parts := strings.Split(text, sep)
	if c.KeepEmpty {
		return parts
	}
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
