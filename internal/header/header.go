// Package header reads and writes the metadata block embedded at the top of a
// note file:
//
//	---
//	id: 3f0c...
//	createdAt: 2026-10-17T09:30:00Z
//	---
//	body text
//
// The package is pure; it performs no I/O.
package header

import (
	"strings"
	"time"
)

// Delimiter opens and closes a header block.
const Delimiter = "---"

// Canonical and placement keys.
const (
	KeyID        = "id"
	KeyCreatedAt = "createdAt"
	KeyX         = "x"
	KeyY         = "y"
	KeyWidth     = "width"
	KeyHeight    = "height"
)

type line struct {
	start, end int // end excludes the line terminator
	text       string
}

type block struct {
	fields   []line // lines between the delimiters
	closeAt  int    // offset of the closing delimiter line
	closeEnd int    // offset of the closing delimiter's terminator, or len(content)
	end      int    // offset just past the block, terminator included
}

// readLine returns the line starting at pos (without "\n") and the offset of
// the following line.
func readLine(s string, pos int) (string, int) {
	i := strings.IndexByte(s[pos:], '\n')
	if i < 0 {
		return s[pos:], len(s)
	}
	return s[pos : pos+i], pos + i + 1
}

func isDelimiter(l string) bool {
	return strings.TrimRight(l, "\r ") == Delimiter
}

// scanBlock parses a delimited block starting exactly at pos.
func scanBlock(s string, pos int) (block, bool) {
	if pos >= len(s) {
		return block{}, false
	}
	first, next := readLine(s, pos)
	if !isDelimiter(first) {
		return block{}, false
	}
	var b block
	for next < len(s) {
		start := next
		text, after := readLine(s, start)
		if isDelimiter(text) {
			b.closeAt = start
			b.closeEnd = start + len(text)
			b.end = after
			return b, true
		}
		b.fields = append(b.fields, line{start: start, end: start + len(text), text: text})
		next = after
	}
	return block{}, false
}

// splitField parses a "key: value" line.
func splitField(l string) (key, value string, ok bool) {
	i := strings.IndexByte(l, ':')
	if i <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(l[:i])
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(strings.TrimRight(l[i+1:], "\r")), true
}

func (b block) lookup(key string) (string, bool) {
	for _, l := range b.fields {
		if k, v, ok := splitField(l.text); ok && k == key {
			return v, true
		}
	}
	return "", false
}

// wellFormed reports whether the block carries a non-empty id and createdAt.
func (b block) wellFormed() bool {
	id, ok := b.lookup(KeyID)
	if !ok || id == "" {
		return false
	}
	created, ok := b.lookup(KeyCreatedAt)
	return ok && created != ""
}

// ParseField returns the value of key in the first header block. The block
// must open on the first line of content.
func ParseField(content, key string) (string, bool) {
	b, ok := scanBlock(content, 0)
	if !ok {
		return "", false
	}
	return b.lookup(key)
}

// ExtractBody strips every well-formed header block from the front of
// content. Blocks may be separated by blank lines. A delimited block without
// both id and createdAt ends the scan and is returned as body text.
func ExtractBody(content string) string {
	pos := 0
	for {
		at := pos
		if pos > 0 {
			at = skipBlankLines(content, pos)
		}
		b, ok := scanBlock(content, at)
		if !ok || !b.wellFormed() {
			return content[pos:]
		}
		pos = b.end
	}
}

func skipBlankLines(s string, pos int) int {
	for pos < len(s) {
		l, next := readLine(s, pos)
		if strings.TrimSpace(l) != "" {
			return pos
		}
		pos = next
	}
	return pos
}

// BuildContent emits a canonical header holding id and createdAt followed by
// body. Any header already present in body must be stripped by the caller.
func BuildContent(id string, createdAt time.Time, body string) string {
	var sb strings.Builder
	sb.Grow(len(body) + 64)
	sb.WriteString(Delimiter + "\n")
	sb.WriteString(KeyID + ": " + sanitize(id) + "\n")
	sb.WriteString(KeyCreatedAt + ": " + FormatTime(createdAt) + "\n")
	sb.WriteString(Delimiter + "\n")
	sb.WriteString(body)
	return sb.String()
}

// UpdateField sets key to value in the first header block, replacing the
// existing line in place or appending it before the closing delimiter. Without
// a header block a new one holding just this key is prepended.
func UpdateField(content, key, value string) string {
	value = sanitize(value)
	entry := key + ": " + value

	b, ok := scanBlock(content, 0)
	if !ok {
		return Delimiter + "\n" + entry + "\n" + Delimiter + "\n" + content
	}

	for _, l := range b.fields {
		k, _, ok := splitField(l.text)
		if !ok || k != key {
			continue
		}
		replacement := entry
		if strings.HasSuffix(l.text, "\r") {
			replacement += "\r"
		}
		return content[:l.start] + replacement + content[l.end:]
	}

	eol := "\n"
	if strings.HasSuffix(content[b.closeAt:b.closeEnd], "\r") {
		eol = "\r\n"
	}
	return content[:b.closeAt] + entry + eol + content[b.closeAt:]
}

// FormatTime renders a header timestamp.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime reads a header timestamp. RFC 3339 with or without fractional
// seconds is accepted.
func ParseTime(v string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// sanitize keeps values on a single line.
func sanitize(v string) string {
	if !strings.ContainsAny(v, "\r\n") {
		return v
	}
	return strings.Join(strings.FieldsFunc(v, func(r rune) bool { return r == '\r' || r == '\n' }), " ")
}
