// Package command extracts token launch parameters from free-form text.
//
// The input grammar is loose: the labels name, ticker, description and image
// may appear anywhere, in any order, surrounded by arbitrary prose:
//
//	Create token with name Yongi, ticker YNG, description best coin, image QmAB
package command

import (
	"strings"
	"unicode"

	pkerrors "pumpkit/internal/errors"
)

// DefaultImageRef is the IPFS placeholder used when no image is given.
const DefaultImageRef = "QmUC123456789"

const (
	FieldName        = "name"
	FieldTicker      = "ticker"
	FieldDescription = "description"
	FieldImage       = "image"
)

// ParsedCommand holds the extracted launch parameters. Every field is
// non-empty and trimmed.
type ParsedCommand struct {
	Name        string
	Ticker      string
	Description string
	ImageRef    string
}

type Options struct {
	// DefaultImageRef replaces a missing image. Empty means DefaultImageRef.
	DefaultImageRef string
	// RequireImage reports a missing image instead of falling back.
	RequireImage bool
}

type Parser struct {
	opts Options
}

func NewParser(opts Options) *Parser {
	opts.DefaultImageRef = strings.TrimSpace(opts.DefaultImageRef)
	if opts.DefaultImageRef == "" {
		opts.DefaultImageRef = DefaultImageRef
	}
	return &Parser{opts: opts}
}

// Parse runs the default parser.
func Parse(text string) (ParsedCommand, error) {
	return NewParser(Options{}).Parse(text)
}

// Parse extracts every field or returns a *errors.ValidationError naming all
// fields that could not be found. A failed parse never returns partial values.
func (p *Parser) Parse(text string) (ParsedCommand, error) {
	var missing []string

	name, ok := scanWord(text, FieldName)
	if !ok {
		missing = append(missing, FieldName)
	}
	ticker, ok := scanWord(text, FieldTicker)
	if !ok {
		missing = append(missing, FieldTicker)
	}
	description, ok := scanDescription(text)
	if !ok {
		missing = append(missing, FieldDescription)
	}
	image, ok := scanImage(text)
	if !ok {
		if p.opts.RequireImage {
			missing = append(missing, FieldImage)
		} else {
			image = p.opts.DefaultImageRef
		}
	}

	if len(missing) > 0 {
		return ParsedCommand{}, &pkerrors.ValidationError{Missing: missing}
	}
	return ParsedCommand{
		Name:        name,
		Ticker:      ticker,
		Description: description,
		ImageRef:    image,
	}, nil
}

// scanWord returns the alphanumeric run following the first occurrence of
// keyword that is followed by whitespace and at least one letter or digit.
func scanWord(text, keyword string) (string, bool) {
	for from := 0; ; {
		start, ok := valueStart(text, keyword, from)
		if start < 0 {
			return "", false
		}
		if ok {
			end := start
			for end < len(text) && isASCIIAlnum(text[end]) {
				end++
			}
			if end > start {
				return text[start:end], true
			}
		}
		from = start
	}
}

// scanDescription takes everything after the first "description" label up to
// the next "image" label or the end of text. The image label may follow the
// first whitespace directly, in which case this occurrence has no value.
func scanDescription(text string) (string, bool) {
	for from := 0; ; {
		start, ok := valueStart(text, FieldDescription, from)
		if start < 0 {
			return "", false
		}
		if ok {
			labelEnd := start
			for labelEnd > 0 && isSpace(text[labelEnd-1]) {
				labelEnd--
			}
			end := len(text)
			if idx := strings.Index(text[labelEnd+1:], FieldImage); idx >= 0 {
				end = labelEnd + 1 + idx
			}
			if value := strings.TrimSpace(text[labelEnd:end]); value != "" {
				return value, true
			}
		}
		from = start
	}
}

// scanImage returns the non-whitespace run after the first "image" label,
// without trailing separators.
func scanImage(text string) (string, bool) {
	for from := 0; ; {
		start, ok := valueStart(text, FieldImage, from)
		if start < 0 {
			return "", false
		}
		if ok {
			end := start
			for end < len(text) && !isSpace(text[end]) {
				end++
			}
			if value := strings.TrimRight(text[start:end], ",;"); value != "" {
				return value, true
			}
		}
		from = start
	}
}

// valueStart finds keyword at or after from and skips the whitespace after it.
// It returns -1 when keyword does not occur. ok is false when the keyword is
// not followed by whitespace; the returned offset is then where scanning
// resumes.
func valueStart(text, keyword string, from int) (int, bool) {
	if from > len(text) {
		return -1, false
	}
	idx := strings.Index(text[from:], keyword)
	if idx < 0 {
		return -1, false
	}
	pos := from + idx + len(keyword)
	start := pos
	for start < len(text) && isSpace(text[start]) {
		start++
	}
	if start == pos {
		return pos, false
	}
	return start, true
}

func isASCIIAlnum(b byte) bool {
	return b < unicode.MaxASCII && (b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z')
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
