package pathkey

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"fabula/internal/services"
)

const (
	// RootKey is the reserved key for the empty choice path. Encoded segments
	// can never begin with '~' (it is escaped in the first position), so the
	// sentinel cannot collide with any encoded non-empty path.
	RootKey = "~root"

	// Delimiter joins encoded choice identifiers into a path key.
	Delimiter = "/"

	// DefaultMaxChoiceLength bounds choice identifier size in bytes after
	// Unicode normalization.
	DefaultMaxChoiceLength = 256
)

// Codec converts ordered choice sequences to canonical path keys and back.
// Encoding is injective and Decode(Encode(p)) == p for every valid path.
type Codec struct {
	maxChoiceLen int
}

// New returns a codec enforcing the provided choice identifier length bound.
// A non-positive bound falls back to DefaultMaxChoiceLength.
func New(maxChoiceLen int) *Codec {
	if maxChoiceLen <= 0 {
		maxChoiceLen = DefaultMaxChoiceLength
	}
	return &Codec{maxChoiceLen: maxChoiceLen}
}

// Encode produces the canonical key for an ordered choice path. Choice
// identifiers originate from generated story content, so each one is
// NFC-normalized and escaped before joining; identifiers that cannot be made
// safe fail with services.ErrInvalidChoice.
func (c *Codec) Encode(path []string) (string, error) {
	if len(path) == 0 {
		return RootKey, nil
	}

	encoded := make([]string, 0, len(path))
	for i, choice := range path {
		segment, err := c.encodeChoice(choice)
		if err != nil {
			return "", fmt.Errorf("choice %d: %w", i, err)
		}
		encoded = append(encoded, segment)
	}
	return strings.Join(encoded, Delimiter), nil
}

// Decode is the exact inverse of Encode.
func (c *Codec) Decode(key string) ([]string, error) {
	if key == RootKey {
		return []string{}, nil
	}
	if key == "" {
		return nil, services.Wrap(services.ErrInvalidChoice, "pathkey", "decode", "empty key", nil)
	}

	segments := strings.Split(key, Delimiter)
	path := make([]string, 0, len(segments))
	for i, segment := range segments {
		choice, err := decodeSegment(segment)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		path = append(path, choice)
	}
	return path, nil
}

// EncodeStep returns the key for path extended by one choice. This is the
// common lookup shape for "does this next choice have a recording".
func (c *Codec) EncodeStep(path []string, choice string) (string, error) {
	extended := make([]string, 0, len(path)+1)
	extended = append(extended, path...)
	extended = append(extended, choice)
	return c.Encode(extended)
}

// ParentKey returns the key of the path one choice shorter, or RootKey for a
// single-choice path. Decoding then re-encoding keeps the result canonical.
func (c *Codec) ParentKey(key string) (string, error) {
	path, err := c.Decode(key)
	if err != nil {
		return "", err
	}
	if len(path) == 0 {
		return "", services.Wrap(services.ErrInvalidChoice, "pathkey", "parent", "root has no parent", nil)
	}
	return c.Encode(path[:len(path)-1])
}

func (c *Codec) encodeChoice(choice string) (string, error) {
	normalized := norm.NFC.String(choice)
	if normalized == "" {
		return "", services.Wrap(services.ErrInvalidChoice, "pathkey", "encode", "empty identifier", nil)
	}
	if len(normalized) > c.maxChoiceLen {
		return "", services.Wrap(services.ErrInvalidChoice, "pathkey", "encode",
			fmt.Sprintf("identifier exceeds %d bytes", c.maxChoiceLen), nil)
	}

	var b strings.Builder
	b.Grow(len(normalized))
	for i, r := range normalized {
		switch {
		case r == unicode.ReplacementChar:
			return "", services.Wrap(services.ErrInvalidChoice, "pathkey", "encode", "invalid UTF-8", nil)
		case unicode.IsControl(r):
			return "", services.Wrap(services.ErrInvalidChoice, "pathkey", "encode", "control character", nil)
		case r == '%':
			b.WriteString("%25")
		case r == '/':
			b.WriteString("%2F")
		case r == '~' && i == 0:
			b.WriteString("%7E")
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func decodeSegment(segment string) (string, error) {
	if segment == "" {
		return "", services.Wrap(services.ErrInvalidChoice, "pathkey", "decode", "empty segment", nil)
	}
	if segment[0] == '~' {
		// Encode escapes a leading '~', so this key is not canonical.
		return "", services.Wrap(services.ErrInvalidChoice, "pathkey", "decode", "unescaped leading ~", nil)
	}

	var b strings.Builder
	b.Grow(len(segment))
	for i := 0; i < len(segment); i++ {
		ch := segment[i]
		if ch != '%' {
			b.WriteByte(ch)
			continue
		}
		if i+3 > len(segment) {
			return "", services.Wrap(services.ErrInvalidChoice, "pathkey", "decode", "truncated escape", nil)
		}
		switch segment[i+1 : i+3] {
		case "25":
			b.WriteByte('%')
		case "2F":
			b.WriteByte('/')
		case "7E":
			b.WriteByte('~')
		default:
			return "", services.Wrap(services.ErrInvalidChoice, "pathkey", "decode",
				fmt.Sprintf("unknown escape %%%s", segment[i+1:i+3]), nil)
		}
		i += 2
	}
	return b.String(), nil
}
