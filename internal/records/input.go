package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Int is an integer request field that also accepts numeric strings such
// as "3". JSON null or an absent key leaves Set false.
type Int struct {
	Value int64
	Set   bool
}

func (n *Int) UnmarshalJSON(b []byte) error {
	raw, ok, err := numberText(b)
	if err != nil || !ok {
		return err
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*n = Int{Value: v, Set: true}
		return nil
	}
	// 3.0 is accepted, 3.5 is not.
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int64(f)) {
		return fmt.Errorf("records: %q is not an integer", raw)
	}
	*n = Int{Value: int64(f), Set: true}
	return nil
}

// Float is a numeric request field that also accepts numeric strings.
type Float struct {
	Value float64
	Set   bool
}

func (n *Float) UnmarshalJSON(b []byte) error {
	raw, ok, err := numberText(b)
	if err != nil || !ok {
		return err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("records: %q is not a number", raw)
	}
	*n = Float{Value: f, Set: true}
	return nil
}

// Text is a string request field. Numbers and booleans are accepted and
// kept in their JSON spelling. Control characters and surrounding
// whitespace are stripped.
type Text struct {
	Value string
	Set   bool
}

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	switch b[0] {
	case '"':
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	case '{', '[':
		return fmt.Errorf("records: expected a string, got %s", b[:1])
	default:
		s = string(b)
	}
	*t = Text{Value: sanitizeText(s), Set: true}
	return nil
}

// numberText extracts the literal of a JSON number or numeric string.
// ok is false for null and for empty strings.
func numberText(b []byte) (raw string, ok bool, err error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", false, nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false, err
		}
		s = strings.TrimSpace(s)
		return s, s != "", nil
	}
	return string(b), true, nil
}

// sanitizeText drops control characters (line breaks, tabs, NUL) and
// trims surrounding whitespace.
func sanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// checkText validates a required text field against a length limit.
func checkText(field string, t Text, max int) *ValidationError {
	if !t.Set {
		return missing(field)
	}
	if utf8.RuneCountInString(t.Value) > max {
		return tooLong(field, max)
	}
	return nil
}

// checkFloat validates a required number. NaN and infinities are
// rejected: they cannot be rendered as JSON.
func checkFloat(field string, n Float) *ValidationError {
	if !n.Set {
		return missing(field)
	}
	if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
		return invalid(field)
	}
	return nil
}

// checkSlot validates a required preset_number.
func checkSlot(n Int) *ValidationError {
	if !n.Set {
		return missing("preset_number")
	}
	if n.Value < 0 || n.Value > maxSlot {
		return invalid("preset_number")
	}
	return nil
}

// resolveUser picks the owning user: the body's user_id when supplied,
// else the caller. Zero means nobody and is reported as missing.
func resolveUser(n Int, callerID int64) (int64, *ValidationError) {
	id := callerID
	if n.Set {
		id = n.Value
	}
	if id <= 0 {
		return 0, missing("user_id")
	}
	return id, nil
}

// maxSlot is the largest preset_number; the column is an unsigned
// 16-bit value in existing deployments.
const maxSlot = 65535
