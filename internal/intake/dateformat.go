package intake

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateFormat formats timestamps with Java-style date patterns such as
// "yyyyMMddHHmmss". Letters are pattern fields, text inside single quotes is
// literal and '' is a literal quote. Other characters are copied as is.
type DateFormat struct {
	pattern string
	parts   []func(*strings.Builder, time.Time)
}

// ParseDateFormat compiles a pattern once so Format does no parsing.
func ParseDateFormat(pattern string) (*DateFormat, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty date format")
	}

	df := &DateFormat{pattern: pattern}
	runes := []rune(pattern)

	for i := 0; i < len(runes); {
		r := runes[i]

		switch {
		case r == '\'':
			lit, next, err := quoted(runes, i)
			if err != nil {
				return nil, fmt.Errorf("date format %q: %w", pattern, err)
			}

			df.literal(lit)
			i = next
		case isPatternLetter(r):
			n := 1
			for i+n < len(runes) && runes[i+n] == r {
				n++
			}

			part, err := field(r, n)
			if err != nil {
				return nil, fmt.Errorf("date format %q: %w", pattern, err)
			}

			df.parts = append(df.parts, part)
			i += n
		default:
			df.literal(string(r))
			i++
		}
	}

	return df, nil
}

func (df *DateFormat) Format(t time.Time) string {
	var b strings.Builder

	for _, part := range df.parts {
		part(&b, t)
	}

	return b.String()
}

func (df *DateFormat) String() string {
	return df.pattern
}

func (df *DateFormat) literal(s string) {
	df.parts = append(df.parts, func(b *strings.Builder, _ time.Time) {
		b.WriteString(s)
	})
}

func quoted(runes []rune, start int) (string, int, error) {
	// '' outside a quoted section is a single quote
	if start+1 < len(runes) && runes[start+1] == '\'' {
		return "'", start + 2, nil
	}

	var b strings.Builder

	for i := start + 1; i < len(runes); i++ {
		if runes[i] != '\'' {
			b.WriteRune(runes[i])

			continue
		}

		if i+1 < len(runes) && runes[i+1] == '\'' {
			b.WriteRune('\'')
			i++

			continue
		}

		return b.String(), i + 1, nil
	}

	return "", 0, fmt.Errorf("unterminated quote at position %d", start)
}

func isPatternLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func field(letter rune, width int) (func(*strings.Builder, time.Time), error) {
	switch letter {
	case 'y', 'u':
		if width == 2 {
			return number(func(t time.Time) int { return t.Year() % 100 }, 2), nil
		}

		return number(func(t time.Time) int { return t.Year() }, width), nil
	case 'M':
		switch {
		case width >= 4:
			return text(func(t time.Time) string { return t.Month().String() }), nil
		case width == 3:
			return text(func(t time.Time) string { return t.Month().String()[:3] }), nil
		default:
			return number(func(t time.Time) int { return int(t.Month()) }, width), nil
		}
	case 'd':
		return number(func(t time.Time) int { return t.Day() }, width), nil
	case 'D':
		return number(func(t time.Time) int { return t.YearDay() }, width), nil
	case 'H':
		return number(func(t time.Time) int { return t.Hour() }, width), nil
	case 'h':
		return number(func(t time.Time) int {
			h := t.Hour() % 12
			if h == 0 {
				h = 12
			}

			return h
		}, width), nil
	case 'm':
		return number(func(t time.Time) int { return t.Minute() }, width), nil
	case 's':
		return number(func(t time.Time) int { return t.Second() }, width), nil
	case 'S':
		return fraction(width), nil
	case 'a':
		return text(func(t time.Time) string {
			if t.Hour() < 12 {
				return "AM"
			}

			return "PM"
		}), nil
	case 'E':
		if width >= 4 {
			return text(func(t time.Time) string { return t.Weekday().String() }), nil
		}

		return text(func(t time.Time) string { return t.Weekday().String()[:3] }), nil
	case 'Z':
		return text(func(t time.Time) string { return t.Format("-0700") }), nil
	}

	return nil, fmt.Errorf("unsupported pattern letter %q", letter)
}

func number(value func(time.Time) int, width int) func(*strings.Builder, time.Time) {
	return func(b *strings.Builder, t time.Time) {
		s := strconv.Itoa(value(t))
		for i := len(s); i < width; i++ {
			b.WriteByte('0')
		}

		b.WriteString(s)
	}
}

func text(value func(time.Time) string) func(*strings.Builder, time.Time) {
	return func(b *strings.Builder, t time.Time) {
		b.WriteString(value(t))
	}
}

// fraction renders the leading width digits of the nanosecond field.
func fraction(width int) func(*strings.Builder, time.Time) {
	return func(b *strings.Builder, t time.Time) {
		digits := fmt.Sprintf("%09d", t.Nanosecond())
		if width <= len(digits) {
			b.WriteString(digits[:width])

			return
		}

		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", width-len(digits)))
	}
}
