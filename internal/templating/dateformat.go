package templating

import (
	"fmt"
	"strings"
	"time"
)

var ordinalWords = []string{
	"First", "Second", "Third", "Fourth", "Fifth", "Sixth", "Seventh", "Eighth", "Ninth", "Tenth",
	"Eleventh", "Twelfth", "Thirteenth", "Fourteenth", "Fifteenth", "Sixteenth", "Seventeenth", "Eighteenth", "Nineteenth", "Twentieth",
	"Twenty-first", "Twenty-second", "Twenty-third", "Twenty-fourth", "Twenty-fifth", "Twenty-sixth", "Twenty-seventh", "Twenty-eighth", "Twenty-ninth", "Thirtieth",
	"Thirty-first",
}

var weekdaysAbbr = [...]string{"Sun", "Mon", "Tues", "Wed", "Thurs", "Fri", "Sat"}

var monthsAbbr = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sept", "Oct", "Nov", "Dec"}

func ordinal(n int) string {
	if n%100 >= 11 && n%100 <= 13 {
		return fmt.Sprintf("%dth", n)
	}
	switch n % 10 {
	case 1:
		return fmt.Sprintf("%dst", n)
	case 2:
		return fmt.Sprintf("%dnd", n)
	case 3:
		return fmt.Sprintf("%drd", n)
	default:
		return fmt.Sprintf("%dth", n)
	}
}

func ordinalWord(n int) string {
	if n >= 1 && n <= len(ordinalWords) {
		return ordinalWords[n-1]
	}
	return fmt.Sprintf("%d", n)
}

// formatTokens, longest first so MMMM wins over MM at the same position.
var formatTokens = []string{
	"YYYY", "MMMM", "dddd", "MMM", "ddd", "DoW", "MM", "DD", "Do", "HH", "hh", "mm", "ss", "D", "A",
}

// FormatDate renders a timestamp using the personalization token syntax
// (YYYY, MM, MMMM, DD, Do, dddd, HH, hh, mm, ss, A, ...). The value may be
// a time.Time or a parsable timestamp string. Returns false when the value
// cannot be interpreted as a time.
func FormatDate(value any, format string) (string, bool) {
	t, ok := coerceTime(value)
	if !ok {
		return "", false
	}

	var out strings.Builder
	i := 0
	for i < len(format) {
		matched := false
		for _, tok := range formatTokens {
			if strings.HasPrefix(format[i:], tok) {
				out.WriteString(renderToken(t, tok))
				i += len(tok)
				matched = true
				break
			}
		}
		if !matched {
			out.WriteByte(format[i])
			i++
		}
	}
	return out.String(), true
}

func renderToken(t time.Time, tok string) string {
	switch tok {
	case "YYYY":
		return fmt.Sprintf("%04d", t.Year())
	case "MMMM":
		return t.Month().String()
	case "MMM":
		return monthsAbbr[int(t.Month())-1]
	case "MM":
		return fmt.Sprintf("%02d", int(t.Month()))
	case "DD":
		return fmt.Sprintf("%02d", t.Day())
	case "D":
		return fmt.Sprintf("%d", t.Day())
	case "Do":
		return ordinal(t.Day())
	case "DoW":
		return ordinalWord(t.Day())
	case "dddd":
		return t.Weekday().String()
	case "ddd":
		return weekdaysAbbr[int(t.Weekday())]
	case "HH":
		return fmt.Sprintf("%02d", t.Hour())
	case "hh":
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		return fmt.Sprintf("%02d", h)
	case "mm":
		return fmt.Sprintf("%02d", t.Minute())
	case "ss":
		return fmt.Sprintf("%02d", t.Second())
	case "A":
		if t.Hour() >= 12 {
			return "PM"
		}
		return "AM"
	}
	return tok
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func coerceTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
