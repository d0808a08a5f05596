package templates

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Date format tags understood by formatDate. Any other value is used as a Go layout.
const (
	DateShort = "short"
	DateLong  = "long"
	DateISO   = "iso"
	DateTime  = "time"
)

func (r *Registry) registerBuiltins() {
	// Casers carry state, so each call builds its own.
	builtins := map[string]any{
		"upper":        func(value any) string { return cases.Upper(language.Und).String(toString(value)) },
		"lower":        func(value any) string { return cases.Lower(language.Und).String(toString(value)) },
		"title":        func(value any) string { return cases.Title(language.English).String(toString(value)) },
		"capitalize":   capitalize,
		"formatDate":   formatDate,
		"now":          time.Now,
		"equals":       valuesEqual,
		"notEquals":    func(a, b any) bool { return !valuesEqual(a, b) },
		"ifEquals":     ifEquals,
		"ifNotEquals":  ifNotEquals,
		"repeat":       repeat,
		"times":        times,
		"bulletList":   bulletList,
		"numberedList": numberedList,
		"includes":     includes,
		"camelCase":    camelCase,
		"pascalCase":   pascalCase,
		"snakeCase":    func(value any) string { return joinWords(value, "_") },
		"kebabCase":    func(value any) string { return joinWords(value, "-") },
		"default":      defaultValue,
		"join":         join,
	}
	for name, fn := range builtins {
		r.helpers[name] = fn
	}
}

func capitalize(value any) string {
	return upperFirst(toString(value))
}

// formatDate formats a time.Time or timestamp string. format is one of the
// date tags or a Go layout.
func formatDate(format string, value any) (string, error) {
	var t time.Time
	switch v := value.(type) {
	case nil:
		return "", nil
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return "", nil
		}
		t = *v
	default:
		parsed, err := parseTimestamp(toString(v))
		if err != nil {
			return "", err
		}
		if parsed.IsZero() {
			return "", nil
		}
		t = parsed
	}

	switch strings.TrimSpace(format) {
	case DateShort, "":
		return t.Format("2006-01-02"), nil
	case DateLong:
		return t.Format("January 2, 2006"), nil
	case DateISO:
		return t.Format(time.RFC3339), nil
	case DateTime:
		return t.Format("15:04"), nil
	default:
		return t.Format(format), nil
	}
}

func ifEquals(a, b, then, otherwise any) any {
	if valuesEqual(a, b) {
		return then
	}
	return otherwise
}

func ifNotEquals(a, b, then, otherwise any) any {
	if !valuesEqual(a, b) {
		return then
	}
	return otherwise
}

// repeat returns n indexes for use with range.
func repeat(n any) ([]int, error) {
	count, err := toInt(n)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		count = 0
	}
	out := make([]int, count)
	for i := range out {
		out[i] = i
	}
	return out, nil
}

func times(n any, value any) (string, error) {
	count, err := toInt(n)
	if err != nil {
		return "", err
	}
	if count <= 0 {
		return "", nil
	}
	return strings.Repeat(toString(value), count), nil
}

func bulletList(items any) string {
	values := toStrings(items)
	lines := make([]string, len(values))
	for i, value := range values {
		lines[i] = "- " + value
	}
	return strings.Join(lines, "\n")
}

func numberedList(items any) string {
	values := toStrings(items)
	lines := make([]string, len(values))
	for i, value := range values {
		lines[i] = fmt.Sprintf("%d. %s", i+1, value)
	}
	return strings.Join(lines, "\n")
}

func includes(list any, item any) bool {
	if list == nil {
		return false
	}
	if text, ok := list.(string); ok {
		return strings.Contains(text, toString(item))
	}
	v := reflect.ValueOf(list)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if valuesEqual(v.Index(i).Interface(), item) {
				return true
			}
		}
	case reflect.Map:
		key := reflect.ValueOf(item)
		if key.IsValid() && key.Type().AssignableTo(v.Type().Key()) {
			return v.MapIndex(key).IsValid()
		}
	}
	return false
}

func camelCase(value any) string {
	words := splitWords(toString(value))
	for i, word := range words {
		if i == 0 {
			words[i] = strings.ToLower(word)
			continue
		}
		words[i] = upperFirst(strings.ToLower(word))
	}
	return strings.Join(words, "")
}

func pascalCase(value any) string {
	words := splitWords(toString(value))
	for i, word := range words {
		words[i] = upperFirst(strings.ToLower(word))
	}
	return strings.Join(words, "")
}

func joinWords(value any, sep string) string {
	words := splitWords(toString(value))
	for i, word := range words {
		words[i] = strings.ToLower(word)
	}
	return strings.Join(words, sep)
}

func upperFirst(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if size == 0 {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}

// splitWords breaks an identifier into words on separators and case changes,
// so "HTTPServer-config_v2" yields [HTTP Server config v2].
func splitWords(text string) []string {
	runes := []rune(text)
	var words []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(current) > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		current = append(current, r)
	}
	flush()
	return words
}

func defaultValue(def any, value any) any {
	if value == nil {
		return def
	}

	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	default:
		text := strings.TrimSpace(fmt.Sprint(v))
		if text == "" {
			return def
		}
		return v
	}
}

func join(sep string, items any) string {
	return strings.Join(toStrings(items), sep)
}

// valuesEqual compares two context values. Numbers compare by value so a YAML
// integer matches a float64 decoded from JSON.
func valuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func toInt(value any) (int, error) {
	if f, ok := toFloat(value); ok {
		return int(f), nil
	}
	if text, ok := value.(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", text)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", value)
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func toStrings(items any) []string {
	switch v := items.(type) {
	case nil:
		return nil
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	rv := reflect.ValueOf(items)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []string{toString(items)}
	}
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, toString(rv.Index(i).Interface()))
	}
	return out
}
