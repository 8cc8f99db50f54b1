package deltatrail

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"

	"github.com/mickamy/deltatrail/internal/ident"
)

// LogNamer provides a custom log name for a model.
type LogNamer interface {
	LogName() string
}

// NameOf derives a log name from target. A string names the log directly
// and a LogNamer (value or pointer receiver) supplies its own; either may
// carry a directory or a .jsonl/.json/.avro extension, which is dropped.
// Any other named struct becomes the plural snake case of its type name
// (User -> users, OrderItem -> order_items).
func NameOf(target any) (string, error) {
	if target == nil {
		return "", errors.New("deltatrail: nil log target")
	}
	if s, ok := target.(string); ok {
		return logName(s, "string target")
	}
	if namer, ok := asNamer(target); ok {
		return logName(namer.LogName(), fmt.Sprintf("LogName of %T", target))
	}

	typ := reflect.TypeOf(target)
	if typ.Kind() == reflect.Pointer {
		if reflect.ValueOf(target).IsNil() {
			return "", fmt.Errorf("deltatrail: nil pointer target %T", target)
		}
		typ = typ.Elem()
	}
	switch {
	case typ.Kind() != reflect.Struct:
		return "", fmt.Errorf("deltatrail: unsupported log target %T", target)
	case typ.Name() == "":
		return "", fmt.Errorf("deltatrail: cannot derive log name for anonymous struct of type %v", typ)
	}
	return inflection.Plural(snakeCase(typ.Name())), nil
}

// asNamer finds a LogNamer on target, its pointee, or a pointer to it.
func asNamer(target any) (LogNamer, bool) {
	if n, ok := target.(LogNamer); ok {
		if v := reflect.ValueOf(target); v.Kind() != reflect.Pointer || !v.IsNil() {
			return n, true
		}
		return nil, false
	}
	v := reflect.ValueOf(target)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	n, ok := p.Interface().(LogNamer)
	return n, ok
}

func logName(raw, source string) (string, error) {
	name := ident.Stem(raw)
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("deltatrail: empty log name from %s", source)
	}
	return name, nil
}

// snakeCase splits an identifier into words at lower-to-upper transitions
// and before the last capital of an acronym (HTTPLog -> http_log).
func snakeCase(s string) string {
	runes := []rune(s)
	words := make([]string, 0, 4)
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		afterLower := !unicode.IsUpper(runes[i-1])
		acronymEnd := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if afterLower || acronymEnd {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	words = append(words, string(runes[start:]))
	return strings.ToLower(strings.Join(words, "_"))
}
