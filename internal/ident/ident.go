package ident

import (
	"path"
	"strings"

	"github.com/jinzhu/inflection"
)

// knownExtensions are stripped from log names so "orders", "orders.jsonl"
// and "orders.avro" all address the same log.
var knownExtensions = []string{".jsonl", ".json", ".avro"}

// SplitQualified splits a potentially schema-qualified name into its parts.
// Dots inside double quotes do not split.
func SplitQualified(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var parts []string
	var buf strings.Builder
	inQuotes := false
	runes := []rune(name)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				buf.WriteRune('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case '.':
			if inQuotes {
				buf.WriteRune(r)
				continue
			}
			parts = append(parts, strings.TrimSpace(buf.String()))
			buf.Reset()
		default:
			buf.WriteRune(r)
		}
	}
	parts = append(parts, strings.TrimSpace(buf.String()))
	return parts
}

// Stem returns name without directory and known extension.
func Stem(name string) string {
	base := path.Base(strings.TrimSpace(strings.ReplaceAll(name, `\`, "/")))
	if base == "." || base == "/" {
		return ""
	}
	for _, ext := range knownExtensions {
		if strings.HasSuffix(strings.ToLower(base), ext) && len(base) > len(ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}

// LogKey returns the slash-separated storage key of the log named name.
func LogKey(dir, name, ext string) string {
	stem := Stem(name)
	if stem == "" {
		return ""
	}
	return path.Join(strings.ReplaceAll(dir, `\`, "/"), stem+ext)
}

// BaseName returns the last unquoted segment of a qualified name.
func BaseName(name string) string {
	parts := SplitQualified(name)
	if len(parts) == 0 {
		return strings.TrimSpace(name)
	}
	return parts[len(parts)-1]
}

// PrimaryKeyCandidates returns the keys tried, in order, when no primary
// key is configured: "id", then "<singular>_id" of the record kind.
func PrimaryKeyCandidates(name string) []string {
	out := []string{"id"}
	base := strings.ToLower(BaseName(Stem(name)))
	if base == "" {
		return out
	}
	return append(out, inflection.Singular(base)+"_id")
}
