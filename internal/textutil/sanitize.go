package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// MaxFileNameBytes bounds sanitized names below common filesystem limits.
const MaxFileNameBytes = 200

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

var folder = cases.Fold()

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// The name is NFC-normalized, control characters are dropped, runs of
// whitespace collapse to one space, and the result is capped at
// MaxFileNameBytes without splitting a rune.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return ""
	}
	name = strings.Join(strings.Fields(fileNameReplacer.Replace(name)), " ")
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	return truncateBytes(name, MaxFileNameBytes)
}

// FoldKey returns a comparison key for case and width insensitive matching.
// Fullwidth Latin letters fold to their ASCII forms.
func FoldKey(value string) string {
	value = width.Narrow.String(norm.NFKC.String(strings.TrimSpace(value)))
	return folder.String(value)
}

// ContainsFold reports whether needle occurs in haystack under FoldKey.
func ContainsFold(haystack, needle string) bool {
	if strings.TrimSpace(needle) == "" {
		return true
	}
	return strings.Contains(FoldKey(haystack), FoldKey(needle))
}

func truncateBytes(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return strings.TrimSpace(value[:cut])
}
