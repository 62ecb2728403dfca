package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// Match sequences of non-alphanumeric characters
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	// Match leading/trailing hyphens
	trimHyphens = regexp.MustCompile(`^-+|-+$`)
)

// maxSlugLen bounds board directory names.
const maxSlugLen = 40

// completionWords are the title keywords older boards relied on to mark a
// finished stage. They are matched against accent-free slug words.
var completionWords = map[string]bool{
	"done": true, "won": true, "lost": true, "closed": true, "complete": true, "completed": true,
	"concluido": true, "concluida": true, "ganho": true, "ganha": true, "perdido": true, "fechado": true,
	"hecho": true, "ganado": true, "cerrado": true, "terminado": true,
	"termine": true, "gagne": true, "perdu": true, "ferme": true,
	"erledigt": true, "gewonnen": true, "verloren": true, "abgeschlossen": true,
}

// SlugWords converts a string to normalized slug words.
//   - Converts to lowercase
//   - Normalizes unicode (removes accents)
//   - Replaces spaces and special characters with hyphens
//   - Splits on hyphens into individual words
func SlugWords(s string) []string {
	s = strings.ToLower(s)
	s = removeAccents(s)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	s = trimHyphens.ReplaceAllString(s, "")

	if s == "" {
		return nil
	}

	return strings.Split(s, "-")
}

// Slugify joins the slug words of s with hyphens, truncated on a word
// boundary.
func Slugify(s string) string {
	var b strings.Builder
	for _, w := range SlugWords(s) {
		if b.Len() > 0 && b.Len()+1+len(w) > maxSlugLen {
			break
		}
		if b.Len() > 0 {
			b.WriteByte('-')
		}
		b.WriteString(w)
	}
	return b.String()
}

// LooksCompleted reports whether a group title reads like a finished stage
// in one of the languages older boards were labelled in.
func LooksCompleted(title string) bool {
	for _, w := range SlugWords(title) {
		if completionWords[w] {
			return true
		}
	}
	return false
}

// removeAccents removes diacritical marks from unicode characters.
func removeAccents(s string) string {
	// Decompose unicode characters (NFD normalization)
	result := norm.NFD.String(s)

	// Remove combining characters (accents, diacritics)
	var b strings.Builder
	for _, r := range result {
		if !unicode.Is(unicode.Mn, r) { // Mn = Mark, Nonspacing
			b.WriteRune(r)
		}
	}

	return b.String()
}
