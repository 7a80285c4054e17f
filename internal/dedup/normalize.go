package dedup

import (
    "strings"
    "unicode"

    "github.com/pmezard/go-difflib/difflib"
    "golang.org/x/text/runes"
    "golang.org/x/text/transform"
    "golang.org/x/text/unicode/norm"
)

// FingerprintWords bounds the fingerprint length.
const FingerprintWords = 300

// Normalize folds s for comparison: compatibility decomposition with
// combining marks removed, lower case, punctuation replaced by spaces and
// whitespace collapsed.
func Normalize(s string) string {
    t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
    folded, _, err := transform.String(t, s)
    if err != nil {
        folded = s
    }
    mapped := strings.Map(func(r rune) rune {
        if unicode.IsLetter(r) || unicode.IsDigit(r) {
            return unicode.ToLower(r)
        }
        return ' '
    }, folded)
    return strings.Join(strings.Fields(mapped), " ")
}

// Fingerprint reduces text to its first FingerprintWords normalized words.
func Fingerprint(text string) string {
    words := strings.Fields(Normalize(text))
    if len(words) > FingerprintWords {
        words = words[:FingerprintWords]
    }
    return strings.Join(words, " ")
}

// TitleSimilarity is the sequence-matcher ratio over the characters of two
// normalized titles. Empty input never matches.
func TitleSimilarity(a, b string) float64 {
    if a == "" || b == "" {
        return 0
    }
    return ratio(strings.Split(a, ""), strings.Split(b, ""))
}

// ContentSimilarity is the sequence-matcher ratio over the words of two
// fingerprints. Empty input never matches.
func ContentSimilarity(a, b string) float64 {
    if a == "" || b == "" {
        return 0
    }
    return ratio(strings.Fields(a), strings.Fields(b))
}

func ratio(a, b []string) float64 {
    return difflib.NewMatcher(a, b).Ratio()
}
