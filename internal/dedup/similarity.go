package dedup

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// indelParams makes substitutions cost two edits, so the Levenshtein
// distance degenerates to insert/delete distance and the normalized score
// matches the classic 2*M/T sequence ratio.
var indelParams = levenshtein.NewParams().SubCost(2)

// foldDiacritics strips combining marks so "Café" and "Cafe" compare equal.
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalize lowercases, folds diacritics, and reduces the string to
// space-separated alphanumeric tokens.
func normalize(s string) string {
	folded, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ratio is the normalized 0-100 similarity of two already-normalized
// strings: 100 * (len(a)+len(b)-dist) / (len(a)+len(b)).
func ratio(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	total := len([]rune(a)) + len([]rune(b))
	dist := levenshtein.Distance(a, b, indelParams)
	return int(math.Round(100 * float64(total-dist) / float64(total)))
}

func sortedTokens(s string) []string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return tokens
}

// TokenSortRatio compares the two strings with their tokens sorted, making
// the score insensitive to word order.
func TokenSortRatio(a, b string) int {
	return ratio(
		strings.Join(sortedTokens(normalize(a)), " "),
		strings.Join(sortedTokens(normalize(b)), " "),
	)
}

// TokenSetRatio compares the sorted token intersection against each side's
// full sorted token list and returns the best pairwise score. This keeps
// the score high when one name is a superset of the other, e.g. a legal
// suffix spelled out on only one side.
func TokenSetRatio(a, b string) int {
	ta, tb := sortedTokens(normalize(a)), sortedTokens(normalize(b))

	inA := make(map[string]bool, len(ta))
	for _, t := range ta {
		inA[t] = true
	}
	inB := make(map[string]bool, len(tb))
	for _, t := range tb {
		inB[t] = true
	}

	var common, restA, restB []string
	for _, t := range ta {
		if inB[t] {
			common = append(common, t)
		} else {
			restA = append(restA, t)
		}
	}
	for _, t := range tb {
		if !inA[t] {
			restB = append(restB, t)
		}
	}
	common = dedupeSorted(common)

	base := strings.Join(common, " ")
	full1 := strings.TrimSpace(base + " " + strings.Join(dedupeSorted(restA), " "))
	full2 := strings.TrimSpace(base + " " + strings.Join(dedupeSorted(restB), " "))

	best := ratio(base, full1)
	if r := ratio(base, full2); r > best {
		best = r
	}
	if r := ratio(full1, full2); r > best {
		best = r
	}
	return best
}

// TokenSimilarity is the score used for duplicate detection: the more
// permissive of the token-sort and token-set ratios.
func TokenSimilarity(a, b string) int {
	sortR := TokenSortRatio(a, b)
	if setR := TokenSetRatio(a, b); setR > sortR {
		return setR
	}
	return sortR
}

// dedupeSorted removes adjacent duplicates from an already-sorted slice.
func dedupeSorted(tokens []string) []string {
	if len(tokens) < 2 {
		return tokens
	}
	out := tokens[:1]
	for _, t := range tokens[1:] {
		if t != out[len(out)-1] {
			out = append(out, t)
		}
	}
	return out
}
