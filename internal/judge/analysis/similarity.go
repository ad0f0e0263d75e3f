package analysis

import (
	"strconv"

	"ojengine/internal/judge/model"
)

// maxCompareTokens caps each side of a comparison; LCS is quadratic.
const maxCompareTokens = 4000

var keywords = map[string]map[string]bool{
	"cpp": wordSet("auto", "break", "case", "char", "const", "continue", "default", "do",
		"double", "else", "enum", "extern", "float", "for", "goto", "if",
		"int", "long", "register", "return", "short", "signed", "sizeof", "static",
		"struct", "switch", "typedef", "union", "unsigned", "void", "volatile", "while"),
	"java": wordSet("abstract", "assert", "boolean", "break", "byte", "case", "catch", "char",
		"class", "const", "continue", "default", "do", "double", "else", "enum",
		"extends", "final", "finally", "float", "for", "if", "implements", "import",
		"instanceof", "int", "interface", "long", "native", "new", "package", "private",
		"protected", "public", "return", "short", "static", "strictfp", "super", "switch",
		"synchronized", "this", "throw", "throws", "transient", "try", "void", "volatile", "while"),
	"python": wordSet("False", "None", "True", "and", "as", "assert", "async", "await", "break",
		"class", "continue", "def", "del", "elif", "else", "except", "finally", "for",
		"from", "global", "if", "import", "in", "is", "lambda", "nonlocal", "not",
		"or", "pass", "raise", "return", "try", "while", "with", "yield"),
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// fingerprint normalizes source so renamed identifiers and changed literals or
// comments do not affect the comparison. Identifiers become ID_n in order of
// first appearance.
func fingerprint(language, source string) []string {
	kw := keywords[language]
	names := map[string]string{}
	toks := lex(source, language)
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		switch t.kind {
		case tokWord:
			if kw[t.text] {
				out = append(out, t.text)
				continue
			}
			id, ok := names[t.text]
			if !ok {
				id = "ID_" + strconv.Itoa(len(names))
				names[t.text] = id
			}
			out = append(out, id)
		case tokNumber:
			out = append(out, "NUM")
		case tokString:
			out = append(out, "STR")
		default:
			out = append(out, t.text)
		}
		if len(out) >= maxCompareTokens {
			break
		}
	}
	return out
}

// Similarity scores two sources of the same language from 0 to 1 as the Dice
// coefficient over the longest common subsequence of their fingerprints.
func Similarity(language, a, b string) float64 {
	return dice(fingerprint(language, a), fingerprint(language, b))
}

func dice(a, b []string) float64 {
	if len(a)+len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(prev[len(b)]) / float64(len(a)+len(b))
}

// BestMatch returns the reference most similar to source when its score exceeds threshold.
// Ties keep the earlier reference.
func BestMatch(language, source string, refs []model.ReferenceSource, threshold float64) (model.SimilarityMatch, bool) {
	if len(refs) == 0 {
		return model.SimilarityMatch{}, false
	}
	fp := fingerprint(language, source)
	var best model.SimilarityMatch
	found := false
	for _, ref := range refs {
		score := dice(fp, fingerprint(language, ref.SourceCode))
		if score > threshold && (!found || score > best.Score) {
			best = model.SimilarityMatch{Score: score, Kind: ref.Kind, ID: ref.ID}
			found = true
		}
	}
	return best, found
}
