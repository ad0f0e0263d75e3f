// Package analysis inspects submitted source once a verdict is known: heuristic bug
// hints for failed runs and a structural similarity score for accepted ones.
package analysis

import "strings"

type tokenKind int

const (
	tokWord tokenKind = iota
	tokNumber
	tokString
	tokOperator
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	line int
}

// operators are matched longest first.
var operators = []string{
	"==", "!=", "<=", ">=", "++", "--", "+=", "-=", "*=", "/=", "%=", "&&", "||", "<<", ">>",
	"+", "-", "*", "/", "%", "=", "<", ">", "!", "&", "|", "^", "~",
}

// lex splits source into tokens, dropping whitespace and comments.
// Python uses # comments and its triple-quoted strings are dropped like comments;
// every other language uses // and /* */.
func lex(source, language string) []token {
	hashComments := language == "python"
	var toks []token
	line := 1
	i := 0
	n := len(source)

	skipTo := func(end int) {
		line += strings.Count(source[i:end], "\n")
		i = end
	}

	for i < n {
		c := source[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			i++
		case hashComments && c == '#', !hashComments && strings.HasPrefix(source[i:], "//"):
			end := strings.IndexByte(source[i:], '\n')
			if end < 0 {
				i = n
			} else {
				i += end
			}
		case !hashComments && strings.HasPrefix(source[i:], "/*"):
			end := strings.Index(source[i+2:], "*/")
			if end < 0 {
				skipTo(n)
			} else {
				skipTo(i + 2 + end + 2)
			}
		case hashComments && (strings.HasPrefix(source[i:], `"""`) || strings.HasPrefix(source[i:], "'''")):
			quote := source[i : i+3]
			end := strings.Index(source[i+3:], quote)
			if end < 0 {
				skipTo(n)
			} else {
				skipTo(i + 3 + end + 3)
			}
		case c == '"' || c == '\'':
			start, startLine := i, line
			j := i + 1
			for j < n && source[j] != c && source[j] != '\n' {
				if source[j] == '\\' && j+1 < n {
					j++
				}
				j++
			}
			if j < n && source[j] == c {
				j++
			}
			skipTo(j)
			toks = append(toks, token{kind: tokString, text: source[start:j], line: startLine})
		case isDigit(c):
			j := i + 1
			for j < n && (isWordByte(source[j]) || source[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: source[i:j], line: line})
			i = j
		case isWordStart(c):
			j := i + 1
			for j < n && isWordByte(source[j]) {
				j++
			}
			toks = append(toks, token{kind: tokWord, text: source[i:j], line: line})
			i = j
		default:
			if op := matchOperator(source[i:]); op != "" {
				toks = append(toks, token{kind: tokOperator, text: op, line: line})
				i += len(op)
				continue
			}
			toks = append(toks, token{kind: tokPunct, text: source[i : i+1], line: line})
			i++
		}
	}
	return toks
}

func matchOperator(s string) string {
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

func isDigit(c byte) bool     { return c >= '0' && c <= '9' }
func isWordStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isWordByte(c byte) bool  { return isWordStart(c) || isDigit(c) }

func isWord(t token, text string) bool  { return t.kind == tokWord && t.text == text }
func isPunct(t token, text string) bool { return t.kind == tokPunct && t.text == text }
