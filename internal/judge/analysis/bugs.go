package analysis

import (
	"fmt"
	"strconv"
	"strings"
)

// Finding is one heuristic bug hint.
type Finding struct {
	Name        string
	Line        int
	Description string
	Details     string
	Hint        string
}

func (f Finding) String() string {
	return fmt.Sprintf("Potential %s at line %d:\n  %s\n  Details: %s\n  Hint: %s",
		f.Name, f.Line, f.Description, f.Details, f.Hint)
}

// FormatFindings renders findings as the diagnostic stored with the verdict.
func FormatFindings(findings []Finding) string {
	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, "\n\n")
}

// SupportsBugHints reports whether DetectBugs understands the language.
func SupportsBugHints(language string) bool {
	return language == "cpp" || language == "java"
}

type detector struct {
	name        string
	description string
	hint        string
	detect      func(p *program) (line int, details string, ok bool)
}

var detectors = []detector{
	{
		name:        "Loop Off By One",
		description: "Array index might go out of bounds or miss the last element",
		hint:        "Check your loop conditions. Use <= for inclusive ranges and < for exclusive ranges.",
		detect:      detectOffByOne,
	},
	{
		name:        "Missing Base Case",
		description: "Recursion might not terminate due to missing base case",
		hint:        "Add a base case that handles the smallest possible input without recursion",
		detect:      detectMissingBaseCase,
	},
	{
		name:        "Index Out of Bounds",
		description: "Array access might exceed bounds",
		hint:        "Validate array indices before access and check array lengths",
		detect:      detectOutOfBounds,
	},
	{
		name:        "Infinite Loop",
		description: "Loop condition might never become false",
		hint:        "Ensure loop variables are modified inside the loop and condition will eventually be false",
		detect:      detectInfiniteLoop,
	},
}

// DetectBugs runs every detector over source and returns at most one finding per
// detector, in detector order. Unsupported languages yield nothing.
func DetectBugs(language, source string) []Finding {
	if !SupportsBugHints(language) {
		return nil
	}
	p := newProgram(lex(source, language))
	var findings []Finding
	for _, d := range detectors {
		line, details, ok := d.detect(p)
		if !ok {
			continue
		}
		findings = append(findings, Finding{
			Name:        d.name,
			Line:        line,
			Description: d.description,
			Details:     details,
			Hint:        d.hint,
		})
	}
	return findings
}

// typeWords never name a loop variable.
var typeWords = map[string]bool{
	"int": true, "long": true, "short": true, "char": true, "bool": true, "boolean": true,
	"double": true, "float": true, "unsigned": true, "signed": true, "auto": true, "const": true,
	"var": true, "void": true, "size_t": true, "String": true, "byte": true, "final": true,
	"new": true, "true": true, "false": true, "this": true, "null": true, "nullptr": true,
	"sizeof": true, "static": true,
}

var controlWords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"synchronized": true, "return": true, "sizeof": true, "do": true, "else": true,
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true, "++": true, "--": true,
}

// program is a token stream plus the constants and fixed array sizes declared in it.
type program struct {
	toks   []token
	consts map[string]int
	sizes  map[string]arrayDecl
}

type arrayDecl struct {
	size int
	at   int
}

type loop struct {
	keyword    string
	line       int
	header     [2]int // exclusive bounds inside the parentheses
	body       [2]int // exclusive bounds of the body statements
	hasUpdater bool
}

func newProgram(toks []token) *program {
	p := &program{toks: toks, consts: map[string]int{}, sizes: map[string]arrayDecl{}}
	p.collectConsts()
	p.collectArrays()
	return p
}

func (p *program) tok(i int) token {
	if i < 0 || i >= len(p.toks) {
		return token{kind: tokPunct}
	}
	return p.toks[i]
}

// collectConsts finds #define N 100, const int N = 100 and static final int N = 100.
func (p *program) collectConsts() {
	for i, t := range p.toks {
		if isPunct(t, "#") && isWord(p.tok(i+1), "define") && p.tok(i+2).kind == tokWord {
			if v, ok := parseInt(p.tok(i + 3)); ok {
				p.consts[p.tok(i+2).text] = v
			}
			continue
		}
		if !isWord(t, "const") && !isWord(t, "final") {
			continue
		}
		for j := i + 1; j < len(p.toks) && j < i+5; j++ {
			if p.tok(j).kind == tokWord && p.tok(j+1).text == "=" {
				if v, ok := parseInt(p.tok(j + 2)); ok && (isPunct(p.tok(j+3), ";") || isPunct(p.tok(j+3), ",")) {
					p.consts[p.tok(j).text] = v
				}
				break
			}
		}
	}
}

// collectArrays records fixed sizes from "T name[N]" and "name = new T[N]".
func (p *program) collectArrays() {
	for i, t := range p.toks {
		if t.kind != tokWord || typeWords[t.text] {
			continue
		}
		if _, seen := p.sizes[t.text]; seen {
			continue
		}
		prev := p.tok(i - 1)
		if isPunct(p.tok(i+1), "[") && isPunct(p.tok(i+3), "]") &&
			((prev.kind == tokWord && !controlWords[prev.text]) || isPunct(prev, ",")) {
			if v, ok := p.value(p.tok(i + 2)); ok {
				p.sizes[t.text] = arrayDecl{size: v, at: i}
			}
			continue
		}
		if p.tok(i+1).text == "=" && isWord(p.tok(i+2), "new") && p.tok(i+3).kind == tokWord &&
			isPunct(p.tok(i+4), "[") && isPunct(p.tok(i+6), "]") {
			if v, ok := p.value(p.tok(i + 5)); ok {
				p.sizes[t.text] = arrayDecl{size: v, at: i + 4}
			}
		}
	}
}

// value resolves an integer literal or a known constant.
func (p *program) value(t token) (int, bool) {
	if t.kind == tokNumber {
		return parseInt(t)
	}
	if t.kind == tokWord {
		v, ok := p.consts[t.text]
		return v, ok
	}
	return 0, false
}

func parseInt(t token) (int, bool) {
	if t.kind != tokNumber {
		return 0, false
	}
	v, err := strconv.Atoi(t.text)
	return v, err == nil
}

// match returns the index of the bracket closing the one at open, or len(toks).
func (p *program) match(open int) int {
	o := p.toks[open].text
	c := map[string]string{"(": ")", "[": "]", "{": "}"}[o]
	depth := 0
	for i := open; i < len(p.toks); i++ {
		switch {
		case isPunct(p.toks[i], o):
			depth++
		case isPunct(p.toks[i], c):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(p.toks)
}

// statementEnd returns the index just past a single statement starting at i.
func (p *program) statementEnd(i int) int {
	if isPunct(p.tok(i), "{") {
		return p.match(i) + 1
	}
	depth := 0
	for j := i; j < len(p.toks); j++ {
		switch {
		case isPunct(p.toks[j], "(") || isPunct(p.toks[j], "["):
			depth++
		case isPunct(p.toks[j], ")") || isPunct(p.toks[j], "]"):
			depth--
		case isPunct(p.toks[j], ";") && depth <= 0:
			return j + 1
		}
	}
	return len(p.toks)
}

func (p *program) loops() []loop {
	var out []loop
	for i, t := range p.toks {
		if !(isWord(t, "for") || isWord(t, "while")) || !isPunct(p.tok(i+1), "(") {
			continue
		}
		closeAt := p.match(i + 1)
		if closeAt >= len(p.toks) {
			continue
		}
		l := loop{keyword: t.text, line: t.line, header: [2]int{i + 2, closeAt}}
		start := closeAt + 1
		if open, ok := p.doBlock(i); ok {
			l.body = [2]int{open + 1, i - 1}
		} else if isPunct(p.tok(start), ";") {
			l.body = [2]int{start, start}
		} else if isPunct(p.tok(start), "{") {
			l.body = [2]int{start + 1, p.match(start)}
		} else {
			l.body = [2]int{start, p.statementEnd(start)}
		}
		if t.text == "for" {
			parts := p.split(l.header, ";")
			if len(parts) == 3 {
				l.hasUpdater = parts[2][1] > parts[2][0]
				l.header = parts[1]
			} else {
				// range-based for never spins on its own
				l.hasUpdater = true
			}
		}
		out = append(out, l)
	}
	return out
}

// doBlock finds the opening brace of "do { ... } while" ending right before i.
func (p *program) doBlock(i int) (int, bool) {
	if !isPunct(p.tok(i-1), "}") {
		return 0, false
	}
	depth := 0
	for j := i - 1; j >= 0; j-- {
		switch {
		case isPunct(p.toks[j], "}"):
			depth++
		case isPunct(p.toks[j], "{"):
			depth--
			if depth == 0 {
				return j, isWord(p.tok(j-1), "do")
			}
		}
	}
	return 0, false
}

// split cuts [from, to) at top-level separators.
func (p *program) split(r [2]int, sep string) [][2]int {
	var parts [][2]int
	depth, start := 0, r[0]
	for i := r[0]; i < r[1]; i++ {
		t := p.toks[i]
		switch {
		case isPunct(t, "(") || isPunct(t, "[") || isPunct(t, "{"):
			depth++
		case isPunct(t, ")") || isPunct(t, "]") || isPunct(t, "}"):
			depth--
		case isPunct(t, sep) && depth == 0:
			parts = append(parts, [2]int{start, i})
			start = i + 1
		}
	}
	return append(parts, [2]int{start, r[1]})
}

// detectOffByOne flags "i <= bound" loops that index an array of exactly bound elements with i.
func detectOffByOne(p *program) (int, string, bool) {
	for _, l := range p.loops() {
		if l.keyword != "for" {
			continue
		}
		for i := l.header[0]; i < l.header[1]; i++ {
			v := p.toks[i]
			if v.kind != tokWord || p.tok(i+1).text != "<=" {
				continue
			}
			arrays, bound := p.boundArrays(i + 2)
			if len(arrays) == 0 {
				continue
			}
			for j := l.body[0]; j < l.body[1]; j++ {
				name := p.toks[j]
				if name.kind == tokWord && arrays[name.text] && isPunct(p.tok(j+1), "[") &&
					isWord(p.tok(j+2), v.text) && isPunct(p.tok(j+3), "]") {
					return l.line, fmt.Sprintf("Loop condition '%s <= %s' lets '%s[%s]' read one past the end",
						v.text, bound, name.text, v.text), true
				}
			}
		}
	}
	return 0, "", false
}

// boundArrays resolves the right side of a comparison to the arrays whose length it equals.
func (p *program) boundArrays(i int) (map[string]bool, string) {
	t := p.tok(i)
	if t.kind == tokWord && isPunct(p.tok(i+1), ".") {
		member := p.tok(i + 2)
		if isWord(member, "length") || (isWord(member, "size") && isPunct(p.tok(i+3), "(")) {
			bound := t.text + "." + member.text
			if member.text == "size" {
				bound += "()"
			}
			return map[string]bool{t.text: true}, bound
		}
		return nil, ""
	}
	next := p.tok(i + 1)
	if next.kind == tokOperator || isPunct(next, ".") || isPunct(next, "(") || isPunct(next, "[") {
		return nil, ""
	}
	v, ok := p.value(t)
	if !ok {
		return nil, ""
	}
	arrays := map[string]bool{}
	for name, decl := range p.sizes {
		if decl.size == v {
			arrays[name] = true
		}
	}
	return arrays, t.text
}

// detectMissingBaseCase flags a function that calls itself with nothing to stop the recursion.
func detectMissingBaseCase(p *program) (int, string, bool) {
	for i, t := range p.toks {
		if t.kind != tokWord || controlWords[t.text] || typeWords[t.text] || !isPunct(p.tok(i+1), "(") {
			continue
		}
		prev := p.tok(i - 1)
		if prev.kind != tokWord || isWord(prev, "new") || isWord(prev, "return") {
			continue
		}
		closeAt := p.match(i + 1)
		open := closeAt + 1
		for open < len(p.toks) && !isPunct(p.toks[open], "{") && !isPunct(p.toks[open], ";") &&
			(p.toks[open].kind == tokWord || isPunct(p.toks[open], ",") || isPunct(p.toks[open], ".")) {
			// const, throws X, noexcept
			open++
		}
		if !isPunct(p.tok(open), "{") {
			continue
		}
		end := p.match(open)
		recursive, guarded := false, false
		for j := open + 1; j < end; j++ {
			b := p.toks[j]
			switch {
			case b.kind == tokWord && b.text == t.text && isPunct(p.tok(j+1), "(") && !isPunct(p.tok(j-1), "."):
				recursive = true
			case isWord(b, "if") || isWord(b, "switch") || isWord(b, "for") || isWord(b, "while") ||
				(b.kind == tokOperator && b.text == "&&") || (b.kind == tokOperator && b.text == "||") ||
				isPunct(b, "?"):
				guarded = true
			case isWord(b, "return") && !p.callsIn(j+1, p.statementEnd(j+1), t.text):
				guarded = true
			}
		}
		if recursive && !guarded {
			return t.line, fmt.Sprintf("Function %s appears to be recursive but may be missing a base case", t.text), true
		}
	}
	return 0, "", false
}

func (p *program) callsIn(from, to int, name string) bool {
	for j := from; j < to && j < len(p.toks); j++ {
		if isWord(p.toks[j], name) && isPunct(p.tok(j+1), "(") {
			return true
		}
	}
	return false
}

// detectOutOfBounds flags constant indexes outside a fixed-size array.
func detectOutOfBounds(p *program) (int, string, bool) {
	for i, t := range p.toks {
		decl, ok := p.sizes[t.text]
		if t.kind != tokWord || !ok || i == decl.at || !isPunct(p.tok(i+1), "[") {
			continue
		}
		if p.tok(i+2).text == "-" && p.tok(i+3).kind == tokNumber && isPunct(p.tok(i+4), "]") {
			return t.line, fmt.Sprintf("Negative index -%s into '%s'", p.tok(i+3).text, t.text), true
		}
		if !isPunct(p.tok(i+3), "]") {
			continue
		}
		if idx, ok := p.value(p.tok(i + 2)); ok && idx >= decl.size {
			return t.line, fmt.Sprintf("Index %d is outside '%s' declared with size %d", idx, t.text, decl.size), true
		}
	}
	return 0, "", false
}

// detectInfiniteLoop flags loops whose condition variables never change and that have no way out.
func detectInfiniteLoop(p *program) (int, string, bool) {
	for _, l := range p.loops() {
		if l.hasUpdater || p.escapes(l.body) {
			continue
		}
		if l.header[1] == l.header[0] || p.alwaysTrue(l.header) {
			return l.line, "Loop condition is always true and the body has no break or return", true
		}
		if p.conditionUpdates(l.header) {
			continue
		}
		vars := p.conditionVars(l.header)
		if len(vars) == 0 {
			continue
		}
		modified := false
		for _, v := range vars {
			if p.modifies(l.body, v) {
				modified = true
				break
			}
		}
		if !modified {
			return l.line, fmt.Sprintf("Loop variable '%s' is not modified inside the loop", vars[0]), true
		}
	}
	return 0, "", false
}

func (p *program) escapes(r [2]int) bool {
	for i := r[0]; i < r[1]; i++ {
		t := p.toks[i]
		if isWord(t, "break") || isWord(t, "return") || isWord(t, "exit") || isWord(t, "throw") || isWord(t, "goto") {
			return true
		}
	}
	return false
}

func (p *program) alwaysTrue(r [2]int) bool {
	if r[1]-r[0] != 1 {
		return false
	}
	t := p.toks[r[0]]
	return isWord(t, "true") || (t.kind == tokNumber && t.text != "0")
}

// conditionUpdates reports conditions that change state themselves, such as cin >> x or getline(...).
func (p *program) conditionUpdates(r [2]int) bool {
	for i := r[0]; i < r[1]; i++ {
		t := p.toks[i]
		if t.kind == tokOperator && (assignOps[t.text] || t.text == ">>") {
			return true
		}
		if t.kind == tokWord && isPunct(p.tok(i+1), "(") && !isPunct(p.tok(i-1), ".") {
			return true
		}
	}
	return false
}

func (p *program) conditionVars(r [2]int) []string {
	var vars []string
	seen := map[string]bool{}
	for i := r[0]; i < r[1]; i++ {
		t := p.toks[i]
		if t.kind != tokWord || typeWords[t.text] || seen[t.text] {
			continue
		}
		if isPunct(p.tok(i-1), ".") || isPunct(p.tok(i+1), "(") {
			continue
		}
		if _, isConst := p.consts[t.text]; isConst {
			continue
		}
		seen[t.text] = true
		vars = append(vars, t.text)
	}
	return vars
}

// modifies reports whether the range assigns v, reads into it, takes its address or calls a method on it.
func (p *program) modifies(r [2]int, v string) bool {
	for i := r[0]; i < r[1]; i++ {
		if !isWord(p.toks[i], v) || isPunct(p.tok(i-1), ".") {
			continue
		}
		prev, next := p.tok(i-1), p.tok(i+1)
		switch {
		case next.kind == tokOperator && (assignOps[next.text] || next.text == ">>"):
			return true
		case prev.kind == tokOperator && (prev.text == "++" || prev.text == "--" || prev.text == "&" || prev.text == ">>"):
			return true
		case isPunct(next, ".") && isPunct(p.tok(i+3), "("):
			return true
		case isPunct(prev, "(") || isPunct(prev, ","):
			// passed to a call that may take it by reference
			if p.insideCall(i) {
				return true
			}
		}
	}
	return false
}

func (p *program) insideCall(i int) bool {
	depth := 0
	for j := i - 1; j >= 0; j-- {
		t := p.toks[j]
		switch {
		case isPunct(t, ")"):
			depth++
		case isPunct(t, "("):
			if depth == 0 {
				prev := p.tok(j - 1)
				return prev.kind == tokWord && !controlWords[prev.text]
			}
			depth--
		case isPunct(t, ";") || isPunct(t, "{") || isPunct(t, "}"):
			return false
		}
	}
	return false
}
