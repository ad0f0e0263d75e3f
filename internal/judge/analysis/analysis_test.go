package analysis

import (
	"strings"
	"testing"

	"ojengine/internal/judge/model"
)

func TestDetectBugsLoopOffByOne(t *testing.T) {
	t.Parallel()
	src := `#include <cstdio>
int a[10];
int main() {
    for (int i = 0; i <= 10; i++) {
        a[i] = i;
    }
    return 0;
}`
	findings := DetectBugs("cpp", src)
	if len(findings) != 1 {
		t.Fatalf("expected one finding, got %+v", findings)
	}
	f := findings[0]
	if f.Name != "Loop Off By One" || f.Line != 4 {
		t.Fatalf("unexpected finding: %+v", f)
	}
	if f.Details != "Loop condition 'i <= 10' lets 'a[i]' read one past the end" {
		t.Fatalf("unexpected details: %q", f.Details)
	}
}

func TestDetectBugsMissingBaseCase(t *testing.T) {
	t.Parallel()
	src := `public class Main {
    static int fact(int n) {
        return n * fact(n - 1);
    }
    public static void main(String[] args) {
        System.out.println(fact(5));
    }
}`
	findings := DetectBugs("java", src)
	if len(findings) != 1 || findings[0].Name != "Missing Base Case" || findings[0].Line != 2 {
		t.Fatalf("unexpected findings: %+v", findings)
	}
	if !strings.Contains(findings[0].Details, "Function fact") {
		t.Fatalf("details should name the function: %q", findings[0].Details)
	}

	guarded := strings.Replace(src, "return n * fact", "if (n <= 1) return 1;\n        return n * fact", 1)
	if got := DetectBugs("java", guarded); len(got) != 0 {
		t.Fatalf("guarded recursion flagged: %+v", got)
	}
}

func TestDetectBugsIndexOutOfBounds(t *testing.T) {
	t.Parallel()
	src := `const int N = 5;
int a[N];
int main() {
    a[5] = 1;
    return 0;
}`
	findings := DetectBugs("cpp", src)
	if len(findings) != 1 || findings[0].Name != "Index Out of Bounds" || findings[0].Line != 4 {
		t.Fatalf("unexpected findings: %+v", findings)
	}
	if findings[0].Details != "Index 5 is outside 'a' declared with size 5" {
		t.Fatalf("unexpected details: %q", findings[0].Details)
	}
}

func TestDetectBugsInfiniteLoop(t *testing.T) {
	t.Parallel()
	src := `int main() {
    int i = 0, s = 0;
    while (i < 10) {
        s += i;
    }
    return s;
}`
	findings := DetectBugs("cpp", src)
	if len(findings) != 1 || findings[0].Name != "Infinite Loop" || findings[0].Line != 3 {
		t.Fatalf("unexpected findings: %+v", findings)
	}
	if findings[0].Details != "Loop variable 'i' is not modified inside the loop" {
		t.Fatalf("unexpected details: %q", findings[0].Details)
	}
}

func TestDetectBugsQuietOnCommonIdioms(t *testing.T) {
	t.Parallel()
	src := `#include <bits/stdc++.h>
using namespace std;
int a[100];
int dfs(int n) {
    if (n <= 1) return 1;
    return dfs(n - 1) + 1;
}
int main() {
    int n, x;
    cin >> n;
    for (int i = 0; i < n; i++) cin >> a[i];
    queue<int> q;
    q.push(1);
    while (!q.empty()) {
        q.pop();
    }
    while (cin >> x) {
        n += x;
    }
    int lo = 0, hi = n;
    while (lo < hi) {
        int mid = (lo + hi) / 2;
        if (a[mid] < x) lo = mid + 1; else hi = mid;
    }
    cout << dfs(n) << endl;
    return 0;
}`
	if findings := DetectBugs("cpp", src); len(findings) != 0 {
		t.Fatalf("expected no findings, got %s", FormatFindings(findings))
	}
}

func TestDetectBugsSkipsUnsupportedLanguages(t *testing.T) {
	t.Parallel()
	if findings := DetectBugs("python", "while True:\n    pass\n"); findings != nil {
		t.Fatalf("python must not be analyzed: %+v", findings)
	}
}

func TestFormatFindings(t *testing.T) {
	t.Parallel()
	got := FormatFindings([]Finding{
		{Name: "A", Line: 1, Description: "d1", Details: "x", Hint: "h1"},
		{Name: "B", Line: 7, Description: "d2", Details: "y", Hint: "h2"},
	})
	want := "Potential A at line 1:\n  d1\n  Details: x\n  Hint: h1\n\n" +
		"Potential B at line 7:\n  d2\n  Details: y\n  Hint: h2"
	if got != want {
		t.Fatalf("unexpected rendering:\n%s", got)
	}
}

const sumSource = `int main() {
    int a = 1;
    int b = 2;
    return a + b;
}`

const renamedSumSource = `// sum of two numbers
int main() {
    int x = 7; /* first */
    int y = 9;
    return x + y;
}`

const unrelatedSource = `#include <cstdio>
int main() {
    for (int i = 0; i < 10; i++) {
        if (i % 2 == 0) printf("%d\n", i);
    }
}`

func TestSimilarityIgnoresNamesLiteralsAndComments(t *testing.T) {
	t.Parallel()
	if got := Similarity("cpp", sumSource, sumSource); got != 1 {
		t.Fatalf("self similarity = %v", got)
	}
	if got := Similarity("cpp", sumSource, renamedSumSource); got != 1 {
		t.Fatalf("renamed copy similarity = %v", got)
	}
	if got := Similarity("cpp", sumSource, unrelatedSource); got >= 1 {
		t.Fatalf("unrelated source scored %v", got)
	}
	if got := Similarity("cpp", "", ""); got != 0 {
		t.Fatalf("empty sources scored %v", got)
	}
	if got := Similarity("cpp", "", sumSource); got != 0 {
		t.Fatalf("empty against non-empty scored %v", got)
	}
}

func TestSimilarityPythonDocstrings(t *testing.T) {
	t.Parallel()
	a := "def f(n):\n    \"\"\"doc\"\"\"\n    return n + 1  # add\n"
	b := "def g(k):\n    return k + 2\n"
	if got := Similarity("python", a, b); got != 1 {
		t.Fatalf("python similarity = %v", got)
	}
}

func TestBestMatch(t *testing.T) {
	t.Parallel()
	refs := []model.ReferenceSource{
		{Kind: model.ReferenceSubmission, ID: 1, SourceCode: unrelatedSource},
		{Kind: model.ReferenceExternal, ID: 2, SourceCode: renamedSumSource},
	}
	match, ok := BestMatch("cpp", sumSource, refs, 0.8)
	if !ok {
		t.Fatalf("expected a match")
	}
	if match.Kind != model.ReferenceExternal || match.ID != 2 || match.Score != 1 {
		t.Fatalf("unexpected match: %+v", match)
	}

	if _, ok := BestMatch("cpp", sumSource, refs[:1], 0.99); ok {
		t.Fatalf("unrelated source must stay under the threshold")
	}
	if _, ok := BestMatch("cpp", sumSource, refs[1:], 1); ok {
		t.Fatalf("score must exceed the threshold, not equal it")
	}
	if _, ok := BestMatch("cpp", sumSource, nil, 0.8); ok {
		t.Fatalf("no references means no match")
	}
}
