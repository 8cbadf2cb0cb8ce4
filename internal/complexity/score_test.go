package complexity

import (
	"math"
	"strings"
	"testing"
)

func TestScoreDeterministic(t *testing.T) {
	content := "func main() {\n\tfmt.Println(\"hello\")\n}\n"
	a := Score(content)
	b := Score(content)
	if a != b {
		t.Fatalf("Score is not deterministic: %+v vs %+v", a, b)
	}
}

func TestScoreBasics(t *testing.T) {
	cases := []struct {
		name      string
		content   string
		wantBytes float64
		wantLines float64
	}{
		{"empty", "", 0, 1},
		{"single_line", "hello", 5, 1},
		{"two_lines", "a\nb", 3, 2},
		{"trailing_newline", "a\n", 2, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Score(tc.content)
			if m.ByteLength != tc.wantBytes {
				t.Errorf("byteLength = %v, want %v", m.ByteLength, tc.wantBytes)
			}
			if m.LineCount != tc.wantLines {
				t.Errorf("lineCount = %v, want %v", m.LineCount, tc.wantLines)
			}
		})
	}
}

func TestShannonEntropy(t *testing.T) {
	// Uniform two-symbol content has exactly 1 bit of entropy.
	m := Score("abababab")
	if m.ShannonEntropy != 1.0 {
		t.Errorf("entropy of ab-repeat = %v, want 1.0", m.ShannonEntropy)
	}

	// Single repeated symbol has zero entropy.
	m = Score("aaaa")
	if m.ShannonEntropy != 0 {
		t.Errorf("entropy of aaaa = %v, want 0", m.ShannonEntropy)
	}
}

func TestStructuralComplexityComponents(t *testing.T) {
	// Two distinct tokens ("function", "f"), three structure matches
	// ("function" keyword plus the paren pair), no indentation.
	m := Score("function f()")
	want := round2(0.1*2 + 0.5*3)
	if m.StructuralComplexity != want {
		t.Errorf("structural = %v, want %v", m.StructuralComplexity, want)
	}

	// Indentation proxy: deepest leading-whitespace run counts.
	m = Score("a\n    b\n  c")
	if got := m.StructuralComplexity; got != round2(0.1*3+0.2*4) {
		t.Errorf("structural with indent = %v, want %v", got, round2(0.1*3+0.2*4))
	}
}

func TestCompositeScoreFormula(t *testing.T) {
	content := strings.Repeat("x", 100) + "\n{}"
	m := Score(content)

	raw := 0.001*float64(len(content)) + 0.1*2 + 0.5*shannonEntropy(content) + structuralComplexity(content)
	if math.Abs(m.CompositeScore-round2(raw)) > 1e-9 {
		t.Errorf("composite = %v, want %v", m.CompositeScore, round2(raw))
	}
}

func TestMetricsRounding(t *testing.T) {
	m := Score("the quick brown fox jumps over the lazy dog")
	for name, v := range map[string]float64{
		"entropy":    m.ShannonEntropy,
		"structural": m.StructuralComplexity,
		"composite":  m.CompositeScore,
	} {
		if round2(v) != v {
			t.Errorf("%s = %v not rounded to 2 decimals", name, v)
		}
	}
}
