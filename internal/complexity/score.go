// Package complexity scores the description complexity of arbitrary text
// and keeps a bounded rolling history so drift in output complexity can be
// detected over time.
package complexity

import (
	"math"
	"regexp"
	"strings"
)

// Metrics holds one measurement. All values are rounded to 2 decimals.
type Metrics struct {
	ByteLength           float64 `json:"byte_length"`
	LineCount            float64 `json:"line_count"`
	ShannonEntropy       float64 `json:"shannon_entropy"`
	StructuralComplexity float64 `json:"structural_complexity"`
	CompositeScore       float64 `json:"composite_score"`
}

var (
	wordPattern      = regexp.MustCompile(`[A-Za-z0-9_]+`)
	structurePattern = regexp.MustCompile(`[{}\[\]()]|\bfunction\b|\bclass\b`)
)

// Score computes the deterministic complexity metrics for content.
func Score(content string) Metrics {
	byteLength := float64(len(content))
	lineCount := float64(strings.Count(content, "\n") + 1)
	entropy := shannonEntropy(content)
	structural := structuralComplexity(content)

	composite := 0.001*byteLength + 0.1*lineCount + 0.5*entropy + structural

	return Metrics{
		ByteLength:           round2(byteLength),
		LineCount:            round2(lineCount),
		ShannonEntropy:       round2(entropy),
		StructuralComplexity: round2(structural),
		CompositeScore:       round2(composite),
	}
}

// shannonEntropy is the standard character-frequency entropy in bits.
func shannonEntropy(content string) float64 {
	if content == "" {
		return 0
	}
	freq := make(map[rune]int)
	total := 0
	for _, r := range content {
		freq[r]++
		total++
	}
	entropy := 0.0
	for _, count := range freq {
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// structuralComplexity is a weighted sum of vocabulary size, grouping
// constructs, and the deepest indentation run (a proxy for nesting depth).
func structuralComplexity(content string) float64 {
	distinct := make(map[string]bool)
	for _, tok := range wordPattern.FindAllString(content, -1) {
		distinct[tok] = true
	}

	structures := len(structurePattern.FindAllString(content, -1))

	maxIndent := 0
	for _, line := range strings.Split(content, "\n") {
		indent := 0
		for _, r := range line {
			if r == ' ' || r == '\t' {
				indent++
			} else {
				break
			}
		}
		if indent > maxIndent {
			maxIndent = indent
		}
	}

	return 0.1*float64(len(distinct)) + 0.5*float64(structures) + 0.2*float64(maxIndent)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
