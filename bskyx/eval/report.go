package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WriteResults saves the detailed per-model results as indented JSON.
func WriteResults(path string, bench *Benchmark) error {
	raw, err := json.MarshalIndent(bench, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return writeFile(path, raw)
}

// WriteReport saves the Markdown report.
func WriteReport(path string, bench *Benchmark) error {
	return writeFile(path, []byte(Markdown(bench)))
}

// Markdown renders the summary table followed by per-case scores of each model.
func Markdown(bench *Benchmark) string {
	var b strings.Builder
	b.WriteString("# Benchmark Results\n\n")
	b.WriteString("| Model | Factuality | Utility | Avg Steps | Exhausted |\n")
	b.WriteString("|-------|------------|---------|-----------|-----------|\n")
	for _, model := range bench.Models {
		res, ok := bench.Results[model]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "| %s | %.2f | %.2f | %.2f | %d |\n", model, res.AvgFactuality, res.AvgUtility, res.AvgSteps, res.Exhausted)
	}

	for _, model := range bench.Models {
		res, ok := bench.Results[model]
		if !ok || len(res.Details) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", model)
		b.WriteString("| Case | Factuality | Utility | Steps | Reasoning |\n")
		b.WriteString("|------|------------|---------|-------|-----------|\n")
		for _, d := range res.Details {
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %s |\n", d.ID, d.Scores.Factuality, d.Scores.Utility, d.Steps, cell(d.Scores.Reasoning))
		}
	}
	return b.String()
}

// WriteSummary prints the fixed-width console table.
func WriteSummary(w io.Writer, bench *Benchmark) {
	fmt.Fprintf(w, "%-15s | %-12s | %-12s | %-10s | %-9s\n", "Model", "Factuality", "Utility", "Avg Steps", "Exhausted")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, model := range bench.Models {
		res, ok := bench.Results[model]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%-15s | %-12.2f | %-12.2f | %-10.2f | %-9d\n", model, res.AvgFactuality, res.AvgUtility, res.AvgSteps, res.Exhausted)
	}
}

// cell keeps free text from breaking a Markdown table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
