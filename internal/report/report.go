// Package report folds a run's result rows into per-quantity summaries:
// mean and standard deviation of each metric across repeats.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/pqbench/pqbench/internal/bstats"
	"github.com/pqbench/pqbench/internal/result"
)

// MetricSummary is one metric's spread across a run's repeats. Defined is
// false when no ok row carried the metric.
type MetricSummary struct {
	Name    string  `json:"name"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Defined bool    `json:"defined"`
}

// QuantitySummary aggregates all rows of one quantity.
type QuantitySummary struct {
	Quantity string          `json:"quantity"`
	Family   string          `json:"family"`
	Rows     int             `json:"rows"`
	OKRows   int             `json:"ok_rows"`
	Metrics  []MetricSummary `json:"metrics"`
}

var families = []string{
	result.FamilyTLSHandshake,
	result.FamilyTLSThroughput,
	result.FamilySigWindow,
	result.FamilySigSpeed,
}

// Generate reads every family CSV in runDir and writes a summary report.
func Generate(runDir, format string, w io.Writer) error {
	var summaries []QuantitySummary
	for _, family := range families {
		rows, err := result.ReadRows(runDir, family)
		if err != nil {
			return err
		}
		summaries = append(summaries, aggregate(family, rows)...)
	}
	if len(summaries) == 0 {
		return fmt.Errorf("no results found in %s", runDir)
	}

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	default:
		return writeTable(summaries, w)
	}
}

func aggregate(family string, rows []*result.Row) []QuantitySummary {
	byQuantity := map[string][]*result.Row{}
	for _, r := range rows {
		byQuantity[r.Quantity] = append(byQuantity[r.Quantity], r)
	}

	var names []string
	for name := range byQuantity {
		names = append(names, name)
	}
	sort.Strings(names)

	var summaries []QuantitySummary
	for _, name := range names {
		qRows := byQuantity[name]
		s := QuantitySummary{Quantity: name, Family: family, Rows: len(qRows)}
		for _, r := range qRows {
			if r.OK {
				s.OKRows++
			}
		}
		for _, col := range result.MetricColumns(family) {
			var vals []float64
			for _, r := range qRows {
				if !r.OK {
					continue
				}
				if m := r.Metric(col); m.Defined {
					vals = append(vals, m.Value)
				}
			}
			ms := MetricSummary{Name: col}
			if len(vals) > 0 {
				ms.Mean, ms.Std = bstats.MeanStd(vals)
				ms.Defined = !math.IsNaN(ms.Mean)
			}
			s.Metrics = append(s.Metrics, ms)
		}
		summaries = append(summaries, s)
	}
	return summaries
}

// fnum formats a metric figure, or "n/a" when no value exists. Failed
// repeats must stay visibly distinct from measured zeros.
func fnum(v float64, defined bool) string {
	if !defined {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

func writeTable(summaries []QuantitySummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUANTITY\tFAMILY\tROWS\tOK\tMETRICS (mean±std)")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			s.Quantity, s.Family, s.Rows, s.OKRows, metricCells(s.Metrics, " "))
	}
	return tw.Flush()
}

func writeMarkdown(summaries []QuantitySummary, w io.Writer) error {
	fmt.Fprintln(w, "| Quantity | Family | Rows | OK | Metrics (mean±std) |")
	fmt.Fprintln(w, "|---|---|---:|---:|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %s | %d | %d | %s |\n",
			s.Quantity, s.Family, s.Rows, s.OKRows, metricCells(s.Metrics, ", "))
	}
	return nil
}

func metricCells(metrics []MetricSummary, sep string) string {
	var parts []string
	for _, m := range metrics {
		if !m.Defined {
			parts = append(parts, m.Name+"=n/a")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s±%s", m.Name, fnum(m.Mean, true), fnum(m.Std, true)))
	}
	return strings.Join(parts, sep)
}

func writeJSON(summaries []QuantitySummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
