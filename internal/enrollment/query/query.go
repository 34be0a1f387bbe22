// Package query implements the deterministic filter/aggregate step executed
// once a conversation state is complete and confirmed.
package query

import (
	"fmt"
	"sort"
	"strings"

	"enrollment-chat/internal/enrollment/dataset"
	"enrollment-chat/internal/enrollment/schema"
)

// Params are the confirmed filter parameters. Terms must be non-empty and
// Level/Mode concrete domain members; Metric/Variable are optional.
type Params struct {
	Terms    []string
	Level    string
	Mode     string
	Metric   string
	Variable string
}

// Result is a single matched row.
type Result struct {
	Term         string `json:"term"`
	StudentCount int    `json:"studentCount"`
	Description  string `json:"description"`
	Metric       string `json:"metric,omitempty"`
	Variable     string `json:"variable,omitempty"`
}

// Response is the complete query outcome. An empty Results slice is a valid,
// non-error outcome.
type Response struct {
	Results          []Result `json:"results"`
	QuerySummary     string   `json:"querySummary"`
	TotalAcrossTerms *int     `json:"totalAcrossTerms,omitempty"`
}

// Execute filters the snapshot and aggregates the matches. The filter is
// conjunctive: term membership, exact level and mode, then one of three
// breakdown shapes: exact metric+variable, all variables of a metric, or,
// with neither given, the canonical total rows (Variable "All" under Metric
// "Campus", the dataset's convention for overall headcount).
func Execute(d *schema.ValueDomain, p Params, ds *dataset.Dataset) Response {
	termSet := make(map[string]struct{}, len(p.Terms))
	for _, t := range p.Terms {
		termSet[t] = struct{}{}
	}

	var results []Result
	for _, row := range ds.Rows() {
		if _, ok := termSet[row.Term]; !ok {
			continue
		}
		if row.Level != p.Level || row.Mode != p.Mode {
			continue
		}

		switch {
		case p.Metric != "" && p.Variable != "":
			if row.Metric != p.Metric || row.Variable != p.Variable {
				continue
			}
		case p.Metric != "":
			if row.Metric != p.Metric {
				continue
			}
		default:
			if row.Variable != "All" || row.Metric != string(schema.MetricCampus) {
				continue
			}
		}

		r := Result{
			Term:         row.Term,
			StudentCount: row.Count,
			Description:  row.Description,
		}
		// Breakdown columns are echoed only when the caller asked for one.
		if p.Metric != "" {
			r.Metric = row.Metric
		}
		if p.Metric != "" || p.Variable != "" {
			r.Variable = row.Variable
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Term != results[j].Term {
			return d.TermLess(results[i].Term, results[j].Term)
		}
		return results[i].Variable < results[j].Variable
	})

	var total *int
	if len(p.Terms) > 1 && len(results) > 0 {
		sum := 0
		for _, r := range results {
			sum += r.StudentCount
		}
		total = &sum
	}

	return Response{
		Results:          results,
		QuerySummary:     buildSummary(p),
		TotalAcrossTerms: total,
	}
}

func buildSummary(p Params) string {
	parts := []string{
		fmt.Sprintf("Terms: %s", strings.Join(p.Terms, ", ")),
		fmt.Sprintf("Level: %s", p.Level),
		fmt.Sprintf("Mode: %s", p.Mode),
	}
	if p.Metric != "" {
		parts = append(parts, fmt.Sprintf("Metric: %s", p.Metric))
	}
	if p.Variable != "" {
		parts = append(parts, fmt.Sprintf("Variable: %s", p.Variable))
	}
	return strings.Join(parts, " | ")
}
