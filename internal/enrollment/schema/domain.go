// Package schema holds the fixed value domain and the structural types shared
// by the merge engine, dialogue state machine and query engine.
package schema

import (
	"sort"
	"strconv"
	"strings"
)

// Level of enrollment.
type Level string

const (
	LevelUndergraduate Level = "Undergraduate"
	LevelGraduate      Level = "Graduate"
	LevelAll           Level = "All"
)

// Mode of delivery.
type Mode string

const (
	ModeCampus  Mode = "Campus Immersion"
	ModeDigital Mode = "Digital Immersion"
	ModeAll     Mode = "All"
)

// Metric is a breakdown dimension over the dataset.
type Metric string

const (
	MetricResidentStatus Metric = "Resident Status"
	MetricDegreeLevel    Metric = "Degree Level"
	MetricSTEM           Metric = "STEM discipline"
	MetricCollege        Metric = "College"
	MetricCampus         Metric = "Campus"
)

const (
	firstTermYear = 2012
	lastTermYear  = 2025
)

// metricVariables is the fixed set of valid variables per metric.
var metricVariables = map[Metric][]string{
	MetricSTEM:           {"STEM", "Non-STEM"},
	MetricResidentStatus: {"Resident", "Non-Resident"},
	MetricDegreeLevel:    {"Associate", "Bachelor", "Master", "Doctor", "Law", "Non-Degree"},
	MetricCollege: {
		"Business", "Engineering", "Law", "Nursing and Health Innovation",
		"Liberal Arts and Sciences", "Design and the Arts", "Journalism",
		"Graduate College", "Health Solutions", "Global Futures",
		"Global Management", "New College", "Teachers College",
		"Public Service and Community Solutions", "Integrative Sciences and Arts",
		"University College", "Other",
	},
	MetricCampus: {"Tempe", "Downtown Phoenix", "Polytechnic", "West Valley", "Other Locations", "All"},
}

// ValueDomain is the static, immutable enumeration set the untrusted
// extraction output is validated against.
type ValueDomain struct {
	terms    []string
	termRank map[string]int
}

// NewValueDomain builds the domain with the built-in term range Fall 2012
// through Fall 2025, plus any configured extra terms (e.g. "Fall 2026" once
// new data lands). Extra terms that do not parse as "<Season> <year>" are
// ignored.
func NewValueDomain(extraTerms ...string) *ValueDomain {
	terms := make([]string, 0, lastTermYear-firstTermYear+1+len(extraTerms))
	for year := firstTermYear; year <= lastTermYear; year++ {
		terms = append(terms, "Fall "+strconv.Itoa(year))
	}
	for _, t := range extraTerms {
		if _, ok := termYear(t); ok {
			terms = append(terms, t)
		}
	}

	sort.SliceStable(terms, func(i, j int) bool { return termLess(terms[i], terms[j]) })

	rank := make(map[string]int, len(terms))
	for i, t := range terms {
		if _, seen := rank[t]; !seen {
			rank[t] = i
		}
	}

	return &ValueDomain{terms: terms, termRank: rank}
}

// Terms returns the ordered term set.
func (d *ValueDomain) Terms() []string {
	out := make([]string, len(d.terms))
	copy(out, d.terms)
	return out
}

// ValidTerm reports membership in the closed term set.
func (d *ValueDomain) ValidTerm(term string) bool {
	_, ok := d.termRank[term]
	return ok
}

// ValidLevel reports membership in the level enumeration.
func (d *ValueDomain) ValidLevel(level string) bool {
	switch Level(level) {
	case LevelUndergraduate, LevelGraduate, LevelAll:
		return true
	}
	return false
}

// ValidMode reports membership in the mode enumeration.
func (d *ValueDomain) ValidMode(mode string) bool {
	switch Mode(mode) {
	case ModeCampus, ModeDigital, ModeAll:
		return true
	}
	return false
}

// ValidMetric reports membership in the metric enumeration.
func (d *ValueDomain) ValidMetric(metric string) bool {
	_, ok := metricVariables[Metric(metric)]
	return ok
}

// ValidVariable reports whether variable is valid for metric. With an empty
// metric it checks the union of all variable sets.
func (d *ValueDomain) ValidVariable(metric, variable string) bool {
	if metric != "" {
		for _, v := range metricVariables[Metric(metric)] {
			if v == variable {
				return true
			}
		}
		return false
	}
	for _, vars := range metricVariables {
		for _, v := range vars {
			if v == variable {
				return true
			}
		}
	}
	return false
}

// Variables returns the valid variable set for a metric.
func (d *ValueDomain) Variables(metric string) []string {
	vars := metricVariables[Metric(metric)]
	out := make([]string, len(vars))
	copy(out, vars)
	return out
}

// TermLess orders two terms chronologically. Terms outside the domain sort
// after all domain terms, by parsed year where possible.
func (d *ValueDomain) TermLess(a, b string) bool {
	ra, aOK := d.termRank[a]
	rb, bOK := d.termRank[b]
	switch {
	case aOK && bOK:
		return ra < rb
	case aOK:
		return true
	case bOK:
		return false
	default:
		return termLess(a, b)
	}
}

// SortTerms sorts terms in place into chronological order.
func (d *ValueDomain) SortTerms(terms []string) {
	sort.SliceStable(terms, func(i, j int) bool { return d.TermLess(terms[i], terms[j]) })
}

// termYear parses the trailing year from a term string. Two-digit years are
// interpreted as 2000-based, so "Fall 24" and "Fall 2024" order identically.
func termYear(term string) (int, bool) {
	fields := strings.Fields(term)
	if len(fields) < 2 {
		return 0, false
	}
	year, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, false
	}
	if year < 100 {
		year += 2000
	}
	return year, true
}

func termLess(a, b string) bool {
	ya, aOK := termYear(a)
	yb, bOK := termYear(b)
	if aOK && bOK && ya != yb {
		return ya < yb
	}
	return a < b
}
