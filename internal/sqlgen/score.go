package sqlgen

import (
	"regexp"
	"strings"
)

// Weights of the three heuristics in Score.Total.
const (
	WeightSyntax      = 0.4
	WeightSecurity    = 0.3
	WeightPerformance = 0.3
)

// Score is the heuristic quality of a SQL candidate. These are lint-style
// string checks, not a parse; a high score is no proof of correctness.
type Score struct {
	Syntax      float64 `json:"syntax"`
	Security    float64 `json:"security"`
	Performance float64 `json:"performance"`
	Total       float64 `json:"total"`
}

// Assessment is a score plus the problems that lowered it.
type Assessment struct {
	Score
	Issues []string
}

type rule struct {
	match   func(sql, stripped string) bool
	penalty float64
	issue   string
}

// onStripped matches re against the statement with string literals blanked.
func onStripped(re *regexp.Regexp) func(string, string) bool {
	return func(_, stripped string) bool { return re.MatchString(stripped) }
}

var (
	reSelect = regexp.MustCompile(`(?i)\bSELECT\b`)
	reFrom   = regexp.MustCompile(`(?i)\bFROM\b`)
	reWhere  = regexp.MustCompile(`(?i)\bWHERE\b`)
	reStar   = regexp.MustCompile(`(?i)\bSELECT\s+(DISTINCT\s+)?\*`)
	reString = regexp.MustCompile(`'(?:[^']|'')*'`)
)

var reTautology = regexp.MustCompile(`(?i)\bOR\s+(['"]?)(\w+)(['"]?)\s*=\s*(['"]?)(\w+)(['"]?)`)

var securityRules = []rule{
	{match: onStripped(regexp.MustCompile(`(?i)\b(DROP|DELETE|UPDATE|INSERT|ALTER|CREATE|TRUNCATE|GRANT|REVOKE)\b`)), penalty: 0.4, issue: "contains a data-modifying or DDL keyword"},
	{match: onStripped(regexp.MustCompile(`--|/\*`)), penalty: 0.3, issue: "contains a SQL comment"},
	{match: onStripped(regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`)), penalty: 0.2, issue: "contains UNION SELECT"},
	{match: tautology, penalty: 0.3, issue: "contains an always-true OR condition"},
	{match: onStripped(regexp.MustCompile(`;\s*\S`)), penalty: 0.3, issue: "contains stacked statements"},
	{match: onStripped(regexp.MustCompile(`(?i)\b(SLEEP|BENCHMARK|PG_SLEEP|WAITFOR)\s*\(`)), penalty: 0.3, issue: "contains a time-based function"},
}

// tautology finds "OR x = x" with identical operands quoted the same way.
// A column compared with a literal of the same text ("OR type = 'type'") is
// an ordinary filter.
func tautology(sql, _ string) bool {
	for _, m := range reTautology.FindAllStringSubmatch(sql, -1) {
		left, right := m[1]+m[3], m[4]+m[6]
		if m[1] != m[3] || m[4] != m[6] || left != right {
			continue
		}
		if strings.EqualFold(m[2], m[5]) {
			return true
		}
	}
	return false
}

// Evaluate scores sql on syntax, security and performance.
func Evaluate(sql string) Assessment {
	var a Assessment
	stripped := reString.ReplaceAllString(sql, "''")

	a.Syntax = 1.0
	if !reSelect.MatchString(stripped) {
		a.Syntax -= 0.3
		a.Issues = append(a.Issues, "missing SELECT")
	}
	if !reFrom.MatchString(stripped) {
		a.Syntax -= 0.3
		a.Issues = append(a.Issues, "missing FROM")
	}
	if !balancedParens(stripped) {
		a.Syntax -= 0.2
		a.Issues = append(a.Issues, "unbalanced parentheses")
	}
	if strings.Count(sql, "'")%2 != 0 {
		a.Syntax -= 0.2
		a.Issues = append(a.Issues, "unbalanced single quotes")
	}

	a.Security = 1.0
	for _, r := range securityRules {
		if r.match(sql, stripped) {
			a.Security -= r.penalty
			a.Issues = append(a.Issues, r.issue)
		}
	}

	a.Performance = 1.0
	if reStar.MatchString(stripped) {
		a.Performance -= 0.2
		a.Issues = append(a.Issues, "uses SELECT *")
	}
	if !reWhere.MatchString(stripped) {
		a.Performance -= 0.3
		a.Issues = append(a.Issues, "has no WHERE clause")
	}

	a.Syntax = clamp(a.Syntax)
	a.Security = clamp(a.Security)
	a.Performance = clamp(a.Performance)
	a.Total = WeightSyntax*a.Syntax + WeightSecurity*a.Security + WeightPerformance*a.Performance
	return a
}

// SecurityOnly re-runs the security heuristic.
func SecurityOnly(sql string) float64 {
	return Evaluate(sql).Security
}

func balancedParens(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
