// Package agent implements the goal planner and the task dispatcher
// that fans typed payloads out to the evm, boq and chat skills.
package agent

import "strings"

// planRules map goal keywords to a fixed step list. First match wins.
var planRules = []struct {
	keywords []string
	steps    []string
}{
	{
		keywords: []string{"evm", "earned value"},
		steps:    []string{"parse EVM inputs", "compute EVM", "summarize"},
	},
	{
		keywords: []string{"boq", "bill of quantities"},
		steps:    []string{"parse BoQ", "sum totals", "summarize"},
	},
}

var defaultPlan = []string{"analyze goal", "choose skill", "execute", "summarize"}

// Plan maps a free-text goal to an ordered step list by
// case-insensitive keyword containment. There is no error path.
func Plan(goal string) []string {
	lower := strings.ToLower(goal)
	for _, rule := range planRules {
		for _, k := range rule.keywords {
			if strings.Contains(lower, k) {
				return append([]string(nil), rule.steps...)
			}
		}
	}
	return append([]string(nil), defaultPlan...)
}
