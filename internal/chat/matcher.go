// Package chat implements the rule-based reply engine: intent tagging
// over a keyword table plus a small binary arithmetic evaluator.
package chat

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules is the external rule table: keyword sets per intent tag,
// trigger phrases, and the fixed reply strings.
type Rules struct {
	Intents  map[string][]string `yaml:"intents"`
	Triggers struct {
		HowAreYou []string `yaml:"how_are_you"`
		WhoAreYou []string `yaml:"who_are_you"`
	} `yaml:"triggers"`
	Replies struct {
		Empty        string `yaml:"empty"`
		HowAreYou    string `yaml:"how_are_you"`
		WhoAreYou    string `yaml:"who_are_you"`
		Arithmetic   string `yaml:"arithmetic"`
		DivideByZero string `yaml:"divide_by_zero"`
		Fallback     string `yaml:"fallback"`
	} `yaml:"replies"`
}

// intentOrder fixes the tag order in responses when several match.
var intentOrder = []string{"evm", "boq", "smalltalk"}

// exprRegex extracts the leftmost binary arithmetic expression. Both
// multiplication spellings are accepted and collapse to *.
var exprRegex = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*([+\-×x*/])\s*(-?\d+(?:\.\d+)?)`)

// Reply is the matcher output.
type Reply struct {
	Reply   string
	Intents []string
}

// Matcher answers free-text messages against a swappable rule table.
type Matcher struct {
	mu    sync.RWMutex
	rules Rules
}

// NewMatcher builds a matcher over the embedded default rule table.
func NewMatcher() *Matcher {
	rules, err := ParseRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("chat: embedded rules invalid: %v", err))
	}
	return &Matcher{rules: rules}
}

// ParseRules decodes a YAML rule table.
func ParseRules(raw []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse chat rules: %w", err)
	}
	return rules, nil
}

// LoadFile replaces the rule table with the contents of path.
func (m *Matcher) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read chat rules: %w", err)
	}
	rules, err := ParseRules(raw)
	if err != nil {
		return err
	}
	m.SetRules(rules)
	return nil
}

// SetRules swaps the active rule table.
func (m *Matcher) SetRules(rules Rules) {
	m.mu.Lock()
	m.rules = rules
	m.mu.Unlock()
}

// Respond answers a message. Intent tags are computed unconditionally;
// the reply is picked by the first matching rule in a fixed order:
// empty input, status trigger, identity trigger, arithmetic, fallback.
func (m *Matcher) Respond(text string) Reply {
	m.mu.RLock()
	rules := m.rules
	m.mu.RUnlock()

	q := strings.TrimSpace(text)
	lower := strings.ToLower(q)

	intents := []string{}
	for _, tag := range intentOrder {
		if containsAny(lower, rules.Intents[tag]) {
			intents = append(intents, tag)
		}
	}

	switch {
	case q == "":
		return Reply{Reply: rules.Replies.Empty, Intents: intents}
	case containsAny(lower, rules.Triggers.HowAreYou):
		return Reply{Reply: rules.Replies.HowAreYou, Intents: intents}
	case containsAny(lower, rules.Triggers.WhoAreYou):
		return Reply{Reply: rules.Replies.WhoAreYou, Intents: intents}
	}
	if groups := exprRegex.FindStringSubmatch(q); groups != nil {
		return Reply{Reply: evaluate(rules, groups), Intents: intents}
	}
	return Reply{Reply: rules.Replies.Fallback, Intents: intents}
}

// evaluate computes the matched expression and renders it into the
// arithmetic template. Division by zero renders the undefined notice
// through the same template instead of a number.
func evaluate(rules Rules, groups []string) string {
	a, _ := strconv.ParseFloat(groups[1], 64)
	op := groups[2]
	b, _ := strconv.ParseFloat(groups[3], 64)
	if op == "x" || op == "×" {
		op = "*"
	}
	if op == "/" && b == 0 {
		return fmt.Sprintf(rules.Replies.Arithmetic, rules.Replies.DivideByZero)
	}
	var r float64
	switch op {
	case "+":
		r = a + b
	case "-":
		r = a - b
	case "*":
		r = a * b
	case "/":
		r = a / b
	}
	return fmt.Sprintf(rules.Replies.Arithmetic, strconv.FormatFloat(r, 'g', -1, 64))
}

func containsAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
