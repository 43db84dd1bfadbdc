package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Hint lists the accepted task types, returned alongside unknown-task
// errors.
const Hint = "valid types: evm, boq, chat"

// UnknownTaskError reports a task type outside evm/boq/chat.
type UnknownTaskError struct {
	Type string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task type %q", e.Type)
}

// Run dispatches a (type, data) pair to one of the three skills and
// returns the skill name with its raw result. Numeric fields default
// to zero when absent or non-numeric; extraction never fails.
//
// The evm skill guards on PV>0 / AC>0, unlike the standalone
// calculator's PV!=0 / AC!=0 checks. The difference is part of the
// API contract and must not be unified.
func Run(taskType string, data map[string]any) (string, map[string]any, error) {
	switch strings.ToLower(strings.TrimSpace(taskType)) {
	case "evm":
		return "evm", runEVM(data), nil
	case "boq":
		return "boq", runBoQ(data), nil
	case "chat":
		return "chat", runChat(data), nil
	default:
		return "", nil, &UnknownTaskError{Type: taskType}
	}
}

func runEVM(data map[string]any) map[string]any {
	pv := num(data, "PV")
	ev := num(data, "EV")
	ac := num(data, "AC")

	result := map[string]any{}
	if pv > 0 {
		result["SPI"] = ev / pv
	}
	var cpi float64
	cpiDefined := false
	if ac > 0 {
		cpi = ev / ac
		cpiDefined = true
		result["CPI"] = cpi
	}
	if bac, ok := lookupNum(data, "BAC"); ok && cpiDefined && cpi > 0 {
		eac := bac / cpi
		result["EAC"] = eac
		result["ETC"] = eac - ac
	}
	return result
}

func runBoQ(data map[string]any) map[string]any {
	items, _ := data["items"].([]any)
	total := 0.0
	for _, raw := range items {
		line, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		total += num(line, "qty") * num(line, "unit_price")
	}
	// Unrounded total, unlike the /api/boq/total endpoint.
	return map[string]any{"total": total, "items": len(items)}
}

// runChat is a stub: it reports the message count and never invokes
// the real reply engine.
func runChat(data map[string]any) map[string]any {
	messages, _ := data["messages"].([]any)
	return map[string]any{
		"reply": fmt.Sprintf("chat skill received %d message(s)", len(messages)),
	}
}

// num extracts a numeric field, defaulting to zero.
func num(data map[string]any, key string) float64 {
	v, _ := lookupNum(data, key)
	return v
}

// lookupNum reports whether key holds a usable numeric value.
func lookupNum(data map[string]any, key string) (float64, bool) {
	raw, ok := data[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
