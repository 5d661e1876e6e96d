package reasoning

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// actionFinish terminates the loop with a final answer.
const actionFinish = "finish"

// parsedStep is one THINK output: the model's reasoning, the tool it picked
// (or finish) and the decoded arguments.
type parsedStep struct {
	Thought string
	Action  string
	Input   map[string]interface{}
}

var errNoAction = errors.New("no Action line in model output")

// parseStep reads the Thought / Action / Action Input labels out of a model
// completion. Labels are matched case-insensitively with markdown decoration
// stripped, thoughts may span lines, and the action input JSON is recovered
// from code fences when present. A "Final Answer:" label is accepted as a
// finish action for models that slip into the classic format.
func parseStep(text string) (parsedStep, error) {
	var step parsedStep
	var thoughtLines, inputLines []string
	section := ""

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		stripped := strings.TrimLeft(line, "*#>- ")

		switch {
		case labelValue(stripped, "thought") != nil:
			section = "thought"
			if v := *labelValue(stripped, "thought"); v != "" {
				thoughtLines = append(thoughtLines, v)
			}
		case labelValue(stripped, "action input") != nil:
			section = "input"
			if v := *labelValue(stripped, "action input"); v != "" {
				inputLines = append(inputLines, v)
			}
		case labelValue(stripped, "final answer") != nil:
			section = "final"
			step.Action = actionFinish
			if v := *labelValue(stripped, "final answer"); v != "" {
				inputLines = append(inputLines, v)
			}
		case labelValue(stripped, "action") != nil:
			section = "action"
			step.Action = normalizeAction(*labelValue(stripped, "action"))
		default:
			switch section {
			case "thought":
				if line != "" {
					thoughtLines = append(thoughtLines, line)
				}
			case "input", "final":
				inputLines = append(inputLines, raw)
			}
		}
	}

	step.Thought = strings.TrimSpace(strings.Join(thoughtLines, " "))
	if step.Action == "" {
		return parsedStep{}, errNoAction
	}

	rest := strings.TrimSpace(strings.Join(inputLines, "\n"))
	if section == "final" || (step.Action == actionFinish && !strings.Contains(rest, "{")) {
		// A plain-text final answer is fine; wrap it.
		if rest != "" {
			step.Input = map[string]interface{}{"answer": rest}
		}
		return step, nil
	}
	if rest == "" {
		if step.Action == actionFinish {
			return step, nil
		}
		return parsedStep{}, fmt.Errorf("action %q has no Action Input", step.Action)
	}

	block, ok := extractJSONObject(rest)
	if !ok {
		return parsedStep{}, fmt.Errorf("action input is not a JSON object: %q", truncateText(rest, 80))
	}
	input := map[string]interface{}{}
	if err := json.Unmarshal([]byte(block), &input); err != nil {
		return parsedStep{}, fmt.Errorf("action input does not decode: %w", err)
	}
	step.Input = input
	return step, nil
}

// labelValue returns the text after "<label>:" when the line starts with the
// label, nil otherwise. The pointer distinguishes "label with empty value"
// from "not this label".
func labelValue(line, label string) *string {
	if len(line) < len(label)+1 {
		return nil
	}
	if !strings.EqualFold(line[:len(label)], label) {
		return nil
	}
	rest := line[len(label):]
	rest = strings.TrimLeft(rest, "*") // closing markdown bold before the colon
	if !strings.HasPrefix(rest, ":") {
		return nil
	}
	v := strings.TrimSpace(strings.TrimPrefix(rest, ":"))
	v = strings.Trim(v, "*")
	v = strings.TrimSpace(v)
	return &v
}

// normalizeAction lowercases the tool name and strips quoting the model may
// wrap it in.
func normalizeAction(s string) string {
	s = strings.Trim(s, "`\"' .")
	return strings.ToLower(strings.TrimSpace(s))
}

// extractJSONObject strips optional markdown code fences and returns the
// outermost JSON object in s.
func extractJSONObject(s string) (string, bool) {
	for _, fence := range []string{"```json", "```JSON", "```"} {
		if idx := strings.Index(s, fence); idx != -1 {
			s = s[idx+len(fence):]
			if end := strings.Index(s, "```"); end != -1 {
				s = s[:end]
			}
			break
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
