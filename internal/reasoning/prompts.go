package reasoning

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/insurelens/insurelens-ai/internal/models"
	"github.com/insurelens/insurelens-ai/internal/tools"
)

// ─── System prompt ──────────────────────────────────────────────────────────

const reactSystemPrompt = `You are InsureLens AI, an insurance policy assistant. You answer questions about health insurance products, calculate premiums, and compare policies using the tools below.

RULES:
1. Premium figures come only from the premium_calculator or policy_comparator tools. Never estimate a premium yourself.
2. One action per response. Decide the single next step, take it, and wait for the observation.
3. Action must be exactly one tool name from the list below, or "finish".
4. Action Input must be a single JSON object matching the tool's arguments.
5. When you have enough information, answer with:
   Action: finish
   Action Input: {"answer": "<complete answer for the user>"}
6. Quote policy documents rather than inventing terms. If a search returns nothing relevant, say so in the answer.

AVAILABLE TOOLS:
{{.Tools}}

OUTPUT FORMAT (exactly three lines, nothing else):
Thought: <what you know and what to do next>
Action: <tool name or finish>
Action Input: <JSON object>`

// renderSystemPrompt fills the tool catalog into the system prompt.
func renderSystemPrompt(defs []tools.Definition) string {
	return strings.ReplaceAll(reactSystemPrompt, "{{.Tools}}", toolCatalog(defs))
}

// toolCatalog renders one line per tool: name, description, and the argument
// list derived from its input schema.
func toolCatalog(defs []tools.Definition) string {
	if len(defs) == 0 {
		return "(no tools registered)"
	}
	var sb strings.Builder
	for i, def := range defs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("- %s: %s", def.Name, def.Description))
		if args := schemaArgs(def.InputSchema); args != "" {
			sb.WriteString("\n  Arguments: " + args)
		}
	}
	return sb.String()
}

// schemaArgs summarises a JSON schema's properties as
// "name (type, required), name (type)".
func schemaArgs(schema map[string]interface{}) string {
	props, ok := schema["properties"].(map[string]interface{})
	if !ok || len(props) == 0 {
		return ""
	}
	required := map[string]bool{}
	if reqs, ok := schema["required"].([]string); ok {
		for _, r := range reqs {
			required[r] = true
		}
	} else if reqs, ok := schema["required"].([]interface{}); ok {
		for _, r := range reqs {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		typ := "any"
		if prop, ok := props[name].(map[string]interface{}); ok {
			if t, ok := prop["type"].(string); ok {
				typ = t
			}
		}
		if required[name] {
			parts = append(parts, fmt.Sprintf("%s (%s, required)", name, typ))
		} else {
			parts = append(parts, fmt.Sprintf("%s (%s)", name, typ))
		}
	}
	return strings.Join(parts, ", ")
}

// ─── User prompt ────────────────────────────────────────────────────────────

// renderUserPrompt assembles the question, optional conversation context and
// the trace so far into the next THINK request.
func renderUserPrompt(query, contextBlock string, steps []models.ReasoningStep) string {
	var sb strings.Builder
	if contextBlock != "" {
		sb.WriteString(contextBlock)
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(query)

	if len(steps) > 0 {
		sb.WriteString("\n\nSteps so far:")
		for _, s := range steps {
			sb.WriteString("\nThought: " + s.Thought)
			sb.WriteString("\nAction: " + s.Action)
			if s.ActionInput != "" {
				sb.WriteString("\nAction Input: " + s.ActionInput)
			}
			sb.WriteString("\nObservation: " + s.Observation)
		}
	}

	sb.WriteString("\n\nContinue with the next Thought, Action and Action Input.")
	return sb.String()
}

// renderHint turns the classifier's prediction into a soft steer for the
// first THINK. The model may still pick a different tool; the hint shapes
// the prompt, not the dispatch.
func renderHint(p Prediction) string {
	tool := suggestedTool(p.Intent)
	if tool == "" {
		return ""
	}
	return fmt.Sprintf("Hint: queries like this one usually start with the %s tool (classifier confidence %.2f).", tool, p.Confidence)
}

func suggestedTool(intent models.Intent) string {
	switch intent {
	case models.IntentPremiumCalculation:
		return tools.NamePremiumCalculator
	case models.IntentPolicyComparison:
		return tools.NamePolicyComparator
	case models.IntentDocumentRetrieval:
		return tools.NameDocumentRetriever
	case models.IntentGeneralInquiry:
		return tools.NameListProducts
	default:
		return ""
	}
}

// compactInput renders tool arguments for the trace. Marshal failures fall
// back to the fmt rendering so a step is never lost to a logging problem.
func compactInput(input map[string]interface{}) string {
	if len(input) == 0 {
		return ""
	}
	b, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return string(b)
}
