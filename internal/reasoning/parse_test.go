package reasoning

import (
	"errors"
	"strings"
	"testing"
)

func TestParseStep_WellFormed(t *testing.T) {
	text := "Thought: The user wants the waiting period.\n" +
		"Action: document_retriever\n" +
		"Action Input: {\"query\": \"waiting period\", \"top_k\": 3}"

	step, err := parseStep(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Thought != "The user wants the waiting period." {
		t.Errorf("thought = %q", step.Thought)
	}
	if step.Action != "document_retriever" {
		t.Errorf("action = %q", step.Action)
	}
	if step.Input["query"] != "waiting period" {
		t.Errorf("query = %v", step.Input["query"])
	}
	if step.Input["top_k"] != float64(3) {
		t.Errorf("top_k = %v", step.Input["top_k"])
	}
}

func TestParseStep_MarkdownDecorationStripped(t *testing.T) {
	text := "**Thought:** Check the policy wording.\n" +
		"> **Action:** `document_retriever`\n" +
		"- **Action Input:** {\"query\": \"room rent\"}"

	step, err := parseStep(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Thought != "Check the policy wording." {
		t.Errorf("thought = %q", step.Thought)
	}
	if step.Action != "document_retriever" {
		t.Errorf("action = %q", step.Action)
	}
	if step.Input["query"] != "room rent" {
		t.Errorf("query = %v", step.Input["query"])
	}
}

func TestParseStep_FencedJSONInput(t *testing.T) {
	text := "Thought: Ready to price it.\n" +
		"Action: premium_calculator\n" +
		"Action Input:\n" +
		"```json\n" +
		"{\"product\": \"ActivAssure\", \"ages\": [35]}\n" +
		"```"

	step, err := parseStep(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Input["product"] != "ActivAssure" {
		t.Errorf("product = %v", step.Input["product"])
	}
	ages, ok := step.Input["ages"].([]interface{})
	if !ok || len(ages) != 1 || ages[0] != float64(35) {
		t.Errorf("ages = %v", step.Input["ages"])
	}
}

func TestParseStep_FinalAnswerLabelMeansFinish(t *testing.T) {
	text := "Thought: I know it now.\n" +
		"Final Answer: The waiting period is 36 months."

	step, err := parseStep(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Action != actionFinish {
		t.Errorf("action = %q", step.Action)
	}
	if step.Input["answer"] != "The waiting period is 36 months." {
		t.Errorf("answer = %v", step.Input["answer"])
	}
}

func TestParseStep_FinishWithPlainTextInput(t *testing.T) {
	text := "Thought: Wrapping up.\n" +
		"Action: Finish\n" +
		"Action Input: All four products cover maternity after the waiting period."

	step, err := parseStep(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Action != actionFinish {
		t.Errorf("action = %q", step.Action)
	}
	if step.Input["answer"] != "All four products cover maternity after the waiting period." {
		t.Errorf("answer = %v", step.Input["answer"])
	}
}

func TestParseStep_FinishWithoutInput(t *testing.T) {
	step, err := parseStep("Action: finish")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Action != actionFinish {
		t.Errorf("action = %q", step.Action)
	}
	if step.Input != nil {
		t.Errorf("input = %v", step.Input)
	}
}

func TestParseStep_MultilineThought(t *testing.T) {
	text := "Thought: The question has two parts.\n" +
		"First the waiting period, then the room rent cap.\n" +
		"Action: finish\n" +
		"Action Input: {\"answer\": \"ok\"}"

	step, err := parseStep(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "The question has two parts. First the waiting period, then the room rent cap."
	if step.Thought != want {
		t.Errorf("thought = %q", step.Thought)
	}
}

func TestParseStep_NoActionLine(t *testing.T) {
	_, err := parseStep("Let me muse about insurance for a while.")
	if !errors.Is(err, errNoAction) {
		t.Errorf("expected errNoAction, got %v", err)
	}
}

func TestParseStep_ToolWithoutInput(t *testing.T) {
	_, err := parseStep("Thought: hmm\nAction: document_retriever")
	if err == nil || !strings.Contains(err.Error(), "no Action Input") {
		t.Errorf("expected missing input error, got %v", err)
	}
}

func TestParseStep_UndecodableInput(t *testing.T) {
	_, err := parseStep("Action: premium_calculator\nAction Input: {bad: json}")
	if err == nil {
		t.Error("expected decode error")
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncateText("a longer observation", 8); got != "a longer..." {
		t.Errorf("got %q", got)
	}
}
