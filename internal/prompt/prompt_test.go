package prompt

import (
	"strings"
	"testing"
)

func TestQA(t *testing.T) {
	got := QA("Document body here.", "What is the award about?")

	if !strings.Contains(got, "Context:\nDocument body here.") {
		t.Errorf("context not substituted:\n%s", got)
	}
	if !strings.Contains(got, "Question:\nWhat is the award about?") {
		t.Errorf("question not substituted:\n%s", got)
	}
	if strings.Contains(got, "{{") {
		t.Errorf("unresolved placeholder remains:\n%s", got)
	}
}

func TestSelect_WithContext(t *testing.T) {
	got := Select("some retrieved passage", "what does it say?")

	if !strings.Contains(got, "some retrieved passage") {
		t.Errorf("contextual prompt missing context:\n%s", got)
	}
	if !strings.Contains(got, "answer naturally") {
		t.Errorf("expected contextual template, got:\n%s", got)
	}
}

func TestSelect_WithoutContext(t *testing.T) {
	got := Select("", "what is machine learning?")

	if !strings.Contains(got, "based on your knowledge") {
		t.Errorf("expected general template, got:\n%s", got)
	}
	if strings.Contains(got, "Context:") {
		t.Errorf("general prompt must not carry a context section:\n%s", got)
	}
}

func TestRefinement(t *testing.T) {
	history := "user: tell me about awards\nassistant: Which award do you mean?"
	got := Refinement(history, "the excellence one")

	if !strings.Contains(got, history) {
		t.Errorf("history not substituted:\n%s", got)
	}
	if !strings.Contains(got, "User Query:\nthe excellence one") {
		t.Errorf("query not substituted:\n%s", got)
	}
	if strings.Contains(got, "{{") {
		t.Errorf("unresolved placeholder remains:\n%s", got)
	}
}
