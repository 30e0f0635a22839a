package orchestration

import (
	"strings"
	"testing"

	"github.com/koscakluka/ema-duplex/core/forms"
)

func TestFormContextListsFilledAndMissingFields(t *testing.T) {
	testCases := []struct {
		name     string
		form     forms.Form
		expected string
	}{
		{
			name:     "empty form",
			form:     forms.Form{},
			expected: "\n\nCurrent form state:\nFilled: none\nStill needed: fullName, email, phone, age, physical, mental",
		},
		{
			name:     "partially filled",
			form:     forms.Form{FullName: "John", Age: "70"},
			expected: "\n\nCurrent form state:\nFilled: fullName: John, age: 70\nStill needed: email, phone, physical, mental",
		},
		{
			name: "complete",
			form: forms.Form{FullName: "John", Email: "j@x.org", Phone: "1", Age: "70", Physical: "ok", Mental: "good"},
			expected: "\n\nCurrent form state:\nFilled: fullName: John, email: j@x.org, phone: 1, age: 70, physical: ok, mental: good\n" +
				"Still needed: ",
		},
	}

	for _, testCase := range testCases {
		if got := formContext(testCase.form); got != testCase.expected {
			t.Fatalf("%s: expected %q, got %q", testCase.name, testCase.expected, got)
		}
	}
}

func TestBuildSystemPromptAppendsFormContext(t *testing.T) {
	prompt := buildSystemPrompt(forms.Form{FullName: "John"})
	if !strings.HasPrefix(prompt, systemPrompt) {
		t.Fatalf("expected persona prefix")
	}
	if !strings.HasSuffix(prompt, "Filled: fullName: John\nStill needed: email, phone, age, physical, mental") {
		t.Fatalf("expected form context suffix, got %q", prompt[len(systemPrompt):])
	}
}

func TestToolPassPromptQuotesTranscript(t *testing.T) {
	prompt := toolPassPrompt("I am 70")
	if !strings.Contains(prompt, `the user's message: "I am 70".`) {
		t.Fatalf("expected transcript in prompt, got %q", prompt)
	}
}
