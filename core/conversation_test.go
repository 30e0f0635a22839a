package orchestration

import (
	"fmt"
	"testing"

	"github.com/koscakluka/ema-duplex/core/llms"
)

func TestConversationHistoryEvictsOldestBeyondLimit(t *testing.T) {
	history := newConversationHistory(16)
	for i := range 20 {
		history.Append(llms.UserMessage(fmt.Sprintf("message %d", i)))
	}

	snapshot := history.Snapshot()
	if len(snapshot) != 16 {
		t.Fatalf("expected 16 messages, got %d", len(snapshot))
	}
	if snapshot[0].Content != "message 4" || snapshot[15].Content != "message 19" {
		t.Fatalf("unexpected window %q .. %q", snapshot[0].Content, snapshot[15].Content)
	}
}

func TestConversationHistorySnapshotIsIndependent(t *testing.T) {
	history := newConversationHistory(4)
	history.Append(llms.ToolCallMessages("", []llms.ToolCall{{ID: "call-1", Name: "fill_field", Response: "Done."}})...)

	snapshot := history.Snapshot()
	snapshot[0].ToolCalls[0].Name = "changed"
	snapshot[1].Content = "changed"

	again := history.Snapshot()
	if again[0].ToolCalls[0].Name != "fill_field" {
		t.Fatalf("expected tool call to be deep copied, got %q", again[0].ToolCalls[0].Name)
	}
	if again[1].Content != "Done." {
		t.Fatalf("expected tool response to be untouched, got %q", again[1].Content)
	}
}

func TestConversationHistoryDefaultsLimit(t *testing.T) {
	history := newConversationHistory(0)
	for range defaultHistoryLimit + 1 {
		history.Append(llms.AssistantMessage("hi"))
	}
	if history.Len() != defaultHistoryLimit {
		t.Fatalf("expected default limit %d, got %d", defaultHistoryLimit, history.Len())
	}

	history.Reset()
	if history.Len() != 0 || history.Snapshot() != nil {
		t.Fatalf("expected empty history after reset")
	}
}
