package orchestration

import (
	"slices"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-duplex/core/llms"
)

const defaultHistoryLimit = 16

// conversationHistory keeps the last limit messages of the conversation.
// Generations only ever see snapshots of it.
type conversationHistory struct {
	mu sync.RWMutex

	limit    int
	messages []llms.Message
}

func newConversationHistory(limit int) *conversationHistory {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &conversationHistory{limit: limit}
}

func (h *conversationHistory) Append(messages ...llms.Message) {
	if len(messages) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, messages...)
	if overflow := len(h.messages) - h.limit; overflow > 0 {
		h.messages = slices.Clone(h.messages[overflow:])
	}
}

// Snapshot returns a deep copy that is safe to hand to a concurrent
// generation.
func (h *conversationHistory) Snapshot() []llms.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.messages) == 0 {
		return nil
	}

	var snapshot []llms.Message
	if err := copier.CopyWithOption(&snapshot, &h.messages, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("failed to deep copy conversation history", "error", err)
		return slices.Clone(h.messages)
	}
	return snapshot
}

func (h *conversationHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

func (h *conversationHistory) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}
