package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

type Event interface {
	Kind() Kind
	ID() string
	Timestamp() time.Time

	sealed()
}

type Base struct {
	id        string
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{id: uuid.NewString(), kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) ID() string {
	return b.id
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

func (Base) sealed() {}

// Kinds lists every event kind a session can emit.
func Kinds() []Kind {
	return []Kind{
		KindInterimTranscript,
		KindUserTurn,
		KindStartOfTurn,
		KindAITurnStart,
		KindTextDelta,
		KindAITurn,
		KindFieldUpdated,
		KindOnboardingComplete,
		KindFormState,
		KindFormReset,
		KindServicesReady,
		KindError,
	}
}

// Marshal encodes an event as a flat JSON object with its kind under "type".
func Marshal(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Kind(), err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Kind(), err)
	}

	kind, err := json.Marshal(e.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = kind

	return json.Marshal(fields)
}
