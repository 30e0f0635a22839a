package events

const (
	KindAITurnStart Kind = "ai_turn_start"
	KindTextDelta   Kind = "text_delta"
	KindAITurn      Kind = "ai_turn"
)

// ErrorReplyText replaces the reply text of a turn whose generation failed.
const ErrorReplyText = "[Error generating response]"

type AITurnStart struct {
	Base
	TurnOrder int `json:"turnOrder"`
}

func NewAITurnStart(turnOrder int) AITurnStart {
	return AITurnStart{Base: NewBase(KindAITurnStart), TurnOrder: turnOrder}
}

type TextDelta struct {
	Base
	Text      string `json:"text"`
	IsEnd     bool   `json:"isEnd"`
	TurnOrder int    `json:"turnOrder"`
}

func NewTextDelta(text string, turnOrder int) TextDelta {
	return TextDelta{Base: NewBase(KindTextDelta), Text: text, TurnOrder: turnOrder}
}

func NewTextDeltaEnd(turnOrder int) TextDelta {
	return TextDelta{Base: NewBase(KindTextDelta), IsEnd: true, TurnOrder: turnOrder}
}

// AITurn is the full reply for a turn. Error is set, and Text holds
// ErrorReplyText, when the generation failed.
type AITurn struct {
	Base
	TurnOrder int    `json:"turnOrder"`
	Text      string `json:"text"`
	Error     string `json:"error,omitempty"`
}

func NewAITurn(turnOrder int, text string) AITurn {
	return AITurn{Base: NewBase(KindAITurn), TurnOrder: turnOrder, Text: text}
}

func NewAITurnFailed(turnOrder int, err error) AITurn {
	return AITurn{Base: NewBase(KindAITurn), TurnOrder: turnOrder, Text: ErrorReplyText, Error: err.Error()}
}

func (e AITurn) Failed() bool {
	return e.Error != ""
}
