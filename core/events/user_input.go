package events

const (
	KindInterimTranscript Kind = "interim_transcript"
	KindUserTurn          Kind = "user_turn"
	KindStartOfTurn       Kind = "start_of_turn"
)

// InterimTranscript carries live partial user speech. Each one supersedes the
// previous.
type InterimTranscript struct {
	Base
	Text string `json:"text"`
}

func NewInterimTranscript(text string) InterimTranscript {
	return InterimTranscript{Base: NewBase(KindInterimTranscript), Text: text}
}

// UserTurn carries a confirmed user utterance as it was dispatched for a
// reply.
type UserTurn struct {
	Base
	Text      string `json:"text"`
	TurnOrder int    `json:"turnOrder"`
}

func NewUserTurn(text string, turnOrder int) UserTurn {
	return UserTurn{Base: NewBase(KindUserTurn), Text: text, TurnOrder: turnOrder}
}

// StartOfTurn marks that the user began speaking. HeardPrefix and FullText
// are only set when the user interrupted the agent.
type StartOfTurn struct {
	Base
	HeardPrefix *string `json:"heardPrefix,omitempty"`
	FullText    *string `json:"fullText,omitempty"`
}

func NewStartOfTurn() StartOfTurn {
	return StartOfTurn{Base: NewBase(KindStartOfTurn)}
}

// NewBargeIn creates a start of turn that reconciles an interrupted reply.
func NewBargeIn(heardPrefix, fullText string) StartOfTurn {
	return StartOfTurn{Base: NewBase(KindStartOfTurn), HeardPrefix: &heardPrefix, FullText: &fullText}
}

func (e StartOfTurn) IsBargeIn() bool {
	return e.FullText != nil
}
