package events

const (
	KindServicesReady Kind = "services_ready"
	KindError         Kind = "error"
)

type ServicesReady struct {
	Base
	STT        bool `json:"stt"`
	SampleRate int  `json:"sampleRate"`
}

func NewServicesReady(sampleRate int) ServicesReady {
	return ServicesReady{Base: NewBase(KindServicesReady), STT: true, SampleRate: sampleRate}
}

type Error struct {
	Base
	Message string `json:"message"`
}

func NewError(message string) Error {
	return Error{Base: NewBase(KindError), Message: message}
}
