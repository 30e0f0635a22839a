package events

import "github.com/koscakluka/ema-duplex/core/forms"

const (
	KindFieldUpdated       Kind = "field_updated"
	KindOnboardingComplete Kind = "onboarding_complete"
	KindFormState          Kind = "form_state"
	KindFormReset          Kind = "form_reset"
)

type FieldUpdated struct {
	Base
	Field string `json:"field"`
	Value string `json:"value"`
}

func NewFieldUpdated(field, value string) FieldUpdated {
	return FieldUpdated{Base: NewBase(KindFieldUpdated), Field: field, Value: value}
}

type OnboardingComplete struct {
	Base
	Form forms.Form `json:"form"`
}

func NewOnboardingComplete(form forms.Form) OnboardingComplete {
	return OnboardingComplete{Base: NewBase(KindOnboardingComplete), Form: form}
}

type FormState struct {
	Base
	Form forms.Form `json:"form"`
}

func NewFormState(form forms.Form) FormState {
	return FormState{Base: NewBase(KindFormState), Form: form}
}

type FormReset struct {
	Base
	Form forms.Form `json:"form"`
}

func NewFormReset(form forms.Form) FormReset {
	return FormReset{Base: NewBase(KindFormReset), Form: form}
}
