// Package events defines the outward event stream emitted by a session.
//
// The set of events is closed: every event embeds Base, reports one of the
// kinds listed by Kinds and is serialized by Marshal into a JSON object whose
// "type" field carries the kind.
//
// user input events
//
//   - InterimTranscript (interim_transcript): live partial user speech.
//   - UserTurn (user_turn): confirmed user utterance with its turn order.
//   - StartOfTurn (start_of_turn): the user began speaking. On barge-in it
//     carries the estimated heard prefix and the full interrupted reply.
//
// assistant response events
//
//   - AITurnStart (ai_turn_start): the agent begins a reply.
//   - TextDelta (text_delta): incremental reply text, IsEnd marks the end.
//   - AITurn (ai_turn): full reply after the fact, or an error marker.
//
// form events
//
//   - FieldUpdated (field_updated): a form field changed.
//   - OnboardingComplete (onboarding_complete): the form was completed.
//   - FormState (form_state): form snapshot requested by a client.
//   - FormReset (form_reset): the form was cleared.
//
// session events
//
//   - ServicesReady (services_ready): the voice pipeline is connected.
//   - Error (error): non-fatal pipeline error.
package events
