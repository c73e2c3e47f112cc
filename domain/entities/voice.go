package entities

import "time"

// VoicePhase is the coordinator's position in the voice cycle
type VoicePhase string

const (
	VoicePhaseIdle                VoicePhase = "idle"
	VoicePhaseActivationListening VoicePhase = "activation_listening"
	VoicePhaseRecording           VoicePhase = "recording"
	VoicePhaseTranscribing        VoicePhase = "transcribing"
	VoicePhaseSending             VoicePhase = "sending"
	VoicePhaseSynthesizing        VoicePhase = "synthesizing"
	VoicePhasePlayingResponse     VoicePhase = "playing_response"
	VoicePhaseError               VoicePhase = "error"
)

// IsProcessing reports whether a network stage is in flight
func (p VoicePhase) IsProcessing() bool {
	switch p {
	case VoicePhaseTranscribing, VoicePhaseSending, VoicePhaseSynthesizing:
		return true
	}
	return false
}

// VoiceSessionState is the observable snapshot of a voice session.
// Only the coordinator mutates it.
type VoiceSessionState struct {
	Phase            VoicePhase    `json:"phase"`
	ConversationID   string        `json:"conversation_id,omitempty"`
	RecordingElapsed time.Duration `json:"recording_elapsed"`
	LastTranscript   string        `json:"last_transcript,omitempty"`
	LastError        string        `json:"last_error,omitempty"`
	ErrorKind        string        `json:"error_kind,omitempty"`
	Amplitude        int           `json:"amplitude"`
	FalseStarts      int           `json:"false_starts"`
	ResponseID       string        `json:"response_id,omitempty"`
}

// NewVoiceSessionState returns the state of a coordinator that was never started
func NewVoiceSessionState() VoiceSessionState {
	return VoiceSessionState{Phase: VoicePhaseIdle}
}
