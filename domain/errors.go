package domain

import "errors"

// Voice cycle failures. Every one of them is recovered by the coordinator.
var (
	ErrRecorderInit        = errors.New("recorder could not be started")
	ErrRecorderStop        = errors.New("recorder is not active")
	ErrNoAudioCaptured     = errors.New("no audio captured")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrCompletionFailed    = errors.New("completion failed")
	ErrSynthesisFailed     = errors.New("speech synthesis failed")
	ErrPlaybackInit        = errors.New("playback could not be started")
)

var (
	ErrMicrophoneBusy       = errors.New("microphone is held by another session")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNothingToSpeak       = errors.New("message has nothing to speak")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrRecorderInit, "recorder_init"},
	{ErrRecorderStop, "recorder_stop"},
	{ErrNoAudioCaptured, "no_audio_captured"},
	{ErrTranscriptionFailed, "transcription_failed"},
	{ErrCompletionFailed, "completion_failed"},
	{ErrSynthesisFailed, "synthesis_failed"},
	{ErrPlaybackInit, "playback_init"},
	{ErrConversationNotFound, "conversation_not_found"},
	{ErrMessageNotFound, "message_not_found"},
	{ErrNothingToSpeak, "nothing_to_speak"},
}

// ErrorKind returns a stable code for err, or "internal" when err does not
// wrap one of the package sentinels.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
