package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/jumpgpt/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Messages sent by clients
const (
	MessageTypeVoiceStart         MessageType = "voice_start"
	MessageTypeVoiceStopRecording MessageType = "voice_stop_recording"
	MessageTypeVoiceRetry         MessageType = "voice_retry"
	MessageTypeVoiceStopPlayback  MessageType = "voice_stop_playback"
	MessageTypeVoiceClose         MessageType = "voice_close"
	MessageTypeSendText           MessageType = "send_text"
	MessageTypePing               MessageType = "ping"
)

// Messages pushed by the server
const (
	MessageTypeVoiceState    MessageType = "voice_state"
	MessageTypeConversations MessageType = "conversations"
	MessageTypePlaybackState MessageType = "playback_state"
	MessageTypeTextReply     MessageType = "text_reply"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
)

const maxTextLength = 8000

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// ControlMessage drives the voice coordinator. It carries no payload.
type ControlMessage struct {
	BaseMessage
}

// SendTextMessage submits a typed chat turn. An empty ConversationID starts
// a new conversation.
type SendTextMessage struct {
	BaseMessage
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// StateMessage carries a snapshot of one observable state
type StateMessage struct {
	BaseMessage
	Data any `json:"data"`
}

// TextReplyMessage answers a send_text request
type TextReplyMessage struct {
	BaseMessage
	ConversationID string           `json:"conversation_id"`
	UserMessage    entities.Message `json:"user_message"`
	Reply          entities.Message `json:"reply"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage decodes and validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeVoiceStart, MessageTypeVoiceStopRecording, MessageTypeVoiceRetry,
		MessageTypeVoiceStopPlayback, MessageTypeVoiceClose:
		return &ControlMessage{BaseMessage: base}, nil

	case MessageTypeSendText:
		var msg SendTextMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid send_text message: %w", err)
		}
		if err := v.validateSendText(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func (v *MessageValidator) validateSendText(msg *SendTextMessage) error {
	if strings.TrimSpace(msg.Text) == "" {
		return fmt.Errorf("text is required")
	}
	if len(msg.Text) > maxTextLength {
		return fmt.Errorf("text must be at most %d bytes", maxTextLength)
	}
	return nil
}

func newBase(t MessageType, now time.Time) BaseMessage {
	return BaseMessage{Type: t, Timestamp: now.Format(time.RFC3339)}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(now time.Time, code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError, now),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(now time.Time, data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong, now),
		Data:        data,
	}
}

// CreateStateMessage wraps a state snapshot
func CreateStateMessage(now time.Time, t MessageType, data any) *StateMessage {
	return &StateMessage{
		BaseMessage: newBase(t, now),
		Data:        data,
	}
}
