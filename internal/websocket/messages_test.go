package websocket

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMessageValidator_ValidateMessage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name     string
		message  string
		wantType any
		wantErr  bool
	}{
		{"voice start", `{"type":"voice_start"}`, &ControlMessage{}, false},
		{"voice close", `{"type":"voice_close","timestamp":"2026-03-01T10:00:00Z"}`, &ControlMessage{}, false},
		{"send text", `{"type":"send_text","conversation_id":"c1","text":"hi"}`, &SendTextMessage{}, false},
		{"send text without conversation", `{"type":"send_text","text":"hi"}`, &SendTextMessage{}, false},
		{"blank text", `{"type":"send_text","text":"   "}`, nil, true},
		{"oversized text", `{"type":"send_text","text":"` + strings.Repeat("a", maxTextLength+1) + `"}`, nil, true},
		{"ping", `{"type":"ping","data":"x"}`, &PingMessage{}, false},
		{"missing type", `{"text":"hi"}`, nil, true},
		{"unknown type", `{"type":"audio_chunk"}`, nil, true},
		{"invalid json", `{"type":`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			switch tt.wantType.(type) {
			case *ControlMessage:
				if _, ok := msg.(*ControlMessage); !ok {
					t.Errorf("Expected *ControlMessage, got %T", msg)
				}
			case *SendTextMessage:
				if _, ok := msg.(*SendTextMessage); !ok {
					t.Errorf("Expected *SendTextMessage, got %T", msg)
				}
			case *PingMessage:
				if _, ok := msg.(*PingMessage); !ok {
					t.Errorf("Expected *PingMessage, got %T", msg)
				}
			}
		})
	}
}

func TestCreateMessages(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	errMsg := CreateErrorMessage(now, "completion_failed", "Could not send message", "upstream 500")
	data, _ := json.Marshal(errMsg)
	var decoded map[string]any
	json.Unmarshal(data, &decoded)
	if decoded["type"] != "error" || decoded["error_code"] != "completion_failed" || decoded["timestamp"] != "2026-03-01T10:00:00Z" {
		t.Errorf("Unexpected error message %s", data)
	}

	pong := CreatePongMessage(now, "x")
	if pong.Type != MessageTypePong || pong.Data != "x" {
		t.Errorf("Unexpected pong %+v", pong)
	}

	state := CreateStateMessage(now, MessageTypeVoiceState, map[string]string{"phase": "idle"})
	data, _ = json.Marshal(state)
	if !strings.Contains(string(data), `"data":{"phase":"idle"}`) {
		t.Errorf("Unexpected state message %s", data)
	}
}
