package websocket

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageValidator_ValidateMessage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr string
	}{
		{"ping", `{"type":"ping","data":"x"}`, ""},
		{"invalid json", `{"type":`, "invalid JSON format"},
		{"missing type", `{"data":"x"}`, "message type is required"},
		{"unsupported type", `{"type":"audio_chunk"}`, "unsupported message type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := validator.ValidateMessage([]byte(tt.message))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				ping, ok := result.(*PingMessage)
				if !ok {
					t.Fatalf("Expected *PingMessage, got %T", result)
				}
				if ping.Data != "x" {
					t.Errorf("Expected data 'x', got '%s'", ping.Data)
				}
				if ping.Timestamp == "" {
					t.Error("Expected timestamp to be filled in")
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateErrorMessage(t *testing.T) {
	msg := CreateErrorMessage("invalid_message", "bad input", "details")

	if msg.Type != MessageTypeError {
		t.Errorf("Expected type %s, got %s", MessageTypeError, msg.Type)
	}
	if msg.Timestamp == "" {
		t.Error("Expected timestamp")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["error_code"] != "invalid_message" {
		t.Errorf("Expected error_code field, got %v", decoded["error_code"])
	}
}

func TestCreatePongMessage(t *testing.T) {
	msg := CreatePongMessage("payload")
	if msg.Type != MessageTypePong {
		t.Errorf("Expected type %s, got %s", MessageTypePong, msg.Type)
	}
	if msg.Data != "payload" {
		t.Errorf("Expected data 'payload', got '%s'", msg.Data)
	}
}

func TestMessageValidator_StatusRequest(t *testing.T) {
	result, err := NewMessageValidator().ValidateMessage([]byte(`{"type":"status"}`))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, ok := result.(*StatusRequest); !ok {
		t.Fatalf("Expected *StatusRequest, got %T", result)
	}
}

func TestCreateStatusMessage(t *testing.T) {
	msg := CreateStatusMessage("session-1", "complete", true)

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, want := range []string{`"type":"status"`, `"session_id":"session-1"`, `"state":"complete"`, `"has_result":true`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Expected %s in %s", want, data)
		}
	}
}
