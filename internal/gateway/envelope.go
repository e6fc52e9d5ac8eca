package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// envelope is the backend's standard response wrapper. Every field is
// optional; presence is what matters.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Data decodes payload into v. A JSON object carrying a data key is
// unwrapped to that key whether or not success is present; any other JSON
// document is decoded whole. success=false, when present, is returned as a
// *RequestError carrying the envelope's message.
func Data(payload []byte, v any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty response body")
	}

	if trimmed[0] == '{' {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err == nil {
			if env.Success != nil && !*env.Success {
				msg := env.Message
				if msg == "" {
					msg = "request was not successful"
				}
				return &RequestError{Status: 200, Message: msg}
			}
			// RawMessage stays nil when the key is absent and holds
			// "null" when the key is present with a null value.
			if env.Data != nil {
				if bytes.Equal(env.Data, []byte("null")) {
					return nil
				}
				if err := json.Unmarshal(env.Data, v); err != nil {
					return fmt.Errorf("failed to decode response data: %w", err)
				}
				return nil
			}
			if env.Success != nil {
				return nil
			}
		}
	}

	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
