package event

import (
	"encoding/json"
	"fmt"
)

// Encode marshals a frame for the wire. It never fails: payload fields that
// cannot be serialized (channels, functions, cyclic values handed over by the
// upstream producer) are replaced with a diagnostic placeholder so one bad
// field does not take down the whole stream.
func Encode(e *Event) []byte {
	data, err := json.Marshal(e)
	if err == nil {
		return data
	}

	sanitized := *e
	if e.Arguments != nil {
		sanitized.Arguments = make(map[string]any, len(e.Arguments))
		for k, v := range e.Arguments {
			sanitized.Arguments[k] = sanitizeValue(v)
		}
	}
	sanitized.Result = sanitizeValue(e.Result)

	data, err = json.Marshal(&sanitized)
	if err == nil {
		return data
	}

	// Last resort: preserve the frame type so ordering and terminal
	// semantics survive even when the payload is a total loss.
	data, _ = json.Marshal(&Event{
		Type:    e.Type,
		Message: e.Message,
	})
	return data
}

// sanitizeValue returns v if it is JSON-serializable, otherwise a placeholder
// recording the runtime type that failed.
func sanitizeValue(v any) any {
	if v == nil {
		return nil
	}
	if _, err := json.Marshal(v); err != nil {
		return map[string]any{
			"error": "serialization failed",
			"type":  fmt.Sprintf("%T", v),
		}
	}
	return v
}

// Decode parses a frame best-effort. Missing optional fields decode as absent
// rather than faulting, and input that is not valid JSON yields a frame with
// an empty Type; validation is the consumer's job. Payloads come from an
// external, weakly-typed producer, so a partially populated frame is normal.
func Decode(data []byte) *Event {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		// Salvage the discriminator if the full frame won't parse, e.g.
		// when a payload field has an unexpected shape.
		var tag struct {
			Type    Type   `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &tag); err == nil {
			e.Type = tag.Type
			e.Message = tag.Message
		}
	}
	return &e
}
