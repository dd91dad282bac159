package event

// Envelope is the single client-to-server request sent immediately after the
// connection is established. One envelope drives one stream.
type Envelope struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Valid reports whether the envelope carries the required fields.
func (e *Envelope) Valid() bool {
	return e.SessionID != "" && e.Message != ""
}
