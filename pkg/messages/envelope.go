package messages

import (
	"time"

	"github.com/google/uuid"
)

// MessageType identifies how the dispatcher routes an envelope
type MessageType string

const (
	// TypeText is a typed user message
	TypeText MessageType = "texto_usuario"
	// TypeVoiceTranscript is a transcribed voice command
	TypeVoiceTranscript MessageType = "comando_voz_transcrito"
	// TypeStartListening asks the core to capture speech
	TypeStartListening MessageType = "peticion_stt_start"
	// TypeCaptureFailed carries a speech capture failure back to the consumer
	TypeCaptureFailed MessageType = "fallo_stt"
)

// Response tags used by output sinks for styling
const (
	TagAssistant = "assistant"
	TagSystem    = "system"
	TagError     = "error"
)

// Well-known session and origin identifiers
const (
	UnknownSession = "sesion_desconocida"
	UnknownOrigin  = "fuente_desconocida"
	ConsoleSession = "local_console_session"
	ConsoleOrigin  = "console_input"
)

// TranscriptSuffix is appended to the origin of voice transcripts for auditing
const TranscriptSuffix = "_transcrito"

// Envelope is one unit of external input submitted to the dispatcher
type Envelope struct {
	ID         string      `json:"id"`
	Type       MessageType `json:"type"`
	Payload    string      `json:"payload"`
	SessionID  string      `json:"session_id"`
	Origin     string      `json:"origin"`
	ReceivedAt time.Time   `json:"received_at"`
}

// NewEnvelope creates an envelope, filling unknown session/origin placeholders.
func NewEnvelope(msgType MessageType, payload, sessionID, origin string) *Envelope {
	if sessionID == "" {
		sessionID = UnknownSession
	}
	if origin == "" {
		origin = UnknownOrigin
	}
	return &Envelope{
		ID:         uuid.New().String(),
		Type:       msgType,
		Payload:    payload,
		SessionID:  sessionID,
		Origin:     origin,
		ReceivedAt: time.Now(),
	}
}

// Text creates a texto_usuario envelope
func Text(payload, sessionID, origin string) *Envelope {
	return NewEnvelope(TypeText, payload, sessionID, origin)
}

// VoiceTranscript creates a comando_voz_transcrito envelope
func VoiceTranscript(payload, sessionID, origin string) *Envelope {
	return NewEnvelope(TypeVoiceTranscript, payload, sessionID, origin)
}

// StartListening creates a peticion_stt_start envelope
func StartListening(sessionID, origin string) *Envelope {
	return NewEnvelope(TypeStartListening, "", sessionID, origin)
}

// CaptureFailed creates a fallo_stt envelope carrying the capture result
func CaptureFailed(result, sessionID, origin string) *Envelope {
	return NewEnvelope(TypeCaptureFailed, result, sessionID, origin)
}

// Response is what the core hands to an output sink
type Response struct {
	ID        string    `json:"id"`
	Message   string    `json:"text"`
	Tag       string    `json:"tag"`
	SessionID string    `json:"session_id"`
	Origin    string    `json:"origin"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}

// NewResponse creates a final response addressed to a session
func NewResponse(message, tag, sessionID, origin string) Response {
	return Response{
		ID:        uuid.New().String(),
		Message:   message,
		Tag:       tag,
		SessionID: sessionID,
		Origin:    origin,
		Final:     true,
		Timestamp: time.Now(),
	}
}
