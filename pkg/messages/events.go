package messages

import (
	"time"

	"github.com/google/uuid"
)

// Event types recorded by the core
const (
	EventInteraction     = "Interaccion_Core_Texto"
	EventPipelineError   = "Error_Procesamiento_Texto_Core"
	EventLoopError       = "Error_Critico_BucleCore"
	EventStartupError    = "Error_Inicio_Core"
	EventFactRegistered  = "Dato_Actualizado"
	EventCoreStarted     = "Inicio_Core"
	EventCoreStopped     = "Apagado_Core"
	EventSchedulerReload = "Reconfiguracion_Planificador"
)

// EventMessage represents an event record published on the message bus
type EventMessage struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`   // "Interaccion_Core_Texto", "Error_Inicio_Core", etc.
	Source    string                 `json:"source"` // Component that generated the event
	SessionID string                 `json:"session_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Context   EventContext           `json:"context"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventContext captures the emotional state at the time of the event
type EventContext struct {
	IAEmotion   string   `json:"ia_emotion,omitempty"`
	UserEmotion string   `json:"user_emotion,omitempty"`
	SyncLevel   *float64 `json:"sync_level,omitempty"`
}

// NewEvent creates an event message
func NewEvent(eventType, source string, details map[string]interface{}) *EventMessage {
	return &EventMessage{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}
