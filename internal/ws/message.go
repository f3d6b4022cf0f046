package ws

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	// Client to Server messages.
	MessageTypeSubscribe MessageType = "subscribe" // Client follows a document's annotation feed

	// Server to Client messages.
	MessageTypeSubscribed        MessageType = "subscribed"         // Server confirms the subscription
	MessageTypeAnnotationCreated MessageType = "annotation_created" // An annotation was created
	MessageTypeAnnotationUpdated MessageType = "annotation_updated" // An annotation's content changed
	MessageTypeAnnotationRemoved MessageType = "annotation_removed" // An annotation was deleted
	MessageTypeReconciled        MessageType = "reconciled"         // Markers were re-painted
	MessageTypeError             MessageType = "error"              // Server reports an error
)

// Message is the envelope for all WebSocket communication.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

// SubscribePayload is sent when a client follows a document.
type SubscribePayload struct {
	DocID string `json:"docId"`
}

// AnnotationEventPayload describes an annotation lifecycle event. Clients
// refetch the full record over HTTP when they need more than the ids.
type AnnotationEventPayload struct {
	DocID        string `json:"docId"`
	AnnotationID string `json:"annotationId"`
	Kind         string `json:"kind"`
	Author       string `json:"author,omitempty"`
}

// ReconciledPayload summarizes a reconciliation pass: how many markers were
// painted at their anchored offsets, how many needed the content-search
// fallback, and how many could not be placed.
type ReconciledPayload struct {
	DocID    string `json:"docId"`
	Applied  int    `json:"applied"`
	Fallback int    `json:"fallback"`
	Skipped  int    `json:"skipped"`
}

// ErrorPayload reports an error to the client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrorCodeAccessDenied   = "access_denied"
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeInternalError  = "internal_error"
)
