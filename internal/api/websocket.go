package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/serroba/doc-annotations/internal/acl"
	"github.com/serroba/doc-annotations/internal/ws"
)

// handleWebSocket handles GET /ws. Clients subscribe to a document's
// annotation feed with subscribe messages; the hub pushes lifecycle and
// reconciliation events until the connection drops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)

		return
	}

	client := ws.NewClient(uuid.New().String(), userID, conn)
	s.hub.Register(client)

	defer func() {
		s.hub.Unregister(client)
		_ = client.Close()
	}()

	s.serveClient(client, userID)
}

// serveClient processes incoming messages until the connection closes.
func (s *Server) serveClient(client *ws.Client, userID string) {
	for {
		msg, err := client.Receive()
		if err != nil {
			return
		}

		switch msg.Type {
		case ws.MessageTypeSubscribe:
			s.handleSubscribe(client, userID, msg)
		default:
			// Server-to-client messages - ignore if received from client
			_ = client.SendError(ws.ErrorCodeInvalidMessage, "unexpected message type")
		}
	}
}

// handleSubscribe checks access and adds the client to a document feed.
func (s *Server) handleSubscribe(client *ws.Client, userID string, msg ws.Message) {
	payload, ok := msg.Payload.(ws.SubscribePayload)
	if !ok || payload.DocID == "" {
		_ = client.SendError(ws.ErrorCodeInvalidMessage, "invalid subscribe payload")

		return
	}

	exists, err := s.store.DocumentExists(payload.DocID)
	if err != nil {
		_ = client.SendError(ws.ErrorCodeInternalError, "failed to check document")

		return
	}

	if !exists {
		_ = client.SendError(ws.ErrorCodeInvalidMessage, "document not found")

		return
	}

	if s.permStore != nil {
		checker := acl.NewChecker(s.permStore)
		if err := checker.RequirePermission(payload.DocID, userID, acl.ActionRead); err != nil {
			if errors.Is(err, acl.ErrAccessDenied) {
				_ = client.SendError(ws.ErrorCodeAccessDenied, "access denied")
			} else {
				_ = client.SendError(ws.ErrorCodeInternalError, "failed to check permission")
			}

			return
		}
	}

	s.hub.Subscribe(client, payload.DocID)

	_ = client.Send(ws.Message{
		Type:    ws.MessageTypeSubscribed,
		Payload: ws.SubscribePayload{DocID: payload.DocID},
	})
}
