package socket

import (
	"encoding/json"

	"docsync/internal/document/model"
	"docsync/pkg/logger"
)

const (
	// Client to server.
	JoinDocEvent     = "join-doc"
	SendChangesEvent = "send-changes"
	SaveDocEvent     = "save-doc"
	LeaveDocEvent    = "leave-doc"

	// Server to client.
	JoinedEvent          = "joined"
	ReceiveChangesEvent  = "receive-changes"
	DocSavedEvent        = "doc-saved"
	DocRestoredEvent     = "doc-restored"
	DocDeletedEvent      = "doc-deleted"
	CommentAddedEvent    = "comment-added"
	CommentResolvedEvent = "comment-resolved"
	ErrorEvent           = "error"
)

// Message is the single frame shape used in both directions. Delta is relayed
// as-is and never inspected.
type Message struct {
	Event      string          `json:"event"`
	DocumentID string          `json:"documentId,omitempty"`
	Delta      json.RawMessage `json:"delta,omitempty"`
	Content    *string         `json:"content,omitempty"`
	Role       model.Role      `json:"role,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Encode marshals msg, attaching data as the frame's data field when non-nil.
func Encode(msg Message, data any) []byte {
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			logger.Sugar.Errorf("Error marshalling %s data: %v", msg.Event, err)
		} else {
			msg.Data = raw
		}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s message: %v", msg.Event, err)
		return nil
	}
	return payload
}

func errorFrame(docID, text string) []byte {
	return Encode(Message{Event: ErrorEvent, DocumentID: docID, Error: text}, nil)
}
