package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"docsync/internal/access"
	"docsync/internal/document/model"
	"docsync/internal/domain"
	"docsync/socket"
)

func (s *DocumentService) readableDocument(ctx context.Context, userID, docID string) (*model.Document, access.Grant, error) {
	doc, err := s.loadByID(ctx, docID)
	if err != nil {
		return nil, access.Grant{}, err
	}
	grant := access.Resolve(doc, access.Actor{UserID: userID}, s.now())
	if !grant.CanRead() {
		return nil, grant, fmt.Errorf("comments of %s: %w", docID, domain.ErrForbidden)
	}
	return doc, grant, nil
}

func (s *DocumentService) AddComment(ctx context.Context, userID, docID string, req model.CommentRequest) (*model.Comment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, _, err := s.readableDocument(ctx, userID, docID); err != nil {
		return nil, err
	}
	c := &model.Comment{
		ID:         uuid.NewString(),
		DocumentID: docID,
		SectionID:  req.SectionID,
		AuthorID:   userID,
		Text:       req.Text,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.Repo.InsertComment(ctx, c); err != nil {
		return nil, err
	}
	s.Hub.Broadcast(docID, nil, socket.Encode(socket.Message{Event: socket.CommentAddedEvent, DocumentID: docID}, c))
	return c, nil
}

// Reply attaches a comment under commentID in the same section.
func (s *DocumentService) Reply(ctx context.Context, userID, commentID string, req model.ReplyRequest) (*model.Comment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateID(commentID); err != nil {
		return nil, err
	}
	parent, err := s.Repo.FindComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.readableDocument(ctx, userID, parent.DocumentID); err != nil {
		return nil, err
	}
	c := &model.Comment{
		ID:              uuid.NewString(),
		DocumentID:      parent.DocumentID,
		SectionID:       parent.SectionID,
		AuthorID:        userID,
		Text:            req.Text,
		ParentCommentID: parent.ID,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.Repo.InsertComment(ctx, c); err != nil {
		return nil, err
	}
	s.Hub.Broadcast(c.DocumentID, nil, socket.Encode(socket.Message{Event: socket.CommentAddedEvent, DocumentID: c.DocumentID}, c))
	return c, nil
}

// ListComments lists a document's comments oldest first, optionally for one
// section only.
func (s *DocumentService) ListComments(ctx context.Context, userID, docID, sectionID string) ([]model.Comment, error) {
	if _, _, err := s.readableDocument(ctx, userID, docID); err != nil {
		return nil, err
	}
	return s.Repo.FindComments(ctx, docID, sectionID)
}

// ResolveComment deletes a comment and its replies. The author may resolve
// their own comment; anyone else needs write access.
func (s *DocumentService) ResolveComment(ctx context.Context, userID, commentID string) error {
	if err := ValidateID(commentID); err != nil {
		return err
	}
	c, err := s.Repo.FindComment(ctx, commentID)
	if err != nil {
		return err
	}
	_, grant, err := s.readableDocument(ctx, userID, c.DocumentID)
	if err != nil {
		return err
	}
	if c.AuthorID != userID && !grant.CanWrite() {
		return fmt.Errorf("resolve comment %s: %w", commentID, domain.ErrForbidden)
	}
	if err := s.Repo.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	s.Hub.Broadcast(c.DocumentID, nil, socket.Encode(
		socket.Message{Event: socket.CommentResolvedEvent, DocumentID: c.DocumentID},
		map[string]string{"id": commentID, "documentId": c.DocumentID},
	))
	return nil
}
