package service

import (
	"context"
	"errors"
	"fmt"

	"docsync/internal/access"
	"docsync/internal/document/model"
	"docsync/internal/domain"
	"docsync/pkg/logger"
	"docsync/pkg/metrics"
	"docsync/socket"
)

// resolveRef loads the document ref points at. A UUID is a document id;
// anything else is a link token, which is attached to the returned actor.
// Unknown tokens are NotFound and expired ones Expired.
func (s *DocumentService) resolveRef(ctx context.Context, ref string, actor access.Actor) (*model.Document, access.Actor, error) {
	if ref == "" {
		return nil, actor, fmt.Errorf("empty document reference: %w", domain.ErrInvalidInput)
	}
	if isCanonicalID(ref) {
		doc, err := s.Repo.FindByID(ctx, ref)
		return doc, actor, err
	}

	doc, err := s.Repo.FindByLinkToken(ctx, ref)
	if err != nil {
		return nil, actor, err
	}
	if _, err := access.FindLink(doc, ref, s.now()); err != nil {
		return nil, actor, err
	}
	actor.LinkToken = ref
	return doc, actor, nil
}

// Save is the only write path into document content. HTTP saves and relay
// autosaves both end here.
func (s *DocumentService) Save(ctx context.Context, ref string, actor access.Actor, content string) (*model.SaveResult, error) {
	res, err := s.save(ctx, ref, actor, content)
	metrics.Saves.WithLabelValues(saveOutcome(err)).Inc()
	return res, err
}

func (s *DocumentService) save(ctx context.Context, ref string, actor access.Actor, content string) (*model.SaveResult, error) {
	doc, actor, err := s.resolveRef(ctx, ref, actor)
	if errors.Is(err, domain.ErrExpired) {
		// Expired links take no part in writes.
		return nil, fmt.Errorf("save via link: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if actor.LinkToken != "" {
		link, err := access.FindLink(doc, actor.LinkToken, s.now())
		if err != nil || link.Role != model.RoleEditor {
			return nil, fmt.Errorf("no editor link %s: %w", actor.LinkToken, domain.ErrNotFound)
		}
	}

	if !access.Resolve(doc, actor, s.now()).CanWrite() {
		return nil, fmt.Errorf("save %s: %w", doc.ID, domain.ErrForbidden)
	}

	updatedAt := s.now().UTC()
	if err := s.Repo.UpdateContent(ctx, doc.ID, content, updatedAt); err != nil {
		return nil, err
	}
	doc.Content = content
	doc.UpdatedAt = updatedAt

	// Anonymous link editors produce versions without an author.
	if _, err := s.Versions.Append(ctx, doc, content, actor.UserID); err != nil {
		logger.Sugar.Errorf("Saved doc %s but failed to record version: %v", doc.ID, err)
		return nil, err
	}

	return &model.SaveResult{ID: doc.ID, Title: doc.Title, UpdatedAt: updatedAt}, nil
}

func saveOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

// AuthorizeRoom implements socket.Backend. The returned document id is the
// canonical room for ref, whether ref is an id or a link token.
func (s *DocumentService) AuthorizeRoom(ctx context.Context, ref string, actor access.Actor) (socket.RoomAccess, error) {
	doc, actor, err := s.resolveRef(ctx, ref, actor)
	if err != nil {
		return socket.RoomAccess{}, err
	}
	grant := access.Resolve(doc, actor, s.now())
	if !grant.CanRead() {
		return socket.RoomAccess{}, fmt.Errorf("join %s: %w", doc.ID, domain.ErrForbidden)
	}
	return socket.RoomAccess{DocumentID: doc.ID, Role: grant.Role}, nil
}
