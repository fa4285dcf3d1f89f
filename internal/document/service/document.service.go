package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docsync/internal/access"
	"docsync/internal/document/model"
	"docsync/internal/document/repository"
	"docsync/internal/document/version"
	"docsync/internal/domain"
	"docsync/pkg/logger"
	"docsync/socket"
)

const (
	linkTokenBytes    = 16
	linkTokenAttempts = 5
)

type DocumentService struct {
	Repo     repository.Store
	Hub      *socket.Hub
	Versions *version.Store
	now      func() time.Time
}

func NewDocumentService(repo repository.Store, hub *socket.Hub) *DocumentService {
	s := &DocumentService{Repo: repo, Hub: hub, now: time.Now}
	s.Versions = version.NewStore(repo, func() time.Time { return s.now() })
	return s
}

// SetClock replaces the time source used for expiry checks and timestamps.
func (s *DocumentService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *DocumentService) CreateDocument(ctx context.Context, userID string, req model.CreateDocRequest) (*model.DocumentMetadata, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	doc := &model.Document{
		ID:        uuid.NewString(),
		Title:     req.Title,
		OwnerID:   userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Insert(ctx, doc); err != nil {
		return nil, err
	}
	logger.Sugar.Infof("Document %s created by %s", doc.ID, userID)
	return metadataOf(doc, model.RoleOwner), nil
}

func (s *DocumentService) ListByOwner(ctx context.Context, userID string) ([]model.DocumentSummary, error) {
	return s.Repo.FindByOwner(ctx, userID)
}

// GetContent returns the current content of the document addressed by ref.
// A link token grants read access without an identity; an expired token
// yields domain.ErrExpired.
func (s *DocumentService) GetContent(ctx context.Context, ref string, actor access.Actor) (*model.ContentView, error) {
	doc, actor, err := s.resolveRef(ctx, ref, actor)
	if err != nil {
		return nil, err
	}
	grant := access.Resolve(doc, actor, s.now())
	if !grant.CanRead() {
		return nil, fmt.Errorf("read %s: %w", doc.ID, domain.ErrForbidden)
	}
	return &model.ContentView{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Content:    doc.Content,
		Role:       grant.Role,
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}

// GetMetadata returns owner and shares, plus links for the owner. Link
// bearers are not allowed.
func (s *DocumentService) GetMetadata(ctx context.Context, userID, docID string) (*model.DocumentMetadata, error) {
	doc, err := s.loadByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	grant := access.Resolve(doc, access.Actor{UserID: userID}, s.now())
	if !grant.IsMember() {
		return nil, fmt.Errorf("metadata of %s: %w", docID, domain.ErrForbidden)
	}
	return metadataOf(doc, grant.Role), nil
}

// CreateLink adds a shareable link to a document the caller owns. Tokens are
// regenerated when they collide with an existing link.
func (s *DocumentService) CreateLink(ctx context.Context, userID, docID string, req model.CreateLinkRequest) (*model.ShareableLink, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	doc, err := s.ownedDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}

	link := model.ShareableLink{Role: req.Role, CreatedAt: s.now().UTC()}
	if req.ExpiresAt != nil {
		exp := req.ExpiresAt.UTC()
		link.ExpiresAt = &exp
	}
	for attempt := 1; ; attempt++ {
		link.Token, err = newLinkToken()
		if err != nil {
			return nil, err
		}
		err = s.Repo.AddLink(ctx, doc.ID, link)
		if !errors.Is(err, repository.ErrTokenTaken) {
			break
		}
		logger.Sugar.Warnf("Link token collision on doc %s, attempt %d", doc.ID, attempt)
		if attempt == linkTokenAttempts {
			return nil, fmt.Errorf("generate link token: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// ShareWith grants userID a role on the document, replacing any earlier one.
func (s *DocumentService) ShareWith(ctx context.Context, ownerID, docID string, req model.ShareRequest) (*model.DocumentMetadata, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	doc, err := s.ownedDocument(ctx, ownerID, docID)
	if err != nil {
		return nil, err
	}
	if req.UserID == doc.OwnerID {
		return nil, fmt.Errorf("owner cannot be a collaborator: %w", domain.ErrInvalidInput)
	}
	if err := s.Repo.PutShare(ctx, doc.ID, model.Share{UserID: req.UserID, Role: req.Role}); err != nil {
		return nil, err
	}
	return s.GetMetadata(ctx, ownerID, docID)
}

func (s *DocumentService) RemoveShare(ctx context.Context, ownerID, docID, userID string) error {
	if _, err := s.ownedDocument(ctx, ownerID, docID); err != nil {
		return err
	}
	return s.Repo.RemoveShare(ctx, docID, userID)
}

// ListVersions lists history newest first. By id it needs an owner or share
// grant; by token it needs an unexpired Editor link.
func (s *DocumentService) ListVersions(ctx context.Context, ref string, actor access.Actor) ([]model.VersionSummary, error) {
	doc, actor, err := s.resolveRef(ctx, ref, actor)
	if err != nil {
		return nil, err
	}
	if actor.LinkToken != "" {
		link, err := access.FindLink(doc, actor.LinkToken, s.now())
		if err != nil {
			return nil, err
		}
		if link.Role != model.RoleEditor {
			return nil, fmt.Errorf("versions of %s: %w", doc.ID, domain.ErrForbidden)
		}
		return version.List(doc), nil
	}
	if !access.Resolve(doc, actor, s.now()).IsMember() {
		return nil, fmt.Errorf("versions of %s: %w", doc.ID, domain.ErrForbidden)
	}
	return version.List(doc), nil
}

// RestoreVersion makes a past snapshot current and tells the room.
func (s *DocumentService) RestoreVersion(ctx context.Context, userID, docID, versionID string) (*model.ContentView, error) {
	doc, err := s.ownedDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	content, updatedAt, err := s.Versions.Restore(ctx, doc, versionID)
	if err != nil {
		return nil, err
	}

	s.Hub.Broadcast(doc.ID, nil, socket.Encode(socket.Message{
		Event:      socket.DocRestoredEvent,
		DocumentID: doc.ID,
		Content:    &content,
	}, nil))
	logger.Sugar.Infof("Document %s restored to version %s by %s", doc.ID, versionID, userID)

	return &model.ContentView{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Content:    content,
		Role:       model.RoleOwner,
		UpdatedAt:  updatedAt,
	}, nil
}

// DeleteDocument removes the document with its comments and closes its room.
func (s *DocumentService) DeleteDocument(ctx context.Context, userID, docID string) error {
	doc, err := s.ownedDocument(ctx, userID, docID)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, doc.ID); err != nil {
		return err
	}
	s.Hub.CloseRoom(doc.ID, socket.Encode(socket.Message{Event: socket.DocDeletedEvent, DocumentID: doc.ID}, nil))
	logger.Sugar.Infof("Document %s deleted by %s", doc.ID, userID)
	return nil
}

func (s *DocumentService) ownedDocument(ctx context.Context, userID, docID string) (*model.Document, error) {
	doc, err := s.loadByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !access.Resolve(doc, access.Actor{UserID: userID}, s.now()).IsOwner() {
		return nil, fmt.Errorf("only the owner may change %s: %w", docID, domain.ErrForbidden)
	}
	return doc, nil
}

// loadByID loads a document addressed strictly by id.
func (s *DocumentService) loadByID(ctx context.Context, docID string) (*model.Document, error) {
	if err := ValidateID(docID); err != nil {
		return nil, err
	}
	return s.Repo.FindByID(ctx, docID)
}

// ValidateID rejects identifiers that are not canonical UUIDs.
func ValidateID(id string) error {
	if !isCanonicalID(id) {
		return fmt.Errorf("malformed id %q: %w", id, domain.ErrInvalidInput)
	}
	return nil
}

// isCanonicalID reports whether id is a hyphenated UUID. uuid.Parse also
// accepts 32 bare hex digits, which is the shape of a link token.
func isCanonicalID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func newLinkToken() (string, error) {
	b := make([]byte, linkTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func metadataOf(doc *model.Document, role model.Role) *model.DocumentMetadata {
	shares := doc.ShareWith
	if shares == nil {
		shares = []model.Share{}
	}
	// Link tokens are bearer credentials and only the owner sees them.
	links := []model.ShareableLink{}
	if role == model.RoleOwner && doc.ShareableLinks != nil {
		links = doc.ShareableLinks
	}
	return &model.DocumentMetadata{
		ID:             doc.ID,
		Title:          doc.Title,
		OwnerID:        doc.OwnerID,
		ShareWith:      shares,
		ShareableLinks: links,
		Role:           role,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}
