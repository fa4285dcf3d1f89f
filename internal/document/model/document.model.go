package model

import (
	"time"
)

// Role is the effective permission an actor holds on a document.
type Role string

const (
	RoleNone   Role = "None"
	RoleViewer Role = "Viewer"
	RoleEditor Role = "Editor"
	RoleOwner  Role = "Owner"
)

func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r is as strong as min.
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank()
}

// Grantable reports whether r may be handed out through sharing or a link.
func (r Role) Grantable() bool {
	return r == RoleViewer || r == RoleEditor
}

type Share struct {
	UserID string `json:"userId" bson:"userId"`
	Role   Role   `json:"role" bson:"role"`
}

type ShareableLink struct {
	Token     string     `json:"token" bson:"token"`
	Role      Role       `json:"role" bson:"role"`
	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
}

// Expired reports whether the link is past its expiry at now. Links without
// an expiry never expire.
func (l ShareableLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

type Version struct {
	ID        string    `json:"id" bson:"id"`
	Content   string    `json:"content" bson:"content"`
	AuthorID  string    `json:"authorId,omitempty" bson:"authorId,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

type VersionSummary struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Document struct {
	ID             string          `json:"id" bson:"_id"`
	Title          string          `json:"title" bson:"title"`
	Content        string          `json:"content" bson:"content"`
	OwnerID        string          `json:"ownerId" bson:"ownerId"`
	ShareWith      []Share         `json:"shareWith" bson:"shareWith"`
	ShareableLinks []ShareableLink `json:"shareableLinks" bson:"shareableLinks"`
	Versions       []Version       `json:"versions" bson:"versions"`
	CreatedAt      time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// TrimVersions keeps the newest keep versions of a creation-ordered history.
func TrimVersions(versions []Version, keep int) []Version {
	if keep <= 0 {
		return versions[:0]
	}
	if len(versions) <= keep {
		return versions
	}
	trimmed := make([]Version, keep)
	copy(trimmed, versions[len(versions)-keep:])
	return trimmed
}

type Comment struct {
	ID              string    `json:"id" bson:"_id"`
	DocumentID      string    `json:"documentId" bson:"documentId"`
	SectionID       string    `json:"sectionId" bson:"sectionId"`
	AuthorID        string    `json:"authorId" bson:"authorId"`
	Text            string    `json:"text" bson:"text"`
	ParentCommentID string    `json:"parentCommentId,omitempty" bson:"parentCommentId,omitempty"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
}

// DocumentSummary is a document listing entry; content is never included.
type DocumentSummary struct {
	ID        string    `json:"id" bson:"_id"`
	Title     string    `json:"title" bson:"title"`
	OwnerID   string    `json:"ownerId" bson:"ownerId"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

type DocumentMetadata struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	OwnerID        string          `json:"ownerId"`
	ShareWith      []Share         `json:"shareWith"`
	ShareableLinks []ShareableLink `json:"shareableLinks"`
	Role           Role            `json:"role"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type ContentView struct {
	DocumentID string    `json:"documentId"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Role       Role      `json:"role"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SaveResult acknowledges a write. It never carries content.
type SaveResult struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateDocRequest struct {
	Title string `json:"title"`
}

type SaveDocRequest struct {
	Content *string `json:"content"`
}

type CreateLinkRequest struct {
	Role      Role       `json:"role"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type ShareRequest struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

type CommentRequest struct {
	SectionID string `json:"sectionId"`
	Text      string `json:"text"`
}

type ReplyRequest struct {
	Text string `json:"text"`
}
