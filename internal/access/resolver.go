// Package access decides what an actor may do with a document.
//
// Resolution is pure: it looks only at the document snapshot and the clock it
// is given. Callers load a fresh document for every request, so expired links
// and revoked shares take effect on the next call.
package access

import (
	"fmt"
	"time"

	"docsync/internal/document/model"
	"docsync/internal/domain"
)

// Actor is whoever is making a request: an authenticated user, a link
// bearer, both, or neither.
type Actor struct {
	UserID    string
	LinkToken string
}

func (a Actor) Anonymous() bool {
	return a.UserID == ""
}

// Source records which record produced a grant.
type Source int

const (
	SourceNone Source = iota
	SourceOwner
	SourceShare
	SourceLink
)

func (s Source) String() string {
	switch s {
	case SourceOwner:
		return "owner"
	case SourceShare:
		return "share"
	case SourceLink:
		return "link"
	default:
		return "none"
	}
}

type Grant struct {
	Role   model.Role
	Source Source
}

var noGrant = Grant{Role: model.RoleNone, Source: SourceNone}

// Resolve computes the effective role of actor on doc at now.
// Precedence is owner, then explicit share, then link.
func Resolve(doc *model.Document, actor Actor, now time.Time) Grant {
	if doc == nil {
		return noGrant
	}
	if actor.UserID != "" {
		if actor.UserID == doc.OwnerID {
			return Grant{Role: model.RoleOwner, Source: SourceOwner}
		}
		for _, s := range doc.ShareWith {
			if s.UserID == actor.UserID {
				return Grant{Role: s.Role, Source: SourceShare}
			}
		}
	}
	if actor.LinkToken != "" {
		for _, l := range doc.ShareableLinks {
			if l.Token == actor.LinkToken && !l.Expired(now) {
				return Grant{Role: l.Role, Source: SourceLink}
			}
		}
	}
	return noGrant
}

func (g Grant) CanRead() bool  { return g.Role.AtLeast(model.RoleViewer) }
func (g Grant) CanWrite() bool { return g.Role.AtLeast(model.RoleEditor) }
func (g Grant) IsOwner() bool  { return g.Source == SourceOwner }

// IsMember is true for the owner and explicitly shared users; link bearers
// are not members.
func (g Grant) IsMember() bool {
	return g.Source == SourceOwner || g.Source == SourceShare
}

// FindLink returns the link with token on doc. An expired link yields
// domain.ErrExpired, an unknown one domain.ErrNotFound.
func FindLink(doc *model.Document, token string, now time.Time) (*model.ShareableLink, error) {
	if doc != nil {
		for i := range doc.ShareableLinks {
			l := &doc.ShareableLinks[i]
			if l.Token != token {
				continue
			}
			if l.Expired(now) {
				return nil, fmt.Errorf("link: %w", domain.ErrExpired)
			}
			return l, nil
		}
	}
	return nil, fmt.Errorf("link: %w", domain.ErrNotFound)
}
