package model

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"docsync/internal/domain"
)

const (
	MaxTitleLength   = 200
	MaxCommentLength = 5000
)

var grantableRoles = []interface{}{RoleViewer, RoleEditor}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", err.Error(), domain.ErrInvalidInput)
}

func (r *CreateDocRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, MaxTitleLength)),
	))
}

func (r *SaveDocRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.NotNil),
	))
}

func (r *CreateLinkRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.Role, validation.Required, validation.In(grantableRoles...)),
	))
}

func (r *ShareRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Role, validation.Required, validation.In(grantableRoles...)),
	))
}

func (r *CommentRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.SectionID, validation.Required),
		validation.Field(&r.Text, validation.Required, validation.Length(1, MaxCommentLength)),
	))
}

func (r *ReplyRequest) Validate() error {
	return invalid(validation.ValidateStruct(r,
		validation.Field(&r.Text, validation.Required, validation.Length(1, MaxCommentLength)),
	))
}
