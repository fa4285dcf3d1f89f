package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"docsync/internal/document/model"
	"docsync/pkg/logger"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// PostgresStore persists documents in the relational schema created by
// database.EnsureSchema. Shares, links and versions live in child tables
// that cascade on document deletion.
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

// Insert stores a freshly created document row. Shares, links and versions
// are added through their own methods.
func (r *PostgresStore) Insert(ctx context.Context, doc *model.Document) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO documents (id, title, content, owner_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.Title, doc.Content, doc.OwnerID, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
	}
	return err
}

func (r *PostgresStore) FindByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, title, content, owner_id, created_at, updated_at FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.Title, &doc.Content, &doc.OwnerID, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("document", id)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load document %s: %v", id, err)
		return nil, err
	}

	if doc.ShareWith, err = r.loadShares(ctx, id); err != nil {
		return nil, err
	}
	if doc.ShareableLinks, err = r.loadLinks(ctx, id); err != nil {
		return nil, err
	}
	if doc.Versions, err = r.loadVersions(ctx, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *PostgresStore) loadShares(ctx context.Context, docID string) ([]model.Share, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT user_id, role FROM document_shares WHERE document_id = $1 ORDER BY user_id`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to load shares for doc %s: %v", docID, err)
		return nil, err
	}
	defer rows.Close()

	shares := []model.Share{}
	for rows.Next() {
		var s model.Share
		if err := rows.Scan(&s.UserID, &s.Role); err != nil {
			return nil, err
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

func (r *PostgresStore) loadLinks(ctx context.Context, docID string) ([]model.ShareableLink, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT token, role, created_at, expires_at FROM shareable_links WHERE document_id = $1 ORDER BY created_at`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to load links for doc %s: %v", docID, err)
		return nil, err
	}
	defer rows.Close()

	links := []model.ShareableLink{}
	for rows.Next() {
		var (
			l       model.ShareableLink
			expires sql.NullTime
		)
		if err := rows.Scan(&l.Token, &l.Role, &l.CreatedAt, &expires); err != nil {
			return nil, err
		}
		if expires.Valid {
			t := expires.Time
			l.ExpiresAt = &t
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (r *PostgresStore) loadVersions(ctx context.Context, docID string) ([]model.Version, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, content, author_id, created_at FROM document_versions WHERE document_id = $1 ORDER BY seq`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to load versions for doc %s: %v", docID, err)
		return nil, err
	}
	defer rows.Close()

	versions := []model.Version{}
	for rows.Next() {
		var (
			v      model.Version
			author sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.Content, &author, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.AuthorID = author.String
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (r *PostgresStore) FindByLinkToken(ctx context.Context, token string) (*model.Document, error) {
	var docID string
	err := r.DB.QueryRowContext(ctx, `SELECT document_id FROM shareable_links WHERE token = $1`, token).Scan(&docID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("link", token)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to look up link: %v", err)
		return nil, err
	}
	return r.FindByID(ctx, docID)
}

func (r *PostgresStore) FindByOwner(ctx context.Context, ownerID string) ([]model.DocumentSummary, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, title, owner_id, created_at, updated_at FROM documents WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get documents for user %s: %v", ownerID, err)
		return nil, err
	}
	defer rows.Close()

	docs := []model.DocumentSummary{}
	for rows.Next() {
		var d model.DocumentSummary
		if err := rows.Scan(&d.ID, &d.Title, &d.OwnerID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresStore) UpdateContent(ctx context.Context, id, content string, updatedAt time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE documents SET content = $1, updated_at = $2 WHERE id = $3`, content, updatedAt, id)
	if err != nil {
		logger.Sugar.Errorf("Failed to update content for doc %s: %v", id, err)
		return err
	}
	return expectRow(res, "document", id)
}

func (r *PostgresStore) AppendVersion(ctx context.Context, docID string, v model.Version, keep int) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Appends to one document run one at a time so the trim below always
	// sees every other committed version.
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = $1 FOR UPDATE`, docID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("document", docID)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to lock doc %s for versioning: %v", docID, err)
		return err
	}

	author := sql.NullString{String: v.AuthorID, Valid: v.AuthorID != ""}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO document_versions (id, document_id, content, author_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		v.ID, docID, v.Content, author, v.CreatedAt)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return notFound("document", docID)
		}
		logger.Sugar.Errorf("Failed to append version to doc %s: %v", docID, err)
		return err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM document_versions
		WHERE document_id = $1 AND seq NOT IN (
			SELECT seq FROM document_versions WHERE document_id = $1 ORDER BY seq DESC LIMIT $2
		)`, docID, keep)
	if err != nil {
		logger.Sugar.Errorf("Failed to trim versions of doc %s: %v", docID, err)
		return err
	}
	return tx.Commit()
}

func (r *PostgresStore) PutShare(ctx context.Context, docID string, share model.Share) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO document_shares (document_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (document_id, user_id) DO UPDATE SET role = EXCLUDED.role`, docID, share.UserID, share.Role)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return notFound("document", docID)
		}
		logger.Sugar.Errorf("Failed to share doc %s with %s: %v", docID, share.UserID, err)
	}
	return err
}

func (r *PostgresStore) RemoveShare(ctx context.Context, docID, userID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM document_shares WHERE document_id = $1 AND user_id = $2`, docID, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to revoke share of doc %s for %s: %v", docID, userID, err)
		return err
	}
	return expectRow(res, "share", userID)
}

func (r *PostgresStore) AddLink(ctx context.Context, docID string, link model.ShareableLink) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO shareable_links (token, document_id, role, created_at, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		link.Token, docID, link.Role, link.CreatedAt, link.ExpiresAt)
	switch {
	case err == nil:
		return nil
	case pgCode(err) == pgUniqueViolation:
		return ErrTokenTaken
	case pgCode(err) == pgForeignKeyViolation:
		return notFound("document", docID)
	default:
		logger.Sugar.Errorf("Failed to add link to doc %s: %v", docID, err)
		return err
	}
}

func (r *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete doc %s: %v", id, err)
		return err
	}
	return expectRow(res, "document", id)
}

func (r *PostgresStore) InsertComment(ctx context.Context, c *model.Comment) error {
	parent := sql.NullString{String: c.ParentCommentID, Valid: c.ParentCommentID != ""}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO comments (id, document_id, section_id, author_id, text, parent_comment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.DocumentID, c.SectionID, c.AuthorID, c.Text, parent, c.CreatedAt)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return notFound("document", c.DocumentID)
		}
		logger.Sugar.Errorf("Failed to add comment to doc %s: %v", c.DocumentID, err)
	}
	return err
}

const commentColumns = `id, document_id, section_id, author_id, text, parent_comment_id, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanComment(s scanner) (model.Comment, error) {
	var (
		c      model.Comment
		parent sql.NullString
	)
	err := s.Scan(&c.ID, &c.DocumentID, &c.SectionID, &c.AuthorID, &c.Text, &parent, &c.CreatedAt)
	c.ParentCommentID = parent.String
	return c, err
}

func (r *PostgresStore) FindComment(ctx context.Context, id string) (*model.Comment, error) {
	c, err := scanComment(r.DB.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("comment", id)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load comment %s: %v", id, err)
		return nil, err
	}
	return &c, nil
}

func (r *PostgresStore) FindComments(ctx context.Context, docID, sectionID string) ([]model.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+commentColumns+` FROM comments
		WHERE document_id = $1 AND ($2 = '' OR section_id = $2) ORDER BY created_at ASC`, docID, sectionID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get comments for doc %s: %v", docID, err)
		return nil, err
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// DeleteComment relies on the parent_comment_id foreign key cascading to replies.
func (r *PostgresStore) DeleteComment(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete comment %s: %v", id, err)
		return err
	}
	return expectRow(res, "comment", id)
}

func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}
