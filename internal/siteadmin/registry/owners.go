package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmailInUse is returned when an owner account already exists for an email.
var ErrEmailInUse = errors.New("email already in use")

// CreateOwnerWithSite creates an owner account with a bcrypt hash of password
// and writes s in the same transaction. Neither row is kept if either write
// fails, so a failed registration can be retried with the same email.
func (r *SiteRegistry) CreateOwnerWithSite(ctx context.Context, o *Owner, password string, s *Site) error {
	if o == nil {
		return fmt.Errorf("owner is nil")
	}
	if s == nil {
		return fmt.Errorf("site is nil")
	}
	o.Email = strings.ToLower(strings.TrimSpace(o.Email))
	if o.Email == "" {
		return fmt.Errorf("owner email is empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash owner password: %w", err)
	}
	o.PasswordHash = string(hash)
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin owner transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertOwner(ctx, tx, o); err != nil {
		return err
	}
	if err := putSite(ctx, tx, s); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit owner transaction: %w", err)
	}
	return nil
}

func insertOwner(ctx context.Context, ex execer, o *Owner) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO owners (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		o.ID, o.Email, o.PasswordHash, o.CreatedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: owners.email") {
			return ErrEmailInUse
		}
		return fmt.Errorf("create owner: %w", err)
	}
	return nil
}

// GetOwnerByEmail retrieves an owner by email. It returns (nil, nil) when no
// owner matches.
func (r *SiteRegistry) GetOwnerByEmail(ctx context.Context, email string) (*Owner, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.db.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at FROM owners WHERE email = ?`, email)

	var o Owner
	var createdAt int64
	if err := row.Scan(&o.ID, &o.Email, &o.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan owner: %w", err)
	}
	o.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &o, nil
}
