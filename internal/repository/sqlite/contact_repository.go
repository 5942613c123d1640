package sqlite

import (
	"context"
	"fmt"
	"time"

	"anima/internal/model"
)

// ContactRepository implements repository.ContactRepository for SQLite.
type ContactRepository struct {
	db *DB
}

// NewContactRepository creates a new SQLite contact repository.
func NewContactRepository(db *DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// Insert stores a contact message.
func (r *ContactRepository) Insert(ctx context.Context, msg *model.ContactMessage) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO contact_messages (name, email, subject, message, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.Name, msg.Email, msg.Subject, msg.Message, msg.Body, msg.CreatedAt.UTC().Format(timestampLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to insert contact message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read contact message id: %w", err)
	}
	msg.ID = id
	return id, nil
}

// Count returns the number of stored messages.
func (r *ContactRepository) Count(ctx context.Context) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM contact_messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count contact messages: %w", err)
	}
	return count, nil
}
