package devcloud

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// dateLayout has a fixed width so stored times sort as text.
const dateLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidSecret = errors.New("invalid secret")
)

// LandedUser is a user record as returned by get-landed-user. Fields other
// than _id and landedDate come from the record the client submitted.
type LandedUser struct {
	ID         string
	LandedDate time.Time
	Fields     map[string]any
}

func (u LandedUser) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(u.Fields)+2)
	for k, v := range u.Fields {
		m[k] = v
	}
	m["_id"] = u.ID
	m["landedDate"] = u.LandedDate.UTC().Format(dateLayout)
	return json.Marshal(m)
}

// Store persists apps and users in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// EnsureApp registers appID with secret, replacing the stored hash when the
// app already exists.
func (s *Store) EnsureApp(ctx context.Context, appID, secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing secret: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO apps (app_id, secret_hash) VALUES (?, ?)
		ON CONFLICT (app_id) DO UPDATE SET secret_hash = excluded.secret_hash
	`, appID, string(hash))
	if err != nil {
		return fmt.Errorf("saving app %s: %w", appID, err)
	}
	return nil
}

// VerifyApp returns ErrNotFound for an unknown app and ErrInvalidSecret
// when secret does not match.
func (s *Store) VerifyApp(ctx context.Context, appID, secret string) error {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT secret_hash FROM apps WHERE app_id = ?
	`, appID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return ErrInvalidSecret
	}
	return nil
}

// MarkLanded upserts the user and stamps the landing time. fields replace
// the stored record when non-empty.
func (s *Store) MarkLanded(ctx context.Context, id string, fields map[string]any) (LandedUser, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	delete(fields, "_id")
	delete(fields, "landedDate")
	data, err := json.Marshal(fields)
	if err != nil {
		return LandedUser{}, fmt.Errorf("encoding user: %w", err)
	}

	landed := s.now().UTC()
	var stored string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, data, landed_at) VALUES (?, jsonb(?), ?)
		ON CONFLICT (id) DO UPDATE SET
			data = CASE WHEN json(excluded.data) = '{}' THEN users.data ELSE excluded.data END,
			landed_at = excluded.landed_at
		RETURNING json(data)
	`, id, string(data), landed.Format(dateLayout)).Scan(&stored)
	if err != nil {
		return LandedUser{}, fmt.Errorf("marking %s landed: %w", id, err)
	}

	u := LandedUser{ID: id, LandedDate: landed}
	if err := json.Unmarshal([]byte(stored), &u.Fields); err != nil {
		return LandedUser{}, fmt.Errorf("decoding user %s: %w", id, err)
	}
	return u, nil
}

// ListLanded returns one page of landed users ordered by landing time and
// the total number of landed users.
func (s *Store) ListLanded(ctx context.Context, limit, skip int, desc bool) ([]LandedUser, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users WHERE landed_at IS NOT NULL
	`).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "ASC"
	if desc {
		order = "DESC"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, json(data), landed_at FROM users
		WHERE landed_at IS NOT NULL
		ORDER BY landed_at `+order+`, id
		LIMIT ? OFFSET ?
	`, limit, skip)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []LandedUser{}
	for rows.Next() {
		var (
			u            LandedUser
			data, landed string
		)
		if err := rows.Scan(&u.ID, &data, &landed); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal([]byte(data), &u.Fields); err != nil {
			return nil, 0, fmt.Errorf("decoding user %s: %w", u.ID, err)
		}
		if u.LandedDate, err = time.Parse(dateLayout, landed); err != nil {
			return nil, 0, fmt.Errorf("parsing landing time of %s: %w", u.ID, err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}
