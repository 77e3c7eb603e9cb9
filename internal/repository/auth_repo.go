package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"desalination_plant/internal/models"

	"github.com/jmoiron/sqlx"
)

// ErrUsernameTaken is returned by Create for a duplicate operator name.
var ErrUsernameTaken = errors.New("username already registered")

const (
	insertUserSQL           = `INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`
	selectUserByUsernameSQL = `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`
)

// OperatorSQLite stores HMI operator accounts.
type OperatorSQLite struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ Authorization = (*OperatorSQLite)(nil)

func NewOperatorSQLite(db *sqlx.DB) *OperatorSQLite {
	return &OperatorSQLite{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new operator account and returns its ID.
func (r *OperatorSQLite) Create(username, passwordHash string) (int, error) {
	res, err := r.db.Exec(insertUserSQL, username, passwordHash, r.now())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %q", ErrUsernameTaken, username)
		}
		return 0, fmt.Errorf("insert operator %q: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id for operator %q: %w", username, err)
	}
	return int(id), nil
}

// GetByUsername returns (nil, nil) if the operator does not exist.
func (r *OperatorSQLite) GetByUsername(username string) (*models.User, error) {
	var u models.User
	if err := r.db.Get(&u, selectUserByUsernameSQL, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select operator %q: %w", username, err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
