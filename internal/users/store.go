// internal/users/store.go
//
// SQLite-backed accounts, win counters and match history.
// Responsibilities:
//   - Signup (strict validation) and login, both bcrypt-based.
//   - Register-or-login for the websocket "reg" message: an unknown name
//     creates the account, a known name must present the same password.
//   - Win counters and the winners leaderboard.
//   - Finished match history per account.

package users

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound        = errors.New("user not found")
	ErrUsernameTaken   = errors.New("username taken")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidInput    = errors.New("name and password are required")
)

// User matches the users table shape.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	GamesPlayed  int       `json:"gamesPlayed"`
	Wins         int       `json:"wins"`
}

// Winner is one leaderboard row, in the client's update_winners shape.
type Winner struct {
	Name string `json:"name"`
	Wins int    `json:"wins"`
}

// MatchRecord is one finished match. Empty ids stand for bot seats or
// players that never held an account.
type MatchRecord struct {
	MatchID    int64
	StartedAt  time.Time
	FinishedAt time.Time
	WinnerID   string
	LoserID    string
	VsBot      bool
	Forfeit    bool
}

// MatchRow is a match as seen from one account.
type MatchRow struct {
	MatchID    int64  `json:"matchId"`
	Result     string `json:"result"` // "won" | "lost"
	VsBot      bool   `json:"vsBot"`
	Forfeit    bool   `json:"forfeit"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Create validates input, checks uniqueness, hashes the password and inserts
// a new user.
func (s *Store) Create(ctx context.Context, username, pw string) (*User, error) {
	username = normalizeUsername(username)
	if err := validateSignup(username, pw); err != nil {
		return nil, err
	}
	return s.insert(ctx, username, pw)
}

// Authenticate returns the user when username and password match.
func (s *Store) Authenticate(ctx context.Context, username, pw string) (*User, error) {
	u, err := s.FindByUsername(ctx, normalizeUsername(username))
	if err != nil {
		return nil, err
	}
	if !checkPassword(u.PasswordHash, pw) {
		return nil, ErrInvalidPassword
	}
	return u, nil
}

// Register logs in an existing account or creates a new one. The boolean
// reports whether the account was created. A known name with a different
// password yields ErrInvalidPassword together with the existing user, so the
// caller can still echo the name back.
func (s *Store) Register(ctx context.Context, username, pw string) (*User, bool, error) {
	username = normalizeUsername(username)
	if username == "" || pw == "" {
		return nil, false, ErrInvalidInput
	}
	u, err := s.FindByUsername(ctx, username)
	switch {
	case err == nil:
		if !checkPassword(u.PasswordHash, pw) {
			return u, false, ErrInvalidPassword
		}
		return u, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	u, err = s.insert(ctx, username, pw)
	if errors.Is(err, ErrUsernameTaken) {
		// lost a race with a concurrent registration
		u, err = s.Authenticate(ctx, username, pw)
		return u, false, err
	}
	return u, err == nil, err
}

func (s *Store) insert(ctx context.Context, username, pw string) (*User, error) {
	var exists int
	_ = s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE lower(username)=lower(?)`, username).Scan(&exists)
	if exists == 1 {
		return nil, ErrUsernameTaken
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	id := genID()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)`,
		id, username, string(h), now); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return &User{ID: id, Username: username, PasswordHash: string(h), CreatedAt: mustParse(now)}, nil
}

// FindByUsername and FindByID load a user row or return ErrNotFound.
func (s *Store) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash, created_at, games_played, wins
	                                  FROM users WHERE lower(username)=lower(?)`, username)
	return scanUser(row)
}

func (s *Store) FindByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash, created_at, games_played, wins
	                                  FROM users WHERE id=?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var created string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &created, &u.GamesPlayed, &u.Wins); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = mustParse(created)
	return &u, nil
}

// RecordWin adds one win to userID.
func (s *Store) RecordWin(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET wins = wins + 1 WHERE id=?`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordMatch stores a finished match and bumps games_played for every
// account that took part, within one transaction.
func (s *Store) RecordMatch(ctx context.Context, m MatchRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO matches (id, started_at, finished_at, winner_id, loser_id, vs_bot, forfeit)
	                                  VALUES (?,?,?,?,?,?,?)`,
		m.MatchID, m.StartedAt.UTC().Format(time.RFC3339), m.FinishedAt.UTC().Format(time.RFC3339),
		nullable(m.WinnerID), nullable(m.LoserID), m.VsBot, m.Forfeit); err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	for _, id := range []string{m.WinnerID, m.LoserID} {
		if id == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET games_played = games_played + 1 WHERE id=?`, id); err != nil {
			return fmt.Errorf("bump games_played: %w", err)
		}
	}
	return tx.Commit()
}

// Leaderboard returns accounts ordered by wins (desc), then name.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]Winner, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT username, wins
        FROM users
        ORDER BY wins DESC, lower(username) ASC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Winner, 0, limit)
	for rows.Next() {
		var w Winner
		if err := rows.Scan(&w.Name, &w.Wins); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// RecentMatches lists userID's latest finished matches, newest first.
func (s *Store) RecentMatches(ctx context.Context, userID string, limit int) ([]MatchRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, COALESCE(winner_id,''), vs_bot, forfeit, started_at, finished_at
        FROM matches
        WHERE winner_id=? OR loser_id=?
        ORDER BY finished_at DESC, rowid DESC
        LIMIT ?`, userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []MatchRow{}
	for rows.Next() {
		var (
			r      MatchRow
			winner string
		)
		if err := rows.Scan(&r.MatchID, &winner, &r.VsBot, &r.Forfeit, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.Result = "lost"
		if winner == userID {
			r.Result = "won"
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ------------------------------- small util --------------------------------

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// mustParse parses RFC3339 timestamps; on error returns zero time.
func mustParse(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// checkPassword is a bcrypt verifier.
func checkPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

func normalizeUsername(u string) string {
	return strings.TrimSpace(u)
}

// validateSignup enforces basic username/password rules for HTTP signup.
func validateSignup(u, p string) error {
	if len(u) < 3 || len(u) > 24 {
		return errors.New("username must be 3-24 chars")
	}
	for _, r := range u {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return errors.New("username: letters, numbers, underscore only")
		}
	}
	if len(p) < 5 || len(p) > 100 {
		return errors.New("password must be 5-100 chars")
	}
	return nil
}

// genID creates a 22-char URL-safe, crypto-random identifier (no padding).
func genID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	s := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b[:])
	if len(s) > 22 {
		return s[:22]
	}
	return s
}
