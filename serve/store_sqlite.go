package serve

import (
	"context"
	"database/sql"
	"time"

	fleet "github.com/everydev1618/botfleet"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL so worker goroutines can read prompts while the API writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Init creates the schema tables.
func (s *SQLiteStore) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_active     INTEGER NOT NULL DEFAULT 1,
		is_admin      INTEGER NOT NULL DEFAULT 0,
		bot_token     TEXT NOT NULL DEFAULT '',
		system_prompt TEXT NOT NULL DEFAULT '',
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_files (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      INTEGER NOT NULL REFERENCES users(id),
		name         TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		path         TEXT NOT NULL,
		size         INTEGER NOT NULL DEFAULT 0,
		created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
	CREATE INDEX IF NOT EXISTS idx_user_files_user ON user_files(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a user and returns its ID.
func (s *SQLiteStore) CreateUser(username, passwordHash string, isAdmin bool) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (username, password_hash, is_admin) VALUES (?, ?, ?)`,
		username, passwordHash, isAdmin,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const userColumns = `id, username, password_hash, is_active, is_admin, bot_token, system_prompt, created_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsActive, &u.IsAdmin,
		&u.BotToken, &u.SystemPrompt, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByUsername returns a user, or sql.ErrNoRows if absent.
func (s *SQLiteStore) UserByUsername(username string) (*User, error) {
	return scanUser(s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username,
	))
}

// UserByID returns a user, or sql.ErrNoRows if absent.
func (s *SQLiteStore) UserByID(id int64) (*User, error) {
	return scanUser(s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
}

// SetUserActive enables or disables a user by name.
func (s *SQLiteStore) SetUserActive(username string, active bool) error {
	res, err := s.db.Exec(`UPDATE users SET is_active = ? WHERE username = ?`, active, username)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateProfile applies the non-nil fields of p to a user.
func (s *SQLiteStore) UpdateProfile(userID int64, p ProfileUpdate) error {
	if p.BotToken != nil {
		if _, err := s.db.Exec(`UPDATE users SET bot_token = ? WHERE id = ?`, *p.BotToken, userID); err != nil {
			return err
		}
	}
	if p.SystemPrompt != nil {
		if _, err := s.db.Exec(`UPDATE users SET system_prompt = ? WHERE id = ?`, *p.SystemPrompt, userID); err != nil {
			return err
		}
	}
	return nil
}

// InsertFile records an uploaded file.
func (s *SQLiteStore) InsertFile(f UserFile) (int64, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO user_files (user_id, name, content_type, path, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.UserID, f.Name, f.ContentType, f.Path, f.Size, f.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListFiles returns a user's uploaded files, newest first.
func (s *SQLiteStore) ListFiles(userID int64) ([]UserFile, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, name, content_type, path, size, created_at
		 FROM user_files WHERE user_id = ? ORDER BY id DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []UserFile
	for rows.Next() {
		var f UserFile
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.ContentType, &f.Path, &f.Size, &f.CreatedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// ListActiveTenants returns active users with a non-empty bot token.
func (s *SQLiteStore) ListActiveTenants(ctx context.Context) ([]fleet.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bot_token FROM users WHERE is_active = 1 AND bot_token != ''`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []fleet.Tenant
	for rows.Next() {
		var t fleet.Tenant
		if err := rows.Scan(&t.ID, &t.Token); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// SystemPrompt returns a tenant's current prompt. An empty prompt, a
// missing user, and a disabled user all read as not configured.
func (s *SQLiteStore) SystemPrompt(ctx context.Context, tenantID int64) (string, bool, error) {
	var prompt string
	err := s.db.QueryRowContext(ctx,
		`SELECT system_prompt FROM users WHERE id = ? AND is_active = 1`, tenantID,
	).Scan(&prompt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return prompt, prompt != "", nil
}
