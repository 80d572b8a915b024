package serve

import (
	"context"
	"time"

	fleet "github.com/everydev1618/botfleet"
)

// Store persists tenants (users) and their uploaded files. It doubles as
// the fleet's snapshot source and tenant-data collaborator, so the
// supervisor and every worker read tenant state straight from it.
type Store interface {
	// Init creates tables if they don't exist.
	Init() error

	// Close closes the store.
	Close() error

	// CreateUser inserts a user and returns its ID.
	CreateUser(username, passwordHash string, isAdmin bool) (int64, error)

	// UserByUsername returns a user, or sql.ErrNoRows if absent.
	UserByUsername(username string) (*User, error)

	// UserByID returns a user, or sql.ErrNoRows if absent.
	UserByID(id int64) (*User, error)

	// SetUserActive enables or disables a user by name.
	SetUserActive(username string, active bool) error

	// UpdateProfile applies the non-nil fields of p to a user.
	UpdateProfile(userID int64, p ProfileUpdate) error

	// InsertFile records an uploaded file.
	InsertFile(f UserFile) (int64, error)

	// ListFiles returns a user's uploaded files, newest first.
	ListFiles(userID int64) ([]UserFile, error)

	// ListActiveTenants returns active users with a non-empty bot token,
	// i.e. the desired worker set. Implements fleet.SnapshotSource.
	ListActiveTenants(ctx context.Context) ([]fleet.Tenant, error)

	// SystemPrompt returns a tenant's current prompt, fetched fresh.
	// Implements fleet.TenantData.
	SystemPrompt(ctx context.Context, tenantID int64) (string, bool, error)
}

// User is a registered tenant account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsAdmin      bool      `json:"is_admin"`
	BotToken     string    `json:"bot_token,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProfileUpdate is a partial profile change; nil fields are left untouched.
type ProfileUpdate struct {
	BotToken     *string
	SystemPrompt *string
}

// UserFile is a persisted upload record.
type UserFile struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"-"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"-"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}
