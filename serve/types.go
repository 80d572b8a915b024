package serve

// --- API Request/Response Types ---

// TokenResponse is returned by the login endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// LoginRequest carries credentials for the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateUserRequest is the admin user-creation payload.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

// CreateUserResponse reports the new user's ID.
type CreateUserResponse struct {
	UserID int64 `json:"user_id"`
}

// ProfileResponse is the API representation of the caller's account.
type ProfileResponse struct {
	Username     string `json:"username"`
	IsAdmin      bool   `json:"is_admin"`
	BotToken     string `json:"bot_token"`
	SystemPrompt string `json:"system_prompt"`
}

// ProfileUpdateRequest is a partial profile change; omitted fields are left
// untouched.
type ProfileUpdateRequest struct {
	BotToken     *string `json:"bot_token"`
	SystemPrompt *string `json:"system_prompt"`
}

// AskRequest carries a one-off prompt for the caller's bot persona.
type AskRequest struct {
	Prompt string `json:"prompt"`
}

// AskResponse is the completion answer.
type AskResponse struct {
	Answer string `json:"answer"`
}

// FileResponse describes one uploaded file.
type FileResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	CreatedAt   string `json:"created_at"`
}

// ErrorResponse is the generic error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
