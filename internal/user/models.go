package user

import "time"

// User represents a registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	IsActive     bool      `json:"is_active"`
	Role         string    `json:"role,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUserInput holds the fields stored on signup. PasswordHash must
// already be a bcrypt hash.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// SignupInput is the body of a signup request.
type SignupInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// SigninInput is the body of a signin request.
type SigninInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is returned by signup and signin.
type Session struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}
