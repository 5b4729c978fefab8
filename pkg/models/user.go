package models

// User is an authenticated chat user.
type User struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	ProfileImage *string `json:"profile_image"`
}

// LoginRequest is the credential payload for password login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token and the authenticated user.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse acknowledges account creation.
type RegisterResponse struct {
	Message string `json:"message"`
	User    User   `json:"user"`
}
