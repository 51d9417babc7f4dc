package store

import (
	"time"

	"devconnect/internal/access"
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     int64     `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	// Role is the requesting user's role when the project is listed for them.
	Role access.Role `json:"role,omitempty"`
}

type Member struct {
	UserID   int64        `json:"user_id"`
	Username string       `json:"username"`
	Email    string       `json:"email"`
	Role     access.Role  `json:"role"`
	Title    access.Title `json:"title"`
}
