package stubbackend

import (
	"time"

	"github.com/uptrace/bun"
)

// User is an account known to the stub backend
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int64      `bun:"id,pk,autoincrement" json:"id"`
	Username     string     `bun:"username,notnull,unique" json:"username"`
	Email        string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash string     `bun:"password_hash,notnull" json:"-"`
	IsAdmin      bool       `bun:"is_admin,notnull,default:false" json:"is_admin"`
	AvatarURL    *string    `bun:"avatar_url" json:"avatar_url"`
	CreatedAt    *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Role is the claim value for the user
func (u *User) Role() string {
	if u.IsAdmin {
		return "admin"
	}
	return "member"
}

// Resource is a post or life post, optionally password protected
type Resource struct {
	bun.BaseModel `bun:"table:resources,alias:r"`

	Kind         string `bun:"kind,pk" json:"-"`
	ID           int64  `bun:"id,pk" json:"id"`
	Title        string `bun:"title,notnull" json:"title"`
	Summary      string `bun:"summary" json:"summary"`
	Content      string `bun:"content" json:"-"`
	IsProtected  bool   `bun:"is_protected,notnull,default:false" json:"is_protected"`
	PasswordHash string `bun:"password_hash" json:"-"`
}
