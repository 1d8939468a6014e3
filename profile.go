package auth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UserProfile is the read-only copy of the backend user tied to the
// current token.
type UserProfile struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	IsAdmin   bool       `json:"is_admin"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Role maps the admin flag onto an access level
func (p *UserProfile) Role() AccessLevel {
	if p == nil {
		return LevelPublic
	}
	if p.IsAdmin {
		return LevelAdmin
	}
	return LevelAuthenticated
}

func (p *UserProfile) String() string {
	if p == nil {
		return "<anonymous>"
	}
	return fmt.Sprintf("id=%d username=%s admin=%t", p.ID, p.Username, p.IsAdmin)
}

// decodeProfile requires id and username; anything less is treated
// like an undecodable body.
func decodeProfile(body []byte) (*UserProfile, error) {
	var raw struct {
		ID        json.Number `json:"id"`
		Username  *string     `json:"username"`
		Email     string      `json:"email"`
		IsAdmin   bool        `json:"is_admin"`
		AvatarURL string      `json:"avatar_url"`
		CreatedAt *time.Time  `json:"created_at"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, withMessage(ErrInvalidResponse, "invalid user profile", map[string]any{"error": err.Error()})
	}

	if raw.ID == "" || raw.Username == nil || strings.TrimSpace(*raw.Username) == "" {
		return nil, withMessage(ErrInvalidResponse, "user profile is missing required fields", nil)
	}

	id, err := strconv.ParseInt(raw.ID.String(), 10, 64)
	if err != nil {
		return nil, withMessage(ErrInvalidResponse, "user profile id is not an integer", nil)
	}

	return &UserProfile{
		ID:        id,
		Username:  *raw.Username,
		Email:     raw.Email,
		IsAdmin:   raw.IsAdmin,
		AvatarURL: raw.AvatarURL,
		CreatedAt: raw.CreatedAt,
	}, nil
}

// TokenResponse is returned by login and registration
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

// ResourceKind names a family of password protectable content
type ResourceKind string

const (
	ResourcePost     ResourceKind = "posts"
	ResourceLifePost ResourceKind = "life-posts"
)

// ParseResourceKind accepts the path segment or a short alias
func ParseResourceKind(s string) (ResourceKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "post", "posts":
		return ResourcePost, true
	case "life", "life-post", "life-posts":
		return ResourceLifePost, true
	default:
		return "", false
	}
}

func (k ResourceKind) String() string { return string(k) }

// ResourceMeta is the public metadata of a content item
type ResourceMeta struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Summary     string `json:"summary,omitempty"`
	IsProtected bool   `json:"is_protected"`
}

// ResourceAccessGrant is a scoped access token obtained for one resource.
// It is never persisted and never merged into the session.
type ResourceAccessGrant struct {
	Kind        ResourceKind
	ResourceID  int64
	AccessToken string
}
