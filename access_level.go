package auth

// AccessLevel is the minimum privilege a route requires
type AccessLevel string

const (
	// LevelPublic needs no session
	LevelPublic AccessLevel = "public"
	// LevelAuthenticated needs a resolved user
	LevelAuthenticated AccessLevel = "authenticated"
	// LevelAdmin needs a resolved administrator
	LevelAdmin AccessLevel = "admin"
)

var levelRank = map[AccessLevel]int{
	LevelPublic:        0,
	LevelAuthenticated: 1,
	LevelAdmin:         2,
}

// IsValid checks if the level is one of the predefined levels
func (l AccessLevel) IsValid() bool {
	_, ok := levelRank[l]
	return ok
}

// IsAtLeast checks if this level is at least the minimum required level
func (l AccessLevel) IsAtLeast(min AccessLevel) bool {
	current, ok := levelRank[l]
	if !ok {
		return false
	}
	required, ok := levelRank[min]
	if !ok {
		return false
	}
	return current >= required
}

// ParseAccessLevel parses a level, defaulting to public
func ParseAccessLevel(s string) (AccessLevel, bool) {
	l := AccessLevel(s)
	if l.IsValid() {
		return l, true
	}
	return LevelPublic, false
}
