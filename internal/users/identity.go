package users

import "strings"

// RoleAdmin grants scenario group management.
const RoleAdmin = "admin"

// Identity maps a provider login to the canonical player id used by every
// drill table.
type Identity struct {
	Provider          string `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject           string `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID            string `gorm:"column:user_id;size:190;not null;index"`
	Email             string `gorm:"column:user_email;size:320"`
	DisplayName       string `gorm:"column:user_display_name;size:320"`
	LastSeenAtSeconds int64  `gorm:"column:last_seen_at_s;not null"`
	CreatedAtSeconds  int64  `gorm:"column:created_at_s;not null"`
}

// TableName exposes the table backing player identities.
func (Identity) TableName() string {
	return "player_identities"
}

// Player is the resolved caller of a request.
type Player struct {
	ID          string
	Email       string
	DisplayName string
	Roles       []string
}

// HasRole reports whether the player carries the role.
func (p Player) HasRole(role string) bool {
	for _, candidate := range p.Roles {
		if strings.EqualFold(candidate, role) {
			return true
		}
	}
	return false
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
