package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of account roles. The string values are the ones
// exchanged on the wire and persisted by every datastore.
type Role string

const (
	RoleAdministrator Role = "administrateur"
	RoleHost          Role = "animateur"
	RoleListener      Role = "utilisateur"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleHost, RoleListener:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// ParseRole normalises the provided value and returns the matching role.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}

type User struct {
	ID           string    `json:"id"`
	Nom          string    `json:"nom"`
	Prenom       string    `json:"prenom"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FullName joins the first and last name the way listings display hosts.
func (u User) FullName() string {
	return strings.TrimSpace(u.Prenom + " " + u.Nom)
}

type Podcast struct {
	ID          string    `json:"id"`
	Titre       string    `json:"titre"`
	Categorie   string    `json:"categorie"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Episode belongs to exactly one podcast; its effective owner is the owner of
// that podcast.
type Episode struct {
	ID          string    `json:"id"`
	Titre       string    `json:"titre"`
	Description string    `json:"description,omitempty"`
	Audio       string    `json:"audio"`
	PodcastID   string    `json:"podcastId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
