// Package policy holds every authorization rule of the platform.
//
// Evaluate is a pure function of the actor, the requested action and the
// already resolved target resources. It never touches storage, so callers must
// resolve the target (and an episode's parent podcast) before asking. Roles and
// ownership are the only inputs consulted; nothing else about the actor or the
// resource influences a decision.
package policy

import "podcast-api/internal/models"

// Action enumerates the operations that can be authorized.
type Action int

const (
	ViewPodcast Action = iota + 1
	ListPodcasts
	CreatePodcast
	UpdatePodcast
	DeletePodcast
	ViewEpisode
	ListEpisodes
	CreateEpisode
	UpdateEpisode
	DeleteEpisode
	ViewUser
	ListUsers
	CreateUser
	UpdateUser
	DeleteUser
	AssignRole
)

var actionNames = map[Action]string{
	ViewPodcast:   "view_podcast",
	ListPodcasts:  "list_podcasts",
	CreatePodcast: "create_podcast",
	UpdatePodcast: "update_podcast",
	DeletePodcast: "delete_podcast",
	ViewEpisode:   "view_episode",
	ListEpisodes:  "list_episodes",
	CreateEpisode: "create_episode",
	UpdateEpisode: "update_episode",
	DeleteEpisode: "delete_episode",
	ViewUser:      "view_user",
	ListUsers:     "list_users",
	CreateUser:    "create_user",
	UpdateUser:    "update_user",
	DeleteUser:    "delete_user",
	AssignRole:    "assign_role",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Target carries the resources an action applies to. Only the fields relevant
// to the action need to be set. For CreateEpisode, Podcast is the podcast the
// episode is being added to. For UpdateEpisode and DeleteEpisode,
// EpisodePodcast is the episode's parent and may be nil when it no longer
// exists.
type Target struct {
	Podcast        *models.Podcast
	Episode        *models.Episode
	EpisodePodcast *models.Podcast
	User           *models.User
}

// Reason explains a decision.
type Reason string

const (
	Allowed           Reason = "allowed"
	DenyAnonymous     Reason = "anonymous"
	DenyRole          Reason = "role"
	DenyNotOwner      Reason = "not_owner"
	DenySelfDelete    Reason = "self_delete"
	DenyMissingTarget Reason = "missing_target"
	DenyOrphanEpisode Reason = "orphan_episode"
	DenyUnknownAction Reason = "unknown_action"
)

type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision {
	return Decision{Allowed: true, Reason: Allowed}
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Evaluate decides whether actor may perform action on target. A nil actor is
// an anonymous caller.
func Evaluate(actor *models.User, action Action, target Target) Decision {
	switch action {
	case ViewPodcast, ListPodcasts, ViewEpisode, ListEpisodes:
		return allow()
	}

	if actor == nil {
		if _, known := actionNames[action]; !known {
			return deny(DenyUnknownAction)
		}
		return deny(DenyAnonymous)
	}

	switch action {
	case CreatePodcast:
		if !canAuthor(actor.Role) {
			return deny(DenyRole)
		}
		return allow()

	case UpdatePodcast, DeletePodcast:
		if target.Podcast == nil {
			return deny(DenyMissingTarget)
		}
		return ownerOrAdministrator(actor, target.Podcast.UserID)

	case CreateEpisode:
		if target.Podcast == nil {
			return deny(DenyMissingTarget)
		}
		switch actor.Role {
		case models.RoleAdministrator:
			return allow()
		case models.RoleHost:
			if target.Podcast.UserID != actor.ID {
				return deny(DenyNotOwner)
			}
			return allow()
		case models.RoleListener:
			return deny(DenyRole)
		default:
			return deny(DenyRole)
		}

	case UpdateEpisode, DeleteEpisode:
		if target.Episode == nil {
			return deny(DenyMissingTarget)
		}
		if target.EpisodePodcast == nil || target.EpisodePodcast.ID != target.Episode.PodcastID {
			return deny(DenyOrphanEpisode)
		}
		return ownerOrAdministrator(actor, target.EpisodePodcast.UserID)

	case ViewUser, UpdateUser:
		if target.User == nil {
			return deny(DenyMissingTarget)
		}
		if target.User.ID == actor.ID {
			return allow()
		}
		return administratorOnly(actor)

	case ListUsers, CreateUser, AssignRole:
		return administratorOnly(actor)

	case DeleteUser:
		if target.User == nil {
			return deny(DenyMissingTarget)
		}
		if target.User.ID == actor.ID {
			return deny(DenySelfDelete)
		}
		return administratorOnly(actor)

	default:
		return deny(DenyUnknownAction)
	}
}

func canAuthor(role models.Role) bool {
	switch role {
	case models.RoleAdministrator, models.RoleHost:
		return true
	case models.RoleListener:
		return false
	default:
		return false
	}
}

func isAdministrator(role models.Role) bool {
	switch role {
	case models.RoleAdministrator:
		return true
	case models.RoleHost, models.RoleListener:
		return false
	default:
		return false
	}
}

func administratorOnly(actor *models.User) Decision {
	if !isAdministrator(actor.Role) {
		return deny(DenyRole)
	}
	return allow()
}

func ownerOrAdministrator(actor *models.User, ownerID string) Decision {
	if isAdministrator(actor.Role) {
		return allow()
	}
	if ownerID != "" && ownerID == actor.ID {
		return allow()
	}
	return deny(DenyNotOwner)
}
