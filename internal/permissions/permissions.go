// Package permissions computes effective permission sets at space and
// channel scope and enforces role hierarchy.
package permissions

import "sort"

// Permission flags. Administrator is synthetic: holding it bypasses every
// other check inside its space.
const (
	Administrator    = "administrator"
	ViewChannels     = "view_channels"
	ManageChannels   = "manage_channels"
	ManageSpace      = "manage_space"
	ManageRoles      = "manage_roles"
	ManageEmojis     = "manage_emojis"
	ManageSoundboard = "manage_soundboard"
	CreateInvites    = "create_invites"
	KickMembers      = "kick_members"
	BanMembers       = "ban_members"
	ManageNicknames  = "manage_nicknames"
	ChangeNickname   = "change_nickname"
	SendMessages     = "send_messages"
	ManageMessages   = "manage_messages"
	AddReactions     = "add_reactions"
	Connect          = "connect"
	Speak            = "speak"
	Stream           = "stream"
)

// Known is the closed set of valid permission strings.
var Known = map[string]bool{
	Administrator:    true,
	ViewChannels:     true,
	ManageChannels:   true,
	ManageSpace:      true,
	ManageRoles:      true,
	ManageEmojis:     true,
	ManageSoundboard: true,
	CreateInvites:    true,
	KickMembers:      true,
	BanMembers:       true,
	ManageNicknames:  true,
	ChangeNickname:   true,
	SendMessages:     true,
	ManageMessages:   true,
	AddReactions:     true,
	Connect:          true,
	Speak:            true,
	Stream:           true,
}

// EveryoneDefaults is the permission set given to the @everyone role when a
// space is bootstrapped.
func EveryoneDefaults() []string {
	return []string{
		ViewChannels,
		SendMessages,
		AddReactions,
		CreateInvites,
		ChangeNickname,
		Connect,
		Speak,
		Stream,
	}
}

// ModeratorDefaults is the bootstrap permission set of the Moderator role.
func ModeratorDefaults() []string {
	return []string{
		ManageMessages,
		KickMembers,
		ManageNicknames,
	}
}

// AdminDefaults is the bootstrap permission set of the Admin role.
func AdminDefaults() []string {
	return []string{Administrator}
}

// Set is a permission set keyed by flag name.
type Set map[string]struct{}

func NewSet(flags ...string) Set {
	s := make(Set, len(flags))
	for _, f := range flags {
		s[f] = struct{}{}
	}
	return s
}

func FromSlice(flags []string) Set {
	return NewSet(flags...)
}

func (s Set) Has(flag string) bool {
	_, ok := s[flag]
	return ok
}

// Allows reports whether the set grants flag, honoring administrator bypass.
func (s Set) Allows(flag string) bool {
	if s.Has(Administrator) {
		return true
	}
	return s.Has(flag)
}

func (s Set) Add(flags ...string) {
	for _, f := range flags {
		s[f] = struct{}{}
	}
}

func (s Set) Remove(flags ...string) {
	for _, f := range flags {
		delete(s, f)
	}
}

func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for f := range s {
		out[f] = struct{}{}
	}
	for f := range other {
		out[f] = struct{}{}
	}
	return out
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for f := range s {
		out[f] = struct{}{}
	}
	return out
}

// Strings returns the flags sorted, for stable JSON output.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
