package events

import "strings"

// Gateway intents. A session's intent set gates which event families it
// receives; privileged intents additionally gate member/presence payloads.
const (
	IntentSpaces           = "spaces"
	IntentMessages         = "messages"
	IntentMessageContent   = "message_content"
	IntentMessageReactions = "message_reactions"
	IntentMessageTyping    = "message_typing"
	IntentMembers          = "members"
	IntentPresences        = "presences"
	IntentVoiceStates      = "voice_states"
	IntentModeration       = "moderation"
	IntentEmojis           = "emojis"
)

// KnownIntents is the closed set accepted at IDENTIFY.
var KnownIntents = map[string]bool{
	IntentSpaces:           true,
	IntentMessages:         true,
	IntentMessageContent:   true,
	IntentMessageReactions: true,
	IntentMessageTyping:    true,
	IntentMembers:          true,
	IntentPresences:        true,
	IntentVoiceStates:      true,
	IntentModeration:       true,
	IntentEmojis:           true,
}

// PrivilegedIntents require an out-of-band grant. Grants are configured per
// application outside this server, so they resolve to allowed here.
var PrivilegedIntents = map[string]bool{
	IntentMembers:        true,
	IntentPresences:      true,
	IntentMessageContent: true,
}

// Event type names carried on the bus and over the gateway.
const (
	TypeMessageCreate     = "message.create"
	TypeMessageUpdate     = "message.update"
	TypeMessageDelete     = "message.delete"
	TypeMessageBulkDelete = "message.bulk_delete"
	TypeChannelCreate     = "channel.create"
	TypeChannelUpdate     = "channel.update"
	TypeChannelDelete     = "channel.delete"
	TypeSpaceUpdate       = "space.update"
	TypeSpaceDelete       = "space.delete"
	TypeRoleCreate        = "role.create"
	TypeRoleUpdate        = "role.update"
	TypeRoleDelete        = "role.delete"
	TypeMemberJoin        = "member.join"
	TypeMemberUpdate      = "member.update"
	TypeMemberLeave       = "member.leave"
	TypeMemberChunk       = "member.chunk"
	TypeBanCreate         = "ban.create"
	TypeBanDelete         = "ban.delete"
	TypeInviteCreate      = "invite.create"
	TypeInviteDelete      = "invite.delete"
	TypeReactionAdd       = "reaction.add"
	TypeReactionRemove    = "reaction.remove"
	TypeReactionClear     = "reaction.remove_all"
	TypeTypingStart       = "typing.start"
	TypePresenceUpdate    = "presence.update"
	TypeVoiceStateUpdate  = "voice.state_update"
	TypeVoiceServerUpdate = "voice.server_update"
	TypeVoiceSignal       = "voice.signal"
	TypeEmojiCreate       = "emoji.create"
	TypeEmojiUpdate       = "emoji.update"
	TypeEmojiDelete       = "emoji.delete"
	TypeSoundboardCreate  = "soundboard.create"
	TypeSoundboardUpdate  = "soundboard.update"
	TypeSoundboardDelete  = "soundboard.delete"
	TypeInteractionCreate = "interaction.create"
	TypeReady             = "ready"
)

// IntentFor maps an event type to the intent a session must hold to receive
// it. Empty string means always delivered. Families without a mapping
// (soundboard, interactions) normalize to always delivered.
func IntentFor(eventType string) string {
	if eventType == TypeTypingStart {
		return IntentMessageTyping
	}
	family := eventType
	if i := strings.IndexByte(eventType, '.'); i > 0 {
		family = eventType[:i]
	}
	switch family {
	case "message":
		return IntentMessages
	case "member":
		return IntentMembers
	case "space", "channel", "role", "invite":
		return IntentSpaces
	case "reaction":
		return IntentMessageReactions
	case "presence":
		return IntentPresences
	case "voice":
		return IntentVoiceStates
	case "ban":
		return IntentModeration
	case "emoji":
		return IntentEmojis
	default:
		return ""
	}
}

// Event is a domain event broadcast to gateway sessions. SpaceID scopes the
// event to members of one space; TargetUserIDs narrows it to specific users
// and takes precedence over SpaceID during fan-out.
type Event struct {
	Type          string
	SpaceID       string
	TargetUserIDs []string
	Intent        string
	Payload       any
}

// New builds an event with its intent derived from the type.
func New(eventType, spaceID string, payload any) Event {
	return Event{
		Type:    eventType,
		SpaceID: spaceID,
		Intent:  IntentFor(eventType),
		Payload: payload,
	}
}

// NewTargeted builds a user-targeted event.
func NewTargeted(eventType string, userIDs []string, payload any) Event {
	return Event{
		Type:          eventType,
		TargetUserIDs: userIDs,
		Intent:        IntentFor(eventType),
		Payload:       payload,
	}
}
