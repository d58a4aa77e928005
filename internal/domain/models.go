package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    *string   `json:"avatar_url,omitempty"`
	Bio          *string   `json:"bio,omitempty"`
	IsBot        bool      `json:"is_bot"`
	IsAdmin      bool      `json:"is_admin"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Application struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	BotUserID   string    `json:"bot_user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Token is a stored credential row. Raw tokens are never persisted; Hash is
// the lowercase hex SHA-256 of the raw token.
type Token struct {
	Hash      string     `json:"-"`
	UserID    string     `json:"user_id"`
	Bot       bool       `json:"bot"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // nil for bot tokens
	CreatedAt time.Time  `json:"created_at"`
}

type Space struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description,omitempty"`
	IconURL     *string   `json:"icon_url,omitempty"`
	OwnerID     string    `json:"owner_id"`
	Public      bool      `json:"public"`
	VoiceRegion *string   `json:"voice_region,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Role struct {
	ID          string    `json:"id"`
	SpaceID     string    `json:"space_id"`
	Name        string    `json:"name"`
	Color       *string   `json:"color,omitempty"`
	Position    int       `json:"position"`
	Permissions []string  `json:"permissions"`
	Managed     bool      `json:"managed"` // @everyone and bot-managed roles
	CreatedAt   time.Time `json:"created_at"`
}

type Member struct {
	SpaceID  string    `json:"space_id"`
	UserID   string    `json:"user_id"`
	Nickname *string   `json:"nickname,omitempty"`
	RoleIDs  []string  `json:"role_ids"`
	JoinedAt time.Time `json:"joined_at"`
	User     *User     `json:"user,omitempty"`
}

const (
	ChannelTypeText    = "text"
	ChannelTypeVoice   = "voice"
	ChannelTypeDM      = "dm"
	ChannelTypeGroupDM = "group_dm"
)

type Channel struct {
	ID            string    `json:"id"`
	SpaceID       *string   `json:"space_id,omitempty"` // nil for DM channels
	Type          string    `json:"type"`               // text, voice, dm, group_dm
	Name          string    `json:"name"`
	Topic         *string   `json:"topic,omitempty"`
	Position      int       `json:"position"`
	ParentID      *string   `json:"parent_id,omitempty"`
	LastMessageID *string   `json:"last_message_id,omitempty"`
	RecipientIDs  []string  `json:"recipient_ids,omitempty"` // DM participants
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	OverwriteTargetRole   = "role"
	OverwriteTargetMember = "member"
)

type PermissionOverwrite struct {
	ChannelID  string   `json:"channel_id"`
	TargetID   string   `json:"target_id"`
	TargetType string   `json:"target_type"` // role, member
	Allow      []string `json:"allow"`
	Deny       []string `json:"deny"`
}

type Message struct {
	ID        string          `json:"id"`
	ChannelID string          `json:"channel_id"`
	AuthorID  string          `json:"author_id"`
	Content   string          `json:"content"`
	ReplyToID *string         `json:"reply_to_id,omitempty"`
	ThreadID  *string         `json:"thread_id,omitempty"`
	Pinned    bool            `json:"pinned"`
	EditedAt  *time.Time      `json:"edited_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Author    *User           `json:"author,omitempty"`
	Reactions []ReactionCount `json:"reactions,omitempty"`
}

type ReactionCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

type Invite struct {
	Code      string     `json:"code"`
	SpaceID   string     `json:"space_id"`
	ChannelID *string    `json:"channel_id,omitempty"`
	InviterID string     `json:"inviter_id"`
	MaxUses   int        `json:"max_uses"` // 0 = unlimited
	Uses      int        `json:"uses"`
	MaxAgeSec int        `json:"max_age"` // 0 = never expires
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type Ban struct {
	SpaceID   string    `json:"space_id"`
	UserID    string    `json:"user_id"`
	Reason    *string   `json:"reason,omitempty"`
	BannedBy  string    `json:"banned_by"`
	CreatedAt time.Time `json:"created_at"`
	User      *User     `json:"user,omitempty"`
}

type Emoji struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"space_id"`
	Name      string    `json:"name"`
	CreatorID string    `json:"creator_id"`
	Path      string    `json:"path"`
	Animated  bool      `json:"animated"`
	CreatedAt time.Time `json:"created_at"`
}

type SoundboardSound struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"space_id"`
	Name      string    `json:"name"`
	CreatorID string    `json:"creator_id"`
	Path      string    `json:"path"`
	Volume    float64   `json:"volume"`
	EmojiName *string   `json:"emoji_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	NodeStatusOnline  = "online"
	NodeStatusOffline = "offline"
)

type SfuNode struct {
	ID            string    `json:"id"`
	Endpoint      string    `json:"endpoint"`
	Region        string    `json:"region"`
	Capacity      int       `json:"capacity"`
	CurrentLoad   int       `json:"current_load"`
	Status        string    `json:"status"` // online, offline
	LastHeartbeat time.Time `json:"last_heartbeat"`
	CreatedAt     time.Time `json:"created_at"`
}

type VoiceState struct {
	UserID     string    `json:"user_id"`
	SpaceID    string    `json:"space_id"`
	ChannelID  string    `json:"channel_id"`
	SessionID  string    `json:"session_id"`
	SelfMute   bool      `json:"self_mute"`
	SelfDeaf   bool      `json:"self_deaf"`
	SelfVideo  bool      `json:"self_video"`
	SelfStream bool      `json:"self_stream"`
	JoinedAt   time.Time `json:"joined_at"`
}

const (
	PresenceOnline    = "online"
	PresenceIdle      = "idle"
	PresenceDnd       = "dnd"
	PresenceInvisible = "invisible"
	PresenceOffline   = "offline"
)

type Presence struct {
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"` // online, idle, dnd, invisible, offline
	Activities []string  `json:"activities,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Principal is the authenticated caller resolved from an Authorization
// header.
type Principal struct {
	UserID string `json:"user_id"`
	Bot    bool   `json:"bot"`
	Admin  bool   `json:"admin"`
}

type ServerSettings struct {
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	RegistrationOpen bool      `json:"registration_open"`
	UpdatedAt        time.Time `json:"updated_at"`
}
