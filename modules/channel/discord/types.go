package discord

import (
	"fmt"
	"time"
)

// Channel types the module cares about.
const (
	ChannelTypeGuildText     = 0
	ChannelTypeGuildVoice    = 2
	ChannelTypeGuildCategory = 4
)

// Channel is a guild channel.
type Channel struct {
	ID                   string      `json:"id"`
	Type                 int         `json:"type"`
	GuildID              string      `json:"guild_id,omitempty"`
	Position             int         `json:"position"`
	Name                 string      `json:"name"`
	Topic                string      `json:"topic,omitempty"`
	NSFW                 bool        `json:"nsfw,omitempty"`
	RateLimitPerUser     int         `json:"rate_limit_per_user,omitempty"`
	Bitrate              int         `json:"bitrate,omitempty"`
	UserLimit            int         `json:"user_limit,omitempty"`
	ParentID             string      `json:"parent_id,omitempty"`
	PermissionOverwrites []Overwrite `json:"permission_overwrites,omitempty"`
}

// Overwrite is a channel permission overwrite.
type Overwrite struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Allow string `json:"allow"`
	Deny  string `json:"deny"`
}

// Guild is the subset of a guild object used here.
type Guild struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Channels []Channel `json:"channels,omitempty"`
}

// User is a message author.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
}

// DisplayName returns the global display name, falling back to the username.
func (u User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// Message is a channel message.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Author    User      `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageQuery selects a page of channel messages. At most one of Before,
// After and Around may be set.
type MessageQuery struct {
	Limit  int
	Before string
	After  string
	Around string
}

// CreateChannelRequest is the body of POST /guilds/{id}/channels.
type CreateChannelRequest struct {
	Name                 string      `json:"name"`
	Type                 int         `json:"type"`
	Topic                string      `json:"topic,omitempty"`
	NSFW                 bool        `json:"nsfw,omitempty"`
	RateLimitPerUser     int         `json:"rate_limit_per_user,omitempty"`
	Bitrate              int         `json:"bitrate,omitempty"`
	UserLimit            int         `json:"user_limit,omitempty"`
	ParentID             string      `json:"parent_id,omitempty"`
	PermissionOverwrites []Overwrite `json:"permission_overwrites,omitempty"`
}

// PositionUpdate is one entry of PATCH /guilds/{id}/channels.
type PositionUpdate struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// CreateMessageRequest is the payload_json part of a message with files.
type CreateMessageRequest struct {
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment describes an uploaded file in a CreateMessageRequest.
type Attachment struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
}

// GatewayInfo is the response of GET /gateway/bot.
type GatewayInfo struct {
	URL    string `json:"url"`
	Shards int    `json:"shards"`
}

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Status     int     `json:"-"`
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("discord: %d %s (code %d)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("discord: %d %s", e.Status, e.Message)
}
