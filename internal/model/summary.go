package model

// ChatSummary is the derived sidebar row. It is rebuilt from message, group
// and block snapshots on every relevant change and never persisted.
type ChatSummary struct {
	ID              string      `json:"id"`
	IsGroup         bool        `json:"is_group"`
	DisplayName     string      `json:"display_name"`
	LastMessage     string      `json:"last_message,omitempty"`
	LastMessageTime Timestamp   `json:"last_message_time,omitempty"`
	LastMessageType MessageType `json:"last_message_type,omitempty"`
	UnreadCount     int         `json:"unread_count"`
	IsBlocked       bool        `json:"is_blocked"`
}
