package model

// MessageType is the tagged variant discriminator for message rendering and
// aggregation. New kinds extend this set; callers switch exhaustively.
type MessageType string

const (
	TypeText   MessageType = "text"
	TypeImage  MessageType = "image"
	TypeFile   MessageType = "file"
	TypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeSystem:
		return true
	}
	return false
}

// IsMedia reports whether the message carries an uploaded blob.
func (t MessageType) IsMedia() bool { return t == TypeImage || t == TypeFile }

// Message is a single chat message. Exactly one of ReceiverID/GroupID is set:
// ReceiverID for a direct message, GroupID for a group message.
type Message struct {
	ID         string              `bson:"_id,omitempty" json:"id"`
	SenderID   string              `bson:"sender_id" json:"sender_id"`
	SenderName string              `bson:"sender_name,omitempty" json:"sender_name,omitempty"`
	ReceiverID string              `bson:"receiver_id,omitempty" json:"receiver_id,omitempty"`
	GroupID    string              `bson:"group_id,omitempty" json:"group_id,omitempty"`
	Content    string              `bson:"content" json:"content"`
	Type       MessageType         `bson:"type" json:"type"`
	FileName   string              `bson:"file_name,omitempty" json:"file_name,omitempty"`
	SentAt     Timestamp           `bson:"sent_at" json:"sent_at"`
	Read       bool                `bson:"read" json:"read"`
	ReadAt     Timestamp           `bson:"read_at,omitempty" json:"read_at,omitempty"`
	Edited     bool                `bson:"edited,omitempty" json:"edited,omitempty"`
	EditedAt   Timestamp           `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	Deleted    bool                `bson:"deleted,omitempty" json:"deleted,omitempty"`
	Reactions  map[string][]string `bson:"reactions,omitempty" json:"reactions,omitempty"`
}

func (m *Message) IsDirect() bool { return m.ReceiverID != "" }

func (m *Message) IsGroup() bool { return m.GroupID != "" }

// InConversation reports whether the message belongs to the direct
// conversation between the two users, in either direction.
func (m *Message) InConversation(a, b string) bool {
	if !m.IsDirect() {
		return false
	}
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// ToggleReaction adds the user's reaction under emoji, or removes it if
// already present. Emoji keys with no reactors left are dropped.
func (m *Message) ToggleReaction(emoji, userID string) {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	users := m.Reactions[emoji]
	for i, id := range users {
		if id == userID {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(m.Reactions, emoji)
			} else {
				m.Reactions[emoji] = users
			}
			return
		}
	}
	m.Reactions[emoji] = append(users, userID)
}
