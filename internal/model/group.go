package model

// Group invariants, enforced by internal/group on every mutation:
// CreatorID is always in Admins, Admins is a subset of Members, and Members is
// never empty.
type Group struct {
	ID                string    `bson:"_id,omitempty" json:"id"`
	Name              string    `bson:"name" json:"name"`
	CreatorID         string    `bson:"creator_id" json:"creator_id"`
	Members           []string  `bson:"members" json:"members"`
	Admins            []string  `bson:"admins" json:"admins"`
	CreatedAt         Timestamp `bson:"created_at" json:"created_at"`
	UpdatedAt         Timestamp `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
	LastMessage       string    `bson:"last_message,omitempty" json:"last_message,omitempty"`
	LastMessageTime   Timestamp `bson:"last_message_time,omitempty" json:"last_message_time,omitempty"`
	LastMessageSender string    `bson:"last_message_sender,omitempty" json:"last_message_sender,omitempty"`
}

func (g *Group) IsMember(userID string) bool { return contains(g.Members, userID) }

func (g *Group) IsAdmin(userID string) bool { return contains(g.Admins, userID) }

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
