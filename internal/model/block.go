package model

// BlockRelationship is directional: BlockerID blocked BlockedID. A
// conversation counts as blocked if a row exists in either direction; the
// direction decides which side sees "you blocked them" vs "they blocked you".
type BlockRelationship struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	BlockerID string    `bson:"blocker_id" json:"blocker_id"`
	BlockedID string    `bson:"blocked_id" json:"blocked_id"`
	BlockedAt Timestamp `bson:"blocked_at" json:"blocked_at"`
}

// BlockDirection is reported per viewing session.
type BlockDirection string

const (
	BlockedByMe   BlockDirection = "blockedByMe"
	BlockedByThem BlockDirection = "blockedByThem"
)

type BlockStatus struct {
	Blocked   bool           `json:"blocked"`
	Direction BlockDirection `json:"direction,omitempty"`
}
