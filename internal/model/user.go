package model

type User struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	Name          string    `bson:"name" json:"name"`
	Email         string    `bson:"email" json:"email"`
	PasswordHash  string    `bson:"password_hash" json:"-"`
	ProfilePicURL string    `bson:"profile_pic,omitempty" json:"profile_pic,omitempty"`
	Bio           string    `bson:"bio,omitempty" json:"bio,omitempty"`
	CreatedAt     Timestamp `bson:"created_at" json:"created_at"`
}
