package models

import "time"

// User is the membership record consulted when a bearer token carries no
// group claim. ID is the identity provider's uid.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	GroupID   *string   `bson:"group_id" json:"group_id"`
	Role      string    `bson:"role" json:"role"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Identity is the verified caller handed to every service call.
type Identity struct {
	UID     string  `json:"uid"`
	GroupID *string `json:"group_id,omitempty"`
	IsAdmin bool    `json:"is_admin"`
}

// InGroup reports whether the caller belongs to groupID.
func (i Identity) InGroup(groupID string) bool {
	return i.GroupID != nil && *i.GroupID == groupID
}
