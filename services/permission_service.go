package services

import (
	"go.mongodb.org/mongo-driver/bson"

	"groupdrive/models"
)

// PermissionService decides what a caller may see. A node is visible when it
// is private to the caller or scoped to the caller's group; admin identities
// get nothing extra.
type PermissionService struct{}

func NewPermissionService() *PermissionService {
	return &PermissionService{}
}

// Predicates returns the queries whose union is the caller's live view of
// directory. The store cannot OR across fields, so the caller runs each one
// and merges the results.
func (s *PermissionService) Predicates(identity models.Identity, directory string) []bson.M {
	predicates := []bson.M{{
		"directory":  directory,
		"is_deleted": false,
		"owner_id":   identity.UID,
		"group_id":   nil,
	}}
	if identity.GroupID != nil {
		predicates = append(predicates, bson.M{
			"directory":  directory,
			"is_deleted": false,
			"group_id":   *identity.GroupID,
		})
	}
	return predicates
}

// CanSee applies the visibility rule to one node, ignoring its trash flag.
func (s *PermissionService) CanSee(identity models.Identity, meta *models.NodeMeta) bool {
	if meta.GroupID == nil {
		return meta.OwnerID == identity.UID
	}
	return identity.InGroup(*meta.GroupID)
}

// CanModify allows the owner, or anyone who can see the node.
func (s *PermissionService) CanModify(identity models.Identity, meta *models.NodeMeta) bool {
	return meta.OwnerID == identity.UID || s.CanSee(identity, meta)
}

// IsOwner is required for scope changes.
func (s *PermissionService) IsOwner(identity models.Identity, meta *models.NodeMeta) bool {
	return meta.OwnerID == identity.UID
}
