package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"groupdrive/journal"
	"groupdrive/models"
	"groupdrive/utils"
)

// ShareService changes the group scope of folders (with their subtrees) and
// of single files. Only a node's owner may change its scope.
type ShareService struct {
	nodes             *NodeService
	propagator        *Propagator
	permissionService *PermissionService
}

func NewShareService(nodes *NodeService, propagator *Propagator, permissionService *PermissionService) *ShareService {
	return &ShareService{
		nodes:             nodes,
		propagator:        propagator,
		permissionService: permissionService,
	}
}

func (s *ShareService) ShareFolder(ctx context.Context, identity models.Identity, folderID primitive.ObjectID, groupID string) (*models.ShareResult, error) {
	if err := s.checkTarget(identity, groupID); err != nil {
		return nil, err
	}
	folder, err := s.ownedFolder(ctx, identity, folderID)
	if err != nil {
		return nil, err
	}
	if !folder.SharedWith(groupID) {
		if err := s.checkGroupName(ctx, folder, groupID); err != nil {
			return nil, err
		}
	}
	return s.propagate(ctx, folder, ShareWith(groupID))
}

func (s *ShareService) UnshareFolder(ctx context.Context, identity models.Identity, folderID primitive.ObjectID) (*models.ShareResult, error) {
	if identity.UID == "" {
		return nil, ErrNotAuthenticated
	}
	folder, err := s.ownedFolder(ctx, identity, folderID)
	if err != nil {
		return nil, err
	}
	return s.propagate(ctx, folder, Unshare())
}

func (s *ShareService) ShareFile(ctx context.Context, identity models.Identity, fileID primitive.ObjectID, groupID string) (*models.ShareResult, error) {
	if err := s.checkTarget(identity, groupID); err != nil {
		return nil, err
	}
	file, err := s.ownedFile(ctx, identity, fileID)
	if err != nil {
		return nil, err
	}
	if !file.SharedWith(groupID) {
		if err := s.checkGroupName(ctx, file, groupID); err != nil {
			return nil, err
		}
	}
	g := groupID
	return s.rescopeFile(ctx, file, &g)
}

func (s *ShareService) UnshareFile(ctx context.Context, identity models.Identity, fileID primitive.ObjectID) (*models.ShareResult, error) {
	if identity.UID == "" {
		return nil, ErrNotAuthenticated
	}
	file, err := s.ownedFile(ctx, identity, fileID)
	if err != nil {
		return nil, err
	}
	return s.rescopeFile(ctx, file, nil)
}

// checkTarget validates the requested group. Admins may scope to any group;
// everyone else only to their own.
func (s *ShareService) checkTarget(identity models.Identity, groupID string) error {
	if identity.UID == "" {
		return ErrNotAuthenticated
	}
	if err := utils.ValidateGroupID(groupID); err != nil {
		return invalidInput(err)
	}
	if !identity.IsAdmin && !identity.InGroup(groupID) {
		return fmt.Errorf("cannot share with group %s: %w", groupID, ErrForbidden)
	}
	return nil
}

// checkGroupName keeps names unique within what the group's members see.
func (s *ShareService) checkGroupName(ctx context.Context, node models.Node, groupID string) error {
	taken, err := s.nodes.nameTakenInGroup(ctx, node, groupID)
	if err != nil {
		return err
	}
	if taken {
		meta := node.Meta()
		return fmt.Errorf("%s '%s' in %s is already visible to group %s: %w",
			node.Kind(), meta.Name, meta.Directory, groupID, ErrDuplicateName)
	}
	return nil
}

func (s *ShareService) ownedFolder(ctx context.Context, identity models.Identity, id primitive.ObjectID) (*models.Folder, error) {
	folder, err := s.nodes.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwner(identity, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

func (s *ShareService) ownedFile(ctx context.Context, identity models.Identity, id primitive.ObjectID) (*models.File, error) {
	file, err := s.nodes.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwner(identity, file); err != nil {
		return nil, err
	}
	return file, nil
}

// checkOwner hides nodes the caller cannot see and refuses scope changes on
// visible nodes the caller does not own. Trashed nodes are not shareable.
func (s *ShareService) checkOwner(identity models.Identity, node models.Node) error {
	meta := node.Meta()
	if meta.IsDeleted || !s.permissionService.CanModify(identity, meta) {
		return fmt.Errorf("%s %s: %w", node.Kind(), meta.ID.Hex(), ErrNodeNotFound)
	}
	if !s.permissionService.IsOwner(identity, meta) {
		return fmt.Errorf("only the owner can change sharing of %s %s: %w", node.Kind(), meta.ID.Hex(), ErrForbidden)
	}
	return nil
}

func (s *ShareService) propagate(ctx context.Context, folder *models.Folder, m Mutation) (*models.ShareResult, error) {
	// A root that already carries the scope is only a no-op when no earlier
	// run on it is still unfinished; otherwise the subtree may lag behind.
	if m.satisfiedBy(&folder.NodeMeta) {
		pending, err := s.propagator.HasPending(ctx, folder.ID, m.Kind)
		if err != nil {
			return nil, fmt.Errorf("failed to read propagation journal: %w", err)
		}
		if !pending {
			return &models.ShareResult{NodeID: folder.ID, GroupID: folder.GroupID, NoOp: true, Discovered: 1}, nil
		}
	}

	res, err := s.propagator.Propagate(ctx, folder, m)
	result := &models.ShareResult{
		NodeID:     folder.ID,
		GroupID:    m.GroupID,
		Updated:    res.Updated,
		Discovered: res.Discovered,
	}
	if err != nil {
		return result, err
	}

	utils.LogInfo("folder scope changed",
		zap.String("folder_id", folder.ID.Hex()),
		zap.String("kind", string(m.Kind)),
		zap.Int("updated", res.Updated))
	return result, nil
}

func (s *ShareService) rescopeFile(ctx context.Context, file *models.File, groupID *string) (*models.ShareResult, error) {
	kind := journal.KindShare
	if groupID == nil {
		kind = journal.KindUnshare
	}

	result := &models.ShareResult{NodeID: file.ID, GroupID: groupID, Discovered: 1}
	if sameScope(file.GroupID, groupID) {
		result.NoOp = true
		return result, nil
	}
	if err := s.nodes.SetScope(ctx, file, groupID); err != nil {
		return nil, err
	}
	result.Updated = 1

	utils.LogInfo("file scope changed",
		zap.String("file_id", file.ID.Hex()),
		zap.String("kind", string(kind)))
	return result, nil
}

func sameScope(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
