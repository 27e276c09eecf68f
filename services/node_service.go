package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"groupdrive/models"
	"groupdrive/storage"
	"groupdrive/store"
	"groupdrive/utils"
)

// Listing is the caller's view of one directory.
type Listing struct {
	Directory string           `json:"directory"`
	Folders   []*models.Folder `json:"folders"`
	Files     []*models.File   `json:"files"`
}

// Nodes flattens the listing, folders first.
func (l *Listing) Nodes() []models.Node {
	nodes := make([]models.Node, 0, len(l.Folders)+len(l.Files))
	for _, f := range l.Folders {
		nodes = append(nodes, f)
	}
	for _, f := range l.Files {
		nodes = append(nodes, f)
	}
	return nodes
}

// NodeService is single-node CRUD over the folders and files collections.
// Subtree-wide changes go through the Propagator.
type NodeService struct {
	store             store.DocumentStore
	objects           storage.ObjectStore
	permissionService *PermissionService
	maxFileSize       int64
	now               func() time.Time
}

func NewNodeService(st store.DocumentStore, objects storage.ObjectStore, permissionService *PermissionService, maxFileSize int64) *NodeService {
	return &NodeService{
		store:             st,
		objects:           objects,
		permissionService: permissionService,
		maxFileSize:       maxFileSize,
		now:               func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (s *NodeService) ListVisible(ctx context.Context, identity models.Identity, directory string) (*Listing, error) {
	if identity.UID == "" {
		return nil, ErrNotAuthenticated
	}
	if err := utils.ValidateDirectory(directory); err != nil {
		return nil, invalidInput(err)
	}

	folders, err := s.visibleFolders(ctx, identity, directory, nil)
	if err != nil {
		return nil, err
	}
	files, err := s.visibleFiles(ctx, identity, directory, nil)
	if err != nil {
		return nil, err
	}

	return &Listing{Directory: directory, Folders: folders, Files: files}, nil
}

// visibleFolders runs every visibility predicate, narrowed by extra, and
// merges the results by id.
func (s *NodeService) visibleFolders(ctx context.Context, identity models.Identity, directory string, extra bson.M) ([]*models.Folder, error) {
	var merged []*models.Folder
	seen := make(map[primitive.ObjectID]bool)

	for _, predicate := range s.permissionService.Predicates(identity, directory) {
		var found []*models.Folder
		if err := s.store.Find(ctx, store.Query{
			Collection: models.FoldersCollection,
			Filter:     narrow(predicate, extra),
		}, &found); err != nil {
			return nil, fmt.Errorf("failed to list folders in %s: %w", directory, err)
		}
		for _, f := range found {
			if !seen[f.ID] {
				seen[f.ID] = true
				merged = append(merged, f)
			}
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged, nil
}

func (s *NodeService) visibleFiles(ctx context.Context, identity models.Identity, directory string, extra bson.M) ([]*models.File, error) {
	var merged []*models.File
	seen := make(map[primitive.ObjectID]bool)

	for _, predicate := range s.permissionService.Predicates(identity, directory) {
		var found []*models.File
		if err := s.store.Find(ctx, store.Query{
			Collection: models.FilesCollection,
			Filter:     narrow(predicate, extra),
		}, &found); err != nil {
			return nil, fmt.Errorf("failed to list files in %s: %w", directory, err)
		}
		for _, f := range found {
			if !seen[f.ID] {
				seen[f.ID] = true
				merged = append(merged, f)
			}
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged, nil
}

func narrow(predicate, extra bson.M) bson.M {
	if len(extra) == 0 {
		return predicate
	}
	out := make(bson.M, len(predicate)+len(extra))
	for k, v := range predicate {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Get loads a node from either collection. Folders are tried first.
func (s *NodeService) Get(ctx context.Context, id primitive.ObjectID) (models.Node, error) {
	folder, err := s.GetFolder(ctx, id)
	if err == nil {
		return folder, nil
	}
	if !errors.Is(err, ErrNodeNotFound) {
		return nil, err
	}
	return s.GetFile(ctx, id)
}

func (s *NodeService) GetFolder(ctx context.Context, id primitive.ObjectID) (*models.Folder, error) {
	var folder models.Folder
	if err := s.store.FindOne(ctx, models.FoldersCollection, bson.M{"_id": id}, &folder); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("folder %s: %w", id.Hex(), ErrNodeNotFound)
		}
		return nil, fmt.Errorf("failed to load folder: %w", err)
	}
	return &folder, nil
}

func (s *NodeService) GetFile(ctx context.Context, id primitive.ObjectID) (*models.File, error) {
	var file models.File
	if err := s.store.FindOne(ctx, models.FilesCollection, bson.M{"_id": id}, &file); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("file %s: %w", id.Hex(), ErrNodeNotFound)
		}
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	return &file, nil
}

// GetAuthorized loads a node the caller may act on. Nodes the caller can
// neither see nor owns are reported as missing.
func (s *NodeService) GetAuthorized(ctx context.Context, identity models.Identity, id primitive.ObjectID) (models.Node, error) {
	if identity.UID == "" {
		return nil, ErrNotAuthenticated
	}
	node, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.permissionService.CanModify(identity, node.Meta()) {
		return nil, fmt.Errorf("%s %s: %w", node.Kind(), id.Hex(), ErrNodeNotFound)
	}
	return node, nil
}

// MarkDeleted flags exactly one node as trashed.
func (s *NodeService) MarkDeleted(ctx context.Context, node models.Node, at time.Time) error {
	meta := node.Meta()
	now := s.now()
	err := s.store.UpdateOne(ctx, node.Collection(), meta.ID, bson.M{
		"is_deleted": true,
		"deleted_at": at,
		"updated_at": now,
	})
	if err != nil {
		return s.updateError(node, "trash", err)
	}
	meta.IsDeleted = true
	meta.DeletedAt = &at
	meta.UpdatedAt = now
	return nil
}

// MarkRestored clears the trash flag on exactly one node.
func (s *NodeService) MarkRestored(ctx context.Context, node models.Node) error {
	meta := node.Meta()
	now := s.now()
	err := s.store.UpdateOne(ctx, node.Collection(), meta.ID, bson.M{
		"is_deleted": false,
		"deleted_at": nil,
		"updated_at": now,
	})
	if err != nil {
		return s.updateError(node, "restore", err)
	}
	meta.IsDeleted = false
	meta.DeletedAt = nil
	meta.UpdatedAt = now
	return nil
}

// SetScope changes the group scope of exactly one node.
func (s *NodeService) SetScope(ctx context.Context, node models.Node, groupID *string) error {
	meta := node.Meta()
	now := s.now()
	var value interface{}
	if groupID != nil {
		value = *groupID
	}
	if err := s.store.UpdateOne(ctx, node.Collection(), meta.ID, bson.M{
		"group_id":   value,
		"updated_at": now,
	}); err != nil {
		return s.updateError(node, "rescope", err)
	}
	meta.GroupID = groupID
	meta.UpdatedAt = now
	return nil
}

// nameTakenInGroup reports whether scoping node to groupID would give the
// group's members two live siblings with the same name: one already shared
// with the group, or one a member keeps private in the same directory.
func (s *NodeService) nameTakenInGroup(ctx context.Context, node models.Node, groupID string) (bool, error) {
	meta := node.Meta()
	sibling := bson.M{
		"directory":  meta.Directory,
		"name":       meta.Name,
		"is_deleted": false,
		"_id":        bson.M{"$ne": meta.ID},
	}

	var shared []bson.M
	if err := s.store.Find(ctx, store.Query{
		Collection: node.Collection(),
		Filter:     narrow(sibling, bson.M{"group_id": groupID}),
		Limit:      1,
	}, &shared); err != nil {
		return false, fmt.Errorf("failed to check group siblings: %w", err)
	}
	if len(shared) > 0 {
		return true, nil
	}

	var members []*models.User
	if err := s.store.Find(ctx, store.Query{
		Collection: models.UsersCollection,
		Filter:     bson.M{"group_id": groupID},
	}, &members); err != nil {
		return false, fmt.Errorf("failed to list members of %s: %w", groupID, err)
	}
	uids := bson.A{}
	for _, m := range members {
		if m.ID != meta.OwnerID {
			uids = append(uids, m.ID)
		}
	}
	if len(uids) == 0 {
		return false, nil
	}

	var private []bson.M
	if err := s.store.Find(ctx, store.Query{
		Collection: node.Collection(),
		Filter:     narrow(sibling, bson.M{"group_id": nil, "owner_id": bson.M{"$in": uids}}),
		Limit:      1,
	}, &private); err != nil {
		return false, fmt.Errorf("failed to check member siblings: %w", err)
	}
	return len(private) > 0, nil
}

// PurgeRecord removes the record only. Releasing a file's blob is the
// caller's job and must happen first.
func (s *NodeService) PurgeRecord(ctx context.Context, node models.Node) error {
	if err := s.store.DeleteOne(ctx, node.Collection(), node.Meta().ID); err != nil {
		return s.updateError(node, "purge", err)
	}
	return nil
}

func (s *NodeService) updateError(node models.Node, op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to %s %s %s: %w", op, node.Kind(), node.Meta().ID.Hex(), ErrNodeNotFound)
	}
	return fmt.Errorf("failed to %s %s %s: %w", op, node.Kind(), node.Meta().ID.Hex(), err)
}

// ensureParent checks referential path integrity for a node about to be
// placed in directory: the parent must be root or a live folder the caller
// can act on. It returns the tree the new node joins.
func (s *NodeService) ensureParent(ctx context.Context, identity models.Identity, directory string) (string, error) {
	ownPath, isRoot := utils.ParentOf(directory)
	if isRoot {
		return identity.UID, nil
	}

	var parents []*models.Folder
	if err := s.store.Find(ctx, store.Query{
		Collection: models.FoldersCollection,
		Filter:     bson.M{"folder_path": ownPath, "is_deleted": false},
		Sort:       bson.D{{Key: "_id", Value: 1}},
	}, &parents); err != nil {
		return "", fmt.Errorf("failed to look up parent folder: %w", err)
	}

	tree := ""
	for _, parent := range parents {
		if !s.permissionService.CanModify(identity, &parent.NodeMeta) {
			continue
		}
		// The caller's own tree wins when the path exists in several.
		if parent.Tree() == identity.UID {
			return parent.Tree(), nil
		}
		if tree == "" {
			tree = parent.Tree()
		}
	}
	if tree == "" {
		return "", fmt.Errorf("parent folder %s: %w", ownPath, ErrNodeNotFound)
	}
	return tree, nil
}

// liveParentExists is the restore-side check: root, or a live folder at the
// parent path within the node's tree.
func (s *NodeService) liveParentExists(ctx context.Context, meta *models.NodeMeta) (bool, error) {
	ownPath, isRoot := utils.ParentOf(meta.Directory)
	if isRoot {
		return true, nil
	}

	var parent models.Folder
	err := s.store.FindOne(ctx, models.FoldersCollection, bson.M{
		"folder_path":   ownPath,
		"tree_owner_id": meta.Tree(),
		"is_deleted":    false,
	}, &parent)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check parent folder: %w", err)
}
