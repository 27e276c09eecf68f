package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"groupdrive/journal"
	"groupdrive/metrics"
	"groupdrive/models"
	"groupdrive/storage"
	"groupdrive/store"
	"groupdrive/utils"
)

// TrashPolicy decides what soft-deleting and restoring a folder does to its
// contents.
type TrashPolicy string

const (
	// PolicyRequireEmpty refuses to trash a folder that still has live
	// children, and restores exactly one node at a time.
	PolicyRequireEmpty TrashPolicy = "require_empty"
	// PolicyCascade trashes and restores the whole subtree.
	PolicyCascade TrashPolicy = "cascade"
)

const DefaultRetention = 30 * 24 * time.Hour

func ParseTrashPolicy(s string) (TrashPolicy, error) {
	switch TrashPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyRequireEmpty:
		return PolicyRequireEmpty, nil
	case PolicyCascade:
		return PolicyCascade, nil
	default:
		return "", fmt.Errorf("unknown trash policy %q", s)
	}
}

type TrashService struct {
	nodes             *NodeService
	store             store.DocumentStore
	objects           storage.ObjectStore
	propagator        *Propagator
	permissionService *PermissionService
	policy            TrashPolicy
	retention         time.Duration
	now               func() time.Time
}

func NewTrashService(nodes *NodeService, propagator *Propagator, policy TrashPolicy, retention time.Duration) *TrashService {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &TrashService{
		nodes:             nodes,
		store:             nodes.store,
		objects:           nodes.objects,
		propagator:        propagator,
		permissionService: nodes.permissionService,
		policy:            policy,
		retention:         retention,
		now:               func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (s *TrashService) Policy() TrashPolicy { return s.policy }

func (s *TrashService) Retention() time.Duration { return s.retention }

// SoftDelete moves a live node to the trash.
func (s *TrashService) SoftDelete(ctx context.Context, identity models.Identity, id primitive.ObjectID) (models.Node, error) {
	node, err := s.nodes.GetAuthorized(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	meta := node.Meta()

	if meta.IsDeleted {
		// A cascade that stopped partway leaves the root trashed; deleting
		// it again finishes the subtree.
		if folder, ok := node.(*models.Folder); ok && s.policy == PolicyCascade {
			pending, err := s.propagator.HasPending(ctx, folder.ID, journal.KindTrash)
			if err != nil {
				return nil, err
			}
			if pending {
				at := s.now()
				if meta.DeletedAt != nil {
					at = *meta.DeletedAt
				}
				if _, err := s.propagator.Propagate(ctx, folder, Trash(at)); err != nil {
					return nil, err
				}
				return folder, nil
			}
		}
		return nil, fmt.Errorf("%s %s: %w", node.Kind(), id.Hex(), ErrNodeNotFound)
	}

	now := s.now()
	switch n := node.(type) {
	case *models.File:
		if err := s.nodes.MarkDeleted(ctx, n, now); err != nil {
			return nil, err
		}
	case *models.Folder:
		if s.policy == PolicyCascade {
			if _, err := s.propagator.Propagate(ctx, n, Trash(now)); err != nil {
				return nil, err
			}
			break
		}
		live, err := s.hasLiveChild(ctx, n)
		if err != nil {
			return nil, err
		}
		if live {
			return nil, fmt.Errorf("cannot move %s to trash: %w", n.FolderPath, ErrFolderNotEmpty)
		}
		if err := s.nodes.MarkDeleted(ctx, n, now); err != nil {
			return nil, err
		}
	}

	utils.LogInfo("moved to trash",
		zap.String("item_id", id.Hex()),
		zap.String("item_type", string(node.Kind())),
		zap.String("user_id", identity.UID))
	return node, nil
}

// Restore brings a trashed node back. Its parent must be live.
func (s *TrashService) Restore(ctx context.Context, identity models.Identity, id primitive.ObjectID) (models.Node, error) {
	node, err := s.nodes.GetAuthorized(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	meta := node.Meta()

	if !meta.IsDeleted {
		if folder, ok := node.(*models.Folder); ok && s.policy == PolicyCascade {
			pending, err := s.propagator.HasPending(ctx, folder.ID, journal.KindRestore)
			if err != nil {
				return nil, err
			}
			if pending {
				if _, err := s.propagator.Propagate(ctx, folder, Restore()); err != nil {
					return nil, err
				}
				return folder, nil
			}
		}
		return nil, fmt.Errorf("%s %s not found in trash: %w", node.Kind(), id.Hex(), ErrNodeNotFound)
	}

	ok, err := s.nodes.liveParentExists(ctx, meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cannot restore %s: %w", meta.Name, ErrParentTrashed)
	}

	if folder, isFolder := node.(*models.Folder); isFolder && s.policy == PolicyCascade {
		if _, err := s.propagator.Propagate(ctx, folder, Restore()); err != nil {
			return nil, err
		}
	} else if err := s.nodes.MarkRestored(ctx, node); err != nil {
		return nil, err
	}

	utils.LogInfo("restored from trash",
		zap.String("item_id", id.Hex()),
		zap.String("item_type", string(node.Kind())),
		zap.String("user_id", identity.UID))
	return node, nil
}

// Purge permanently removes a trashed node. A folder goes together with its
// whole subtree, which must already be entirely in the trash. It returns the
// number of records removed.
func (s *TrashService) Purge(ctx context.Context, identity models.Identity, id primitive.ObjectID) (int, error) {
	node, err := s.nodes.GetAuthorized(ctx, identity, id)
	if err != nil {
		return 0, err
	}
	if !node.Meta().IsDeleted {
		// Live content below a live folder is what stands in the way.
		if folder, ok := node.(*models.Folder); ok {
			live, err := s.hasLiveChild(ctx, folder)
			if err != nil {
				return 0, err
			}
			if live {
				return 0, fmt.Errorf("folder %s has live content: %w", id.Hex(), ErrFolderNotEmpty)
			}
		}
		return 0, fmt.Errorf("%s %s not found in trash: %w", node.Kind(), id.Hex(), ErrNodeNotFound)
	}

	purged, err := s.purgeNode(ctx, node)
	if err != nil {
		return purged, err
	}
	utils.LogInfo("permanently deleted",
		zap.String("item_id", id.Hex()),
		zap.String("item_type", string(node.Kind())),
		zap.String("user_id", identity.UID),
		zap.Int("records", purged))
	return purged, nil
}

// ListTrash lists the caller's trashed nodes, most recently deleted first.
func (s *TrashService) ListTrash(ctx context.Context, identity models.Identity) ([]models.TrashItem, error) {
	if identity.UID == "" {
		return nil, ErrNotAuthenticated
	}
	folders, files, err := s.trashed(ctx, bson.M{"owner_id": identity.UID, "is_deleted": true})
	if err != nil {
		return nil, err
	}

	items := make([]models.TrashItem, 0, len(folders)+len(files))
	for _, f := range folders {
		items = append(items, s.trashItem(&f.NodeMeta, f.FolderPath, 0))
	}
	for _, f := range files {
		items = append(items, s.trashItem(&f.NodeMeta, utils.FolderPath(f.Directory, f.Name), f.Size))
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].DeletedAt.After(items[j].DeletedAt) })
	return items, nil
}

// EmptyTrash purges everything the caller has in the trash. Failures are
// collected per item rather than stopping the run.
func (s *TrashService) EmptyTrash(ctx context.Context, identity models.Identity) (*models.EmptyTrashResult, error) {
	if identity.UID == "" {
		return nil, ErrNotAuthenticated
	}
	folders, files, err := s.trashed(ctx, bson.M{"owner_id": identity.UID, "is_deleted": true})
	if err != nil {
		return nil, err
	}
	result := s.purgeAll(ctx, folders, files)
	utils.LogInfo("trash emptied",
		zap.String("user_id", identity.UID),
		zap.Int("purged", result.Purged),
		zap.Int("failures", len(result.Failures)))
	return result, nil
}

// ExpiryCutoff is the deletion time before which trashed nodes are due for
// automatic purge.
func (s *TrashService) ExpiryCutoff() time.Time {
	return s.now().Add(-s.retention)
}

// PurgeExpired purges every node, of any owner, trashed at or before cutoff.
// It runs as the system and performs no identity check.
func (s *TrashService) PurgeExpired(ctx context.Context, cutoff time.Time) (*models.EmptyTrashResult, error) {
	folders, files, err := s.trashed(ctx, bson.M{
		"is_deleted": true,
		"deleted_at": bson.M{"$lte": cutoff},
	})
	if err != nil {
		return nil, err
	}
	return s.purgeAll(ctx, folders, files), nil
}

func (s *TrashService) trashed(ctx context.Context, filter bson.M) ([]*models.Folder, []*models.File, error) {
	sortByDeletion := bson.D{{Key: "deleted_at", Value: -1}}
	var folders []*models.Folder
	if err := s.store.Find(ctx, store.Query{Collection: models.FoldersCollection, Filter: filter, Sort: sortByDeletion}, &folders); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch deleted folders: %w", err)
	}
	var files []*models.File
	if err := s.store.Find(ctx, store.Query{Collection: models.FilesCollection, Filter: filter, Sort: sortByDeletion}, &files); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch deleted files: %w", err)
	}
	return folders, files, nil
}

func (s *TrashService) trashItem(meta *models.NodeMeta, originalPath string, size int64) models.TrashItem {
	item := models.TrashItem{
		ItemID:       meta.ID,
		ItemType:     meta.Type,
		Name:         meta.Name,
		OriginalPath: originalPath,
		OwnerID:      meta.OwnerID,
		GroupID:      meta.GroupID,
		Size:         size,
	}
	if meta.DeletedAt != nil {
		item.DeletedAt = *meta.DeletedAt
		item.AutoPurgeAt = meta.DeletedAt.Add(s.retention)
	}
	return item
}

// purgeAll purges folders shallowest first, so a folder purge sweeps its
// trashed descendants before they are visited on their own. Those are then
// already gone and are skipped.
func (s *TrashService) purgeAll(ctx context.Context, folders []*models.Folder, files []*models.File) *models.EmptyTrashResult {
	sort.SliceStable(folders, func(i, j int) bool {
		return strings.Count(folders[i].FolderPath, utils.PathSeparator) < strings.Count(folders[j].FolderPath, utils.PathSeparator)
	})

	result := &models.EmptyTrashResult{}
	purge := func(node models.Node) {
		n, err := s.purgeNode(ctx, node)
		result.Purged += n
		if err != nil && !errors.Is(err, ErrNodeNotFound) {
			result.Failures = append(result.Failures, models.PurgeFailure{ItemID: node.Meta().ID.Hex(), Error: err.Error()})
		}
	}
	for _, f := range folders {
		purge(f)
	}
	for _, f := range files {
		purge(f)
	}
	return result
}

// purgeNode deletes node and, for folders, its subtree. Every node is read
// again right before it is deleted: one that was restored in the meantime
// stops the purge, one that is already gone is skipped.
func (s *TrashService) purgeNode(ctx context.Context, node models.Node) (int, error) {
	current, err := s.reload(ctx, node)
	if err != nil {
		return 0, err
	}
	if !current.Meta().IsDeleted {
		return 0, fmt.Errorf("%s %s not found in trash: %w", node.Kind(), node.Meta().ID.Hex(), ErrNodeNotFound)
	}

	folder, ok := current.(*models.Folder)
	if !ok {
		if err := s.purgeOne(ctx, current); err != nil {
			return 0, err
		}
		return 1, nil
	}

	subtree, err := s.collectSubtree(ctx, folder)
	if err != nil {
		return 0, err
	}
	for _, n := range subtree {
		if !n.Meta().IsDeleted {
			return 0, fmt.Errorf("%s still holds live %s %s: %w", folder.FolderPath, n.Kind(), n.Meta().Name, ErrFolderNotEmpty)
		}
	}

	purged := 0
	for i := len(subtree) - 1; i >= 0; i-- {
		latest, err := s.reload(ctx, subtree[i])
		if errors.Is(err, ErrNodeNotFound) {
			continue
		}
		if err != nil {
			return purged, err
		}
		if !latest.Meta().IsDeleted {
			return purged, fmt.Errorf("%s %s was restored during purge: %w", latest.Kind(), latest.Meta().Name, ErrFolderNotEmpty)
		}
		if err := s.purgeOne(ctx, latest); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

// purgeOne removes a file's blob before its record. When the blob delete
// fails the record stays so the purge can be retried.
func (s *TrashService) purgeOne(ctx context.Context, node models.Node) error {
	if file, ok := node.(*models.File); ok && file.StoragePath != "" {
		err := s.objects.Delete(ctx, file.StoragePath)
		metrics.RecordObjectStoreOp("delete", err == nil)
		if err != nil {
			return &ObjectStoreError{Op: "delete", Key: file.StoragePath, Err: err}
		}
	}
	if err := s.nodes.PurgeRecord(ctx, node); err != nil {
		return err
	}
	metrics.RecordPurge(string(node.Kind()))
	return nil
}

func (s *TrashService) reload(ctx context.Context, node models.Node) (models.Node, error) {
	if node.Kind() == models.KindFolder {
		return s.nodes.GetFolder(ctx, node.Meta().ID)
	}
	return s.nodes.GetFile(ctx, node.Meta().ID)
}

// collectSubtree lists folder and every node below it in breadth-first
// order, trashed or not.
func (s *TrashService) collectSubtree(ctx context.Context, folder *models.Folder) ([]models.Node, error) {
	sc := scopeOf(&folder.NodeMeta)
	nodes := []models.Node{folder}
	queue := []string{folder.FolderPath}
	visited := map[string]bool{folder.FolderPath: true}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ownPath := queue[0]
		queue = queue[1:]

		folders, files, err := children(ctx, s.store, sc, utils.ChildDirectory(ownPath), nil)
		if err != nil {
			return nil, err
		}
		for _, f := range folders {
			nodes = append(nodes, f)
			if !visited[f.FolderPath] {
				visited[f.FolderPath] = true
				queue = append(queue, f.FolderPath)
			}
		}
		for _, f := range files {
			nodes = append(nodes, f)
		}
	}
	return nodes, nil
}

// hasLiveChild reports whether any live node sits directly inside folder.
func (s *TrashService) hasLiveChild(ctx context.Context, folder *models.Folder) (bool, error) {
	sc := scopeOf(&folder.NodeMeta)
	for _, collection := range []string{models.FoldersCollection, models.FilesCollection} {
		for _, filter := range sc.predicates(utils.ChildDirectory(folder.FolderPath), bson.M{"is_deleted": false}) {
			var found []bson.M
			if err := s.store.Find(ctx, store.Query{Collection: collection, Filter: filter, Limit: 1}, &found); err != nil {
				return false, fmt.Errorf("failed to check folder contents: %w", err)
			}
			if len(found) > 0 {
				return true, nil
			}
		}
	}
	return false, nil
}
