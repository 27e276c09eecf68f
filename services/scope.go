package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"groupdrive/models"
	"groupdrive/store"
)

// subtreeScope picks out the nodes that belong to one folder's tree.
// Directory strings repeat across tenants, so a child matches on its path
// plus the tree it was created in. Nodes placed in the tree by group
// members carry the same tree owner, whoever owns them.
type subtreeScope struct {
	tree string
}

func scopeOf(meta *models.NodeMeta) subtreeScope {
	return subtreeScope{tree: meta.Tree()}
}

func (sc subtreeScope) predicates(directory string, extra bson.M) []bson.M {
	return []bson.M{narrow(bson.M{"directory": directory, "tree_owner_id": sc.tree}, extra)}
}

// fetchScoped reads every page of every predicate before returning, so the
// caller can mutate the matched field without disturbing skip-based paging.
func fetchScoped[T any, PT interface {
	*T
	models.Node
}](ctx context.Context, st store.DocumentStore, collection string, predicates []bson.M, pageSize int) ([]PT, error) {
	if pageSize <= 0 {
		pageSize = store.DefaultMaxBatchSize
	}

	var merged []PT
	seen := make(map[primitive.ObjectID]bool)
	for _, filter := range predicates {
		for skip := int64(0); ; skip += int64(pageSize) {
			var page []PT
			if err := st.Find(ctx, store.Query{
				Collection: collection,
				Filter:     filter,
				Sort:       bson.D{{Key: "_id", Value: 1}},
				Limit:      int64(pageSize),
				Skip:       skip,
			}, &page); err != nil {
				return nil, fmt.Errorf("failed to query %s: %w", collection, err)
			}
			for _, n := range page {
				id := n.Meta().ID
				if !seen[id] {
					seen[id] = true
					merged = append(merged, n)
				}
			}
			if len(page) < pageSize {
				break
			}
		}
	}
	return merged, nil
}

// children returns the folders and files directly inside directory that
// belong to the scope and match extra.
func children(ctx context.Context, st store.DocumentStore, sc subtreeScope, directory string, extra bson.M) ([]*models.Folder, []*models.File, error) {
	predicates := sc.predicates(directory, extra)
	folders, err := fetchScoped[models.Folder](ctx, st, models.FoldersCollection, predicates, st.MaxBatchSize())
	if err != nil {
		return nil, nil, err
	}
	files, err := fetchScoped[models.File](ctx, st, models.FilesCollection, predicates, st.MaxBatchSize())
	if err != nil {
		return nil, nil, err
	}
	return folders, files, nil
}
