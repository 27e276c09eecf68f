package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"groupdrive/journal"
	"groupdrive/metrics"
	"groupdrive/models"
	"groupdrive/store"
	"groupdrive/utils"
)

// Mutation is one uniform field change applied to a folder and every node
// below it.
type Mutation struct {
	Kind    journal.Kind
	GroupID *string
	At      time.Time
}

func ShareWith(groupID string) Mutation {
	g := groupID
	return Mutation{Kind: journal.KindShare, GroupID: &g}
}

func Unshare() Mutation {
	return Mutation{Kind: journal.KindUnshare}
}

func Trash(at time.Time) Mutation {
	return Mutation{Kind: journal.KindTrash, At: at}
}

func Restore() Mutation {
	return Mutation{Kind: journal.KindRestore}
}

func mutationFromEntry(e journal.Entry) Mutation {
	m := Mutation{Kind: e.Kind, GroupID: e.GroupID}
	if e.At != nil {
		m.At = *e.At
	}
	return m
}

func (m Mutation) fields(now time.Time) bson.M {
	switch m.Kind {
	case journal.KindShare:
		return bson.M{"group_id": *m.GroupID, "updated_at": now}
	case journal.KindUnshare:
		return bson.M{"group_id": nil, "updated_at": now}
	case journal.KindTrash:
		return bson.M{"is_deleted": true, "deleted_at": m.At, "updated_at": now}
	default:
		return bson.M{"is_deleted": false, "deleted_at": nil, "updated_at": now}
	}
}

// satisfiedBy reports whether a node already carries the mutation's value.
// Such nodes are not written, but the walk still descends through them: a
// run that failed partway leaves converged folders above unconverged ones,
// and scope changes must also reach trashed descendants so a later restore
// never surfaces a stale scope.
func (m Mutation) satisfiedBy(meta *models.NodeMeta) bool {
	switch m.Kind {
	case journal.KindShare:
		return meta.SharedWith(*m.GroupID)
	case journal.KindUnshare:
		return meta.IsPrivate()
	case journal.KindTrash:
		return meta.IsDeleted
	default:
		return !meta.IsDeleted
	}
}

func (m Mutation) apply(meta *models.NodeMeta, now time.Time) {
	switch m.Kind {
	case journal.KindShare:
		g := *m.GroupID
		meta.GroupID = &g
	case journal.KindUnshare:
		meta.GroupID = nil
	case journal.KindTrash:
		at := m.At
		meta.IsDeleted = true
		meta.DeletedAt = &at
	case journal.KindRestore:
		meta.IsDeleted = false
		meta.DeletedAt = nil
	}
	meta.UpdatedAt = now
}

type PropagationResult struct {
	Updated    int `json:"updated"`
	Discovered int `json:"discovered"`
	Batches    int `json:"batches"`
}

// Propagator walks a folder's subtree breadth-first and writes one mutation
// to every node it finds, in batches no larger than the store allows. It is
// not transactional: batches that committed before a failure stay applied
// and the journal keeps the run pending until a retry completes it.
type Propagator struct {
	store   store.DocumentStore
	journal journal.Journal
	now     func() time.Time
}

func NewPropagator(st store.DocumentStore, j journal.Journal) *Propagator {
	return &Propagator{
		store:   st,
		journal: j,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Propagate applies m to root and its subtree. On success root reflects the
// mutation in memory as well.
func (p *Propagator) Propagate(ctx context.Context, root *models.Folder, m Mutation) (PropagationResult, error) {
	entry, err := p.begin(ctx, root, m)
	if err != nil {
		return PropagationResult{}, err
	}
	return p.execute(ctx, root, m, entry)
}

// HasPending reports whether an unfinished propagation writing the same
// field as kind exists for rootID.
func (p *Propagator) HasPending(ctx context.Context, rootID primitive.ObjectID, kind journal.Kind) (bool, error) {
	pending, err := p.journal.Pending(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range pending {
		if e.RootID == rootID.Hex() && journal.SameField(e.Kind, kind) {
			return true, nil
		}
	}
	return false, nil
}

// Resume re-runs every pending journal entry. Entries whose root is gone are
// dropped.
func (p *Propagator) Resume(ctx context.Context) (resumed, failed int, err error) {
	pending, err := p.journal.Pending(ctx)
	if err != nil {
		return 0, 0, err
	}
	metrics.SetPendingPropagations(len(pending))

	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return resumed, failed, err
		}

		rootID, err := primitive.ObjectIDFromHex(e.RootID)
		if err != nil {
			utils.LogWarning("dropping journal entry with invalid root", zap.String("entry_id", e.ID), zap.String("root_id", e.RootID))
			_ = p.journal.Complete(ctx, e.ID)
			continue
		}

		var root models.Folder
		if err := p.store.FindOne(ctx, models.FoldersCollection, bson.M{"_id": rootID}, &root); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.LogInfo("dropping journal entry for purged root", zap.String("entry_id", e.ID), zap.String("root_id", e.RootID))
				_ = p.journal.Complete(ctx, e.ID)
				continue
			}
			return resumed, failed, err
		}

		if _, err := p.execute(ctx, &root, mutationFromEntry(e), e); err != nil {
			failed++
			continue
		}
		resumed++
	}

	remaining, err := p.journal.Pending(ctx)
	if err == nil {
		metrics.SetPendingPropagations(len(remaining))
	}
	return resumed, failed, nil
}

func (p *Propagator) begin(ctx context.Context, root *models.Folder, m Mutation) (journal.Entry, error) {
	pending, err := p.journal.Pending(ctx)
	if err != nil {
		return journal.Entry{}, err
	}
	// The new run rewrites the same field over the whole subtree, so an
	// older unfinished run on this root must not be resumed after it.
	for _, e := range pending {
		if e.RootID == root.ID.Hex() && journal.SameField(e.Kind, m.Kind) {
			if err := p.journal.Complete(ctx, e.ID); err != nil {
				return journal.Entry{}, err
			}
			utils.LogInfo("superseded pending propagation",
				zap.String("entry_id", e.ID), zap.String("kind", string(e.Kind)), zap.String("root_id", e.RootID))
		}
	}

	entry := journal.Entry{
		Kind:    m.Kind,
		RootID:  root.ID.Hex(),
		GroupID: m.GroupID,
	}
	if m.Kind == journal.KindTrash {
		at := m.At
		entry.At = &at
	}
	return p.journal.Begin(ctx, entry)
}

func (p *Propagator) execute(ctx context.Context, root *models.Folder, m Mutation, entry journal.Entry) (PropagationResult, error) {
	started := time.Now()
	sc := scopeOf(&root.NodeMeta)

	res, err := p.run(ctx, root, m, sc)
	metrics.RecordPropagation(string(m.Kind), res.Updated, time.Since(started), err == nil)

	// Journal bookkeeping must outlive a cancelled request.
	bookkeeping := context.WithoutCancel(ctx)
	if err != nil {
		var partial *PartialPropagationError
		if errors.As(err, &partial) {
			partial.JournalID = entry.ID
		}
		if ferr := p.journal.Fail(bookkeeping, entry.ID, err); ferr != nil {
			utils.LogError("failed to record propagation failure", ferr, zap.String("entry_id", entry.ID))
		}
		utils.LogError("propagation stopped", err,
			zap.String("kind", string(m.Kind)),
			zap.String("root_id", root.ID.Hex()),
			zap.Int("updated", res.Updated),
			zap.Int("discovered", res.Discovered))
		return res, err
	}

	if cerr := p.journal.Complete(bookkeeping, entry.ID); cerr != nil {
		utils.LogError("failed to clear journal entry", cerr, zap.String("entry_id", entry.ID))
	}
	utils.LogInfo("propagation complete",
		zap.String("kind", string(m.Kind)),
		zap.String("root_id", root.ID.Hex()),
		zap.Int("updated", res.Updated),
		zap.Int("discovered", res.Discovered),
		zap.Int("batches", res.Batches))
	return res, nil
}

func (p *Propagator) run(ctx context.Context, root *models.Folder, m Mutation, sc subtreeScope) (PropagationResult, error) {
	now := p.now()
	fields := m.fields(now)
	limit := p.store.MaxBatchSize()
	res := PropagationResult{Discovered: 1}
	batch := p.store.NewBatch()

	fail := func(err error, failed []primitive.ObjectID, directory string) error {
		return &PartialPropagationError{
			RootID:     root.ID,
			Kind:       m.Kind,
			Updated:    res.Updated,
			Discovered: res.Discovered,
			FailedIDs:  failed,
			Directory:  directory,
			Err:        err,
		}
	}

	commit := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := batch.Commit(ctx); err != nil {
			metrics.RecordBatchCommit(false)
			return fail(err, batch.IDs(), "")
		}
		metrics.RecordBatchCommit(true)
		res.Updated += batch.Len()
		res.Batches++
		batch = p.store.NewBatch()
		return nil
	}

	stage := func(n models.Node) error {
		batch.Update(n.Collection(), n.Meta().ID, fields)
		if batch.Len() >= limit {
			return commit()
		}
		return nil
	}

	// Root goes into the first batch so readers see it change first.
	if err := stage(root); err != nil {
		return res, err
	}

	queue := []string{root.FolderPath}
	visited := map[string]bool{root.FolderPath: true}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return res, fail(err, batch.IDs(), "")
		}

		ownPath := queue[0]
		queue = queue[1:]
		directory := utils.ChildDirectory(ownPath)

		folders, files, err := children(ctx, p.store, sc, directory, nil)
		if err != nil {
			return res, fail(err, batch.IDs(), directory)
		}
		res.Discovered += len(folders) + len(files)

		for _, f := range folders {
			if !visited[f.FolderPath] {
				visited[f.FolderPath] = true
				queue = append(queue, f.FolderPath)
			}
			if m.satisfiedBy(&f.NodeMeta) {
				continue
			}
			if err := stage(f); err != nil {
				return res, err
			}
		}
		for _, f := range files {
			if m.satisfiedBy(&f.NodeMeta) {
				continue
			}
			if err := stage(f); err != nil {
				return res, err
			}
		}
	}

	if err := commit(); err != nil {
		return res, err
	}
	m.apply(&root.NodeMeta, now)
	return res, nil
}
