package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"groupdrive/journal"
	"groupdrive/models"
)

func TestShareFolder_SharesWholeSubtree(t *testing.T) {
	f := newFixture(t, 0, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")
	u2 := user("u2", "g1")

	docs := f.folder(t, u1, "docs", "/")
	reports := f.folder(t, u1, "reports", "/docs/")

	listing, err := f.nodes.ListVisible(ctx, u2, "/")
	require.NoError(t, err)
	assert.Empty(t, listing.Folders)

	res, err := f.shares.ShareFolder(ctx, u1, docs.ID, "g1")
	require.NoError(t, err)
	assert.False(t, res.NoOp)
	assert.Equal(t, 2, res.Updated)

	assert.Equal(t, "g1", *f.reloadFolder(t, docs.ID).GroupID)
	assert.Equal(t, "g1", *f.reloadFolder(t, reports.ID).GroupID)

	listing, err = f.nodes.ListVisible(ctx, u2, "/")
	require.NoError(t, err)
	require.Len(t, listing.Folders, 1)
	assert.Equal(t, docs.ID, listing.Folders[0].ID)

	listing, err = f.nodes.ListVisible(ctx, u2, "/docs/")
	require.NoError(t, err)
	require.Len(t, listing.Folders, 1)
	assert.Equal(t, reports.ID, listing.Folders[0].ID)

	// The owner keeps seeing the subtree through the group predicate.
	listing, err = f.nodes.ListVisible(ctx, u1, "/docs/")
	require.NoError(t, err)
	assert.Len(t, listing.Folders, 1)
}

func TestUnshareFolder_MakesSubtreePrivate(t *testing.T) {
	f := newFixture(t, 0, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")
	u2 := user("u2", "g1")

	docs := f.folder(t, u1, "docs", "/")
	reports := f.folder(t, u1, "reports", "/docs/")
	_, err := f.shares.ShareFolder(ctx, u1, docs.ID, "g1")
	require.NoError(t, err)

	res, err := f.shares.UnshareFolder(ctx, u1, docs.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Nil(t, res.GroupID)

	assert.Nil(t, f.reloadFolder(t, docs.ID).GroupID)
	assert.Nil(t, f.reloadFolder(t, reports.ID).GroupID)

	listing, err := f.nodes.ListVisible(ctx, u2, "/")
	require.NoError(t, err)
	assert.Empty(t, listing.Folders)

	listing, err = f.nodes.ListVisible(ctx, u1, "/docs/")
	require.NoError(t, err)
	assert.Len(t, listing.Folders, 1)
}

func TestShareFolder_IsIdempotent(t *testing.T) {
	f := newFixture(t, 0, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")
	root := f.wideTree(t, u1)

	first, err := f.shares.ShareFolder(ctx, u1, root.ID, "g1")
	require.NoError(t, err)
	assert.Equal(t, 10, first.Updated)
	commits := f.store.Commits()

	second, err := f.shares.ShareFolder(ctx, u1, root.ID, "g1")
	require.NoError(t, err)
	assert.True(t, second.NoOp)
	assert.Equal(t, commits, f.store.Commits())

	for _, n := range f.allNodes(t) {
		require.NotNil(t, n.Meta().GroupID, n.Meta().Name)
		assert.Equal(t, "g1", *n.Meta().GroupID)
	}
}

func TestPropagate_RespectsBatchCeiling(t *testing.T) {
	f := newFixture(t, 2, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")
	root := f.wideTree(t, u1)

	res, err := f.propagator.Propagate(ctx, root, ShareWith("g1"))
	require.NoError(t, err)
	assert.Equal(t, 10, res.Updated)
	assert.Equal(t, 10, res.Discovered)
	assert.Equal(t, 5, res.Batches)
	assert.Equal(t, 5, f.store.Commits())
	assert.LessOrEqual(t, f.store.LargestBatch(), 2)

	for _, n := range f.allNodes(t) {
		assert.True(t, n.Meta().SharedWith("g1"), n.Meta().Name)
	}
	assert.True(t, root.SharedWith("g1"))

	pending, err := f.journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPropagate_SkipsNodesAlreadyConverged(t *testing.T) {
	f := newFixture(t, 0, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")
	root := f.wideTree(t, u1)

	sub := f.folder(t, u1, "late", "/root/")
	_, err := f.propagator.Propagate(ctx, sub, ShareWith("g1"))
	require.NoError(t, err)

	res, err := f.propagator.Propagate(ctx, root, ShareWith("g1"))
	require.NoError(t, err)
	assert.Equal(t, 11, res.Discovered)
	assert.Equal(t, 10, res.Updated)
}

func TestPropagate_PartialFailureLeavesResumableEntry(t *testing.T) {
	f := newFixture(t, 2, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")
	root := f.wideTree(t, u1)

	boom := errors.New("write quota exceeded")
	commits := 0
	f.store.CommitHook = func([]primitive.ObjectID) error {
		commits++
		if commits == 3 {
			return boom
		}
		return nil
	}

	res, err := f.shares.ShareFolder(ctx, u1, root.ID, "g1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialPropagation)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, res.Updated)

	var partial *PartialPropagationError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, root.ID, partial.RootID)
	assert.Equal(t, journal.KindShare, partial.Kind)
	assert.Equal(t, 4, partial.Updated)
	assert.Equal(t, 6, partial.Discovered)
	assert.Len(t, partial.FailedIDs, 2)
	assert.NotEmpty(t, partial.JournalID)

	pending, err := f.journal.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, partial.JournalID, pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Contains(t, pending[0].LastError, "write quota exceeded")

	// The root already carries g1, but the unfinished run keeps the retry
	// from being treated as a no-op.
	assert.True(t, f.reloadFolder(t, root.ID).SharedWith("g1"))
	f.store.CommitHook = nil

	retry, err := f.shares.ShareFolder(ctx, u1, root.ID, "g1")
	require.NoError(t, err)
	assert.False(t, retry.NoOp)

	for _, n := range f.allNodes(t) {
		assert.True(t, n.Meta().SharedWith("g1"), n.Meta().Name)
	}
	pending, err = f.journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPropagator_ResumeFinishesPendingEntries(t *testing.T) {
	f := newFixture(t, 2, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")
	root := f.wideTree(t, u1)

	f.store.CommitHook = func([]primitive.ObjectID) error { return errors.New("unavailable") }
	_, err := f.propagator.Propagate(ctx, root, ShareWith("g1"))
	require.ErrorIs(t, err, ErrPartialPropagation)
	f.store.CommitHook = nil

	// An entry whose root no longer exists is dropped.
	_, err = f.journal.Begin(ctx, journal.Entry{Kind: journal.KindTrash, RootID: primitive.NewObjectID().Hex()})
	require.NoError(t, err)

	resumed, failed, err := f.propagator.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)
	assert.Equal(t, 0, failed)

	for _, n := range f.allNodes(t) {
		assert.True(t, n.Meta().SharedWith("g1"), n.Meta().Name)
	}
	pending, err := f.journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPropagate_NewRunSupersedesPendingEntry(t *testing.T) {
	f := newFixture(t, 2, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")
	root := f.wideTree(t, u1)

	f.store.CommitHook = func([]primitive.ObjectID) error { return errors.New("unavailable") }
	_, err := f.propagator.Propagate(ctx, root, ShareWith("g1"))
	require.Error(t, err)
	f.store.CommitHook = nil

	_, err = f.propagator.Propagate(ctx, root, Unshare())
	require.NoError(t, err)

	pending, err := f.journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	for _, n := range f.allNodes(t) {
		assert.True(t, n.Meta().IsPrivate(), n.Meta().Name)
	}
}

func TestShareFolder_OnlyOwnerChangesScope(t *testing.T) {
	f := newFixture(t, 0, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")
	member := user("u2", "g1")
	stranger := user("u3", "g2")

	docs := f.folder(t, u1, "docs", "/")

	_, err := f.shares.ShareFolder(ctx, stranger, docs.ID, "g2")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = f.shares.ShareFolder(ctx, u1, docs.ID, "g2")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.shares.ShareFolder(ctx, u1, docs.ID, "g1")
	require.NoError(t, err)

	_, err = f.shares.UnshareFolder(ctx, member, docs.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	admin := models.Identity{UID: "u1", IsAdmin: true}
	res, err := f.shares.ShareFolder(ctx, admin, docs.ID, "g2")
	require.NoError(t, err)
	assert.Equal(t, "g2", *res.GroupID)

	_, err = f.shares.ShareFolder(ctx, u1, docs.ID, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.shares.ShareFolder(ctx, models.Identity{}, docs.ID, "g1")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestShareFolder_StaysInsideOwnersTree(t *testing.T) {
	f := newFixture(t, 0, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")
	other := user("u9")

	mine := f.folder(t, u1, "docs", "/")
	f.folder(t, u1, "a", "/docs/")
	f.folder(t, other, "docs", "/")
	theirs := f.folder(t, other, "b", "/docs/")

	res, err := f.shares.ShareFolder(ctx, u1, mine.ID, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.True(t, f.reloadFolder(t, theirs.ID).IsPrivate())
}

func TestShareFolder_ReachesMembersContent(t *testing.T) {
	f := newFixture(t, 0, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")
	u2 := user("u2", "g1")

	docs := f.folder(t, u1, "docs", "/")
	_, err := f.shares.ShareFolder(ctx, u1, docs.ID, "g1")
	require.NoError(t, err)
	x := f.file(t, u2, "x.txt", "/docs/", "x")

	res, err := f.shares.UnshareFolder(ctx, u1, docs.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	res, err = f.shares.ShareFolder(ctx, u1, docs.ID, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Discovered)
	assert.Equal(t, 2, res.Updated)
	assert.True(t, f.reloadFile(t, x.ID).SharedWith("g1"))
	assert.Equal(t, "u2", f.reloadFile(t, x.ID).OwnerID)

	listing, err := f.nodes.ListVisible(ctx, u1, "/docs/")
	require.NoError(t, err)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, x.ID, listing.Files[0].ID)
}

func TestShareFolder_RejectsNameTakenInGroup(t *testing.T) {
	f := newFixture(t, 0, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")
	u2 := user("u2", "g1")

	mine := f.folder(t, u1, "docs", "/")
	a := f.folder(t, u1, "a", "/docs/")
	theirs := f.folder(t, u2, "docs", "/")
	kept := f.file(t, u2, "kept.txt", "/docs/", "k")

	_, err := f.shares.ShareFolder(ctx, u1, mine.ID, "g1")
	require.NoError(t, err)

	_, err = f.shares.ShareFolder(ctx, u2, theirs.ID, "g1")
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.True(t, f.reloadFolder(t, theirs.ID).IsPrivate())

	// Same path, different tree: scope changes on one never reach the other.
	_, err = f.shares.ShareFile(ctx, u2, kept.ID, "g1")
	require.NoError(t, err)

	res, err := f.shares.UnshareFolder(ctx, u1, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.True(t, f.reloadFolder(t, a.ID).IsPrivate())
	assert.True(t, f.reloadFile(t, kept.ID).SharedWith("g1"))
}

func TestShare_RejectsNameAMemberKeepsPrivate(t *testing.T) {
	f := newFixture(t, 0, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")
	g1 := "g1"
	require.NoError(t, f.store.InsertOne(ctx, models.UsersCollection, models.User{ID: "u1", GroupID: &g1}))
	require.NoError(t, f.store.InsertOne(ctx, models.UsersCollection, models.User{ID: "u2", GroupID: &g1}))
	require.NoError(t, f.store.InsertOne(ctx, models.UsersCollection, models.User{ID: "u3"}))

	notes := f.folder(t, u1, "notes", "/")
	f.folder(t, user("u2", "g1"), "notes", "/")
	report := f.file(t, u1, "report.txt", "/", "r")
	f.file(t, user("u2", "g1"), "report.txt", "/", "r")
	plan := f.file(t, u1, "plan.txt", "/", "p")
	f.file(t, user("u3"), "plan.txt", "/", "p")

	_, err := f.shares.ShareFolder(ctx, u1, notes.ID, "g1")
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.True(t, f.reloadFolder(t, notes.ID).IsPrivate())

	_, err = f.shares.ShareFile(ctx, u1, report.ID, "g1")
	assert.ErrorIs(t, err, ErrDuplicateName)

	// u3 is outside the group, so its file does not collide.
	_, err = f.shares.ShareFile(ctx, u1, plan.ID, "g1")
	require.NoError(t, err)
}

func TestShareFolder_ReachesTrashedDescendants(t *testing.T) {
	f := newFixture(t, 0, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")

	docs := f.folder(t, u1, "docs", "/")
	old := f.file(t, u1, "old.txt", "/docs/", "old")
	_, err := f.trash.SoftDelete(ctx, u1, old.ID)
	require.NoError(t, err)

	_, err = f.shares.ShareFolder(ctx, u1, docs.ID, "g1")
	require.NoError(t, err)
	assert.True(t, f.reloadFile(t, old.ID).SharedWith("g1"))

	_, err = f.trash.Restore(ctx, u1, old.ID)
	require.NoError(t, err)

	listing, err := f.nodes.ListVisible(ctx, user("u2", "g1"), "/docs/")
	require.NoError(t, err)
	assert.Len(t, listing.Files, 1)
}

func TestShareFile_ChangesOneNode(t *testing.T) {
	f := newFixture(t, 0, PolicyRequireEmpty)
	ctx := context.Background()
	u1 := user("u1", "g1")

	file := f.file(t, u1, "notes.txt", "/", "hello")

	res, err := f.shares.ShareFile(ctx, u1, file.ID, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.True(t, f.reloadFile(t, file.ID).SharedWith("g1"))

	again, err := f.shares.ShareFile(ctx, u1, file.ID, "g1")
	require.NoError(t, err)
	assert.True(t, again.NoOp)

	_, err = f.shares.UnshareFile(ctx, u1, file.ID)
	require.NoError(t, err)
	assert.True(t, f.reloadFile(t, file.ID).IsPrivate())
}
