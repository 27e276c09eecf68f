package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	FoldersCollection = "folders"
	FilesCollection   = "files"
	UsersCollection   = "users"
)

type NodeKind string

const (
	KindFolder NodeKind = "folder"
	KindFile   NodeKind = "file"
)

// Node is either a *Folder or a *File.
type Node interface {
	Meta() *NodeMeta
	Kind() NodeKind
	Collection() string
	// OwnPath is the path the node occupies; for folders it is the prefix
	// of its children's directory.
	OwnPath() string
}

// NodeMeta holds the fields shared by folders and files.
type NodeMeta struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	OwnerID      string             `bson:"owner_id" json:"owner_id"`
	// TreeOwnerID is the uid whose hierarchy the node lives in: the creator
	// for nodes at the root, the parent's tree owner below it. Paths are
	// only unique within one tree.
	TreeOwnerID  string             `bson:"tree_owner_id" json:"tree_owner_id"`
	Directory    string             `bson:"directory" json:"directory"`
	GroupID      *string            `bson:"group_id" json:"group_id"`
	IsDeleted    bool               `bson:"is_deleted" json:"is_deleted"`
	DeletedAt    *time.Time         `bson:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	LastModified time.Time          `bson:"last_modified" json:"last_modified"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
	Type         NodeKind           `bson:"type" json:"type"`
}

func (m *NodeMeta) Meta() *NodeMeta { return m }

// Tree returns the node's tree owner, falling back to its owner for
// records written before the field existed.
func (m *NodeMeta) Tree() string {
	if m.TreeOwnerID != "" {
		return m.TreeOwnerID
	}
	return m.OwnerID
}

// IsPrivate reports whether the node has no sharing scope.
func (m *NodeMeta) IsPrivate() bool { return m.GroupID == nil }

// SharedWith reports whether the node is scoped to groupID.
func (m *NodeMeta) SharedWith(groupID string) bool {
	return m.GroupID != nil && *m.GroupID == groupID
}

type Folder struct {
	NodeMeta   `bson:",inline"`
	FolderPath string `bson:"folder_path" json:"folder_path"`
}

func (f *Folder) Kind() NodeKind     { return KindFolder }
func (f *Folder) Collection() string { return FoldersCollection }
func (f *Folder) OwnPath() string    { return f.FolderPath }

// CollectionFor maps a node kind to the collection holding it.
func CollectionFor(kind NodeKind) string {
	if kind == KindFile {
		return FilesCollection
	}
	return FoldersCollection
}
