package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TrashItem struct {
	ItemID       primitive.ObjectID `json:"item_id"`
	ItemType     NodeKind           `json:"item_type"`
	Name         string             `json:"name"`
	OriginalPath string             `json:"original_path"`
	OwnerID      string             `json:"owner_id"`
	GroupID      *string            `json:"group_id,omitempty"`
	Size         int64              `json:"size"`
	DeletedAt    time.Time          `json:"deleted_at"`
	AutoPurgeAt  time.Time          `json:"auto_purge_at"`
}

type PurgeFailure struct {
	ItemID string `json:"item_id"`
	Error  string `json:"error"`
}

type EmptyTrashResult struct {
	Purged   int            `json:"purged"`
	Failures []PurgeFailure `json:"failures,omitempty"`
}
