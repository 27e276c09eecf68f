package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// ShareRequest is the body of a share call.
type ShareRequest struct {
	GroupID string `json:"group_id" binding:"required"`
}

// ShareResult reports what a share or unshare call touched. NoOp is set when
// the node already had the requested scope.
type ShareResult struct {
	NodeID     primitive.ObjectID `json:"node_id"`
	GroupID    *string            `json:"group_id"`
	NoOp       bool               `json:"no_op"`
	Updated    int                `json:"updated"`
	Discovered int                `json:"discovered"`
}
