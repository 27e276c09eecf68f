package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"groupdrive/metrics"
	"groupdrive/models"
	"groupdrive/storage"
	"groupdrive/utils"
)

// CreateFile stores the bytes in the object store and records a private file
// node pointing at them. If the record cannot be written the blob is removed
// again.
func (s *NodeService) CreateFile(ctx context.Context, identity models.Identity, name, directory string, size int64, content io.Reader) (*models.File, error) {
	if identity.UID == "" {
		return nil, ErrNotAuthenticated
	}
	if err := utils.ValidateNodeName(name); err != nil {
		return nil, invalidInput(err)
	}
	if err := utils.ValidateDirectory(directory); err != nil {
		return nil, invalidInput(err)
	}
	if err := utils.ValidateFileSize(size, s.maxFileSize); err != nil {
		return nil, invalidInput(err)
	}

	tree, err := s.ensureParent(ctx, identity, directory)
	if err != nil {
		return nil, err
	}

	existing, err := s.visibleFiles(ctx, identity, directory, bson.M{"name": name})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("file '%s' in %s: %w", name, directory, ErrDuplicateName)
	}

	id := primitive.NewObjectID()
	key := utils.StorageKey(identity.UID, directory, id.Hex(), name)

	ref, err := s.objects.Put(ctx, key, content, size)
	metrics.RecordObjectStoreOp("put", err == nil)
	if err != nil {
		return nil, &ObjectStoreError{Op: "put", Key: key, Err: err}
	}

	now := s.now()
	file := &models.File{
		NodeMeta: models.NodeMeta{
			ID:           id,
			Name:         name,
			OwnerID:      identity.UID,
			TreeOwnerID:  tree,
			Directory:    directory,
			GroupID:      nil,
			IsDeleted:    false,
			CreatedAt:    now,
			LastModified: now,
			UpdatedAt:    now,
			Type:         models.KindFile,
		},
		Size:        size,
		StoragePath: key,
		DownloadURL: ref,
	}

	if err := s.store.InsertOne(ctx, models.FilesCollection, file); err != nil {
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			utils.LogError("failed to remove blob after insert failure", delErr, zap.String("key", key))
		}
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	utils.LogInfo("file created",
		zap.String("file_id", id.Hex()),
		zap.String("owner_id", identity.UID),
		zap.String("storage_path", key),
		zap.Int64("size", size))
	return file, nil
}

// DownloadURL returns a fresh object-store reference for a live file the
// caller can see.
func (s *NodeService) DownloadURL(ctx context.Context, identity models.Identity, fileID primitive.ObjectID) (string, error) {
	if identity.UID == "" {
		return "", ErrNotAuthenticated
	}
	file, err := s.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if file.IsDeleted || !s.permissionService.CanModify(identity, &file.NodeMeta) {
		return "", fmt.Errorf("file %s: %w", fileID.Hex(), ErrNodeNotFound)
	}

	url, err := s.objects.URL(ctx, file.StoragePath)
	metrics.RecordObjectStoreOp("url", err == nil)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", fmt.Errorf("blob for file %s: %w", fileID.Hex(), ErrNodeNotFound)
		}
		return "", &ObjectStoreError{Op: "url", Key: file.StoragePath, Err: err}
	}
	return url, nil
}

// OpenContent streams a live file's bytes from the object store.
func (s *NodeService) OpenContent(ctx context.Context, identity models.Identity, fileID primitive.ObjectID) (*models.File, io.ReadCloser, error) {
	if identity.UID == "" {
		return nil, nil, ErrNotAuthenticated
	}
	file, err := s.GetFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if file.IsDeleted || !s.permissionService.CanModify(identity, &file.NodeMeta) {
		return nil, nil, fmt.Errorf("file %s: %w", fileID.Hex(), ErrNodeNotFound)
	}

	rc, err := s.objects.Get(ctx, file.StoragePath)
	metrics.RecordObjectStoreOp("get", err == nil)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, fmt.Errorf("blob for file %s: %w", fileID.Hex(), ErrNodeNotFound)
		}
		return nil, nil, &ObjectStoreError{Op: "get", Key: file.StoragePath, Err: err}
	}
	return file, rc, nil
}
