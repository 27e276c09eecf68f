package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"groupdrive/models"
	"groupdrive/utils"
)

// CreateFolder creates a private folder named name inside directory.
func (s *NodeService) CreateFolder(ctx context.Context, identity models.Identity, name, directory string) (*models.Folder, error) {
	if identity.UID == "" {
		return nil, ErrNotAuthenticated
	}
	if err := utils.ValidateNodeName(name); err != nil {
		return nil, invalidInput(err)
	}
	if err := utils.ValidateDirectory(directory); err != nil {
		return nil, invalidInput(err)
	}

	tree, err := s.ensureParent(ctx, identity, directory)
	if err != nil {
		return nil, err
	}

	// Check if folder with same name exists among the visible siblings
	existing, err := s.visibleFolders(ctx, identity, directory, bson.M{"name": name})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("folder '%s' in %s: %w", name, directory, ErrDuplicateName)
	}

	now := s.now()
	folder := &models.Folder{
		NodeMeta: models.NodeMeta{
			ID:           primitive.NewObjectID(),
			Name:         name,
			OwnerID:      identity.UID,
			TreeOwnerID:  tree,
			Directory:    directory,
			GroupID:      nil,
			IsDeleted:    false,
			CreatedAt:    now,
			LastModified: now,
			UpdatedAt:    now,
			Type:         models.KindFolder,
		},
		FolderPath: utils.FolderPath(directory, name),
	}

	if err := s.store.InsertOne(ctx, models.FoldersCollection, folder); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	utils.LogInfo("folder created",
		zap.String("folder_id", folder.ID.Hex()),
		zap.String("owner_id", identity.UID),
		zap.String("folder_path", folder.FolderPath))
	return folder, nil
}
