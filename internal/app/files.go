package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"cropadviser/pkg/domain"
	"cropadviser/pkg/storage"
	"cropadviser/pkg/store"
)

// FileUpload is an incoming multipart file.
type FileUpload struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// UploadFileInput stores a document an adviser shares with a farmer.
type UploadFileInput struct {
	FarmerID uint
	Category string
	Notes    string
	File     FileUpload
}

func (a *App) UploadUserFile(ctx context.Context, actor domain.User, in UploadFileInput) (domain.UserFile, error) {
	if actor.UserLevel != domain.LevelAgent && actor.UserLevel != domain.LevelAdmin {
		return domain.UserFile{}, ErrForbidden
	}
	if a.objects == nil {
		return domain.UserFile{}, errors.New("object storage not configured")
	}
	if in.FarmerID == 0 {
		return domain.UserFile{}, invalidf("farmer_id is required")
	}
	if in.File.Reader == nil || in.File.Size <= 0 || strings.TrimSpace(in.File.Name) == "" {
		return domain.UserFile{}, invalidf("file is required")
	}
	farmer, ok, err := a.store.GetUserByID(in.FarmerID)
	if err != nil {
		return domain.UserFile{}, fmt.Errorf("lookup farmer: %w", err)
	}
	if !ok || farmer.UserLevel != domain.LevelFarmer {
		return domain.UserFile{}, invalidf("farmer %d not found", in.FarmerID)
	}

	key := storage.FileKey(in.File.Name)
	contentType := storage.ContentTypeFor(in.File.Name, in.File.ContentType)
	if err := a.objects.Put(ctx, key, in.File.Reader, in.File.Size, contentType); err != nil {
		return domain.UserFile{}, fmt.Errorf("store file: %w", err)
	}
	record := domain.UserFile{
		AdviserID:    actor.ID,
		FarmerID:     farmer.ID,
		OriginalName: filepath.Base(strings.TrimSpace(in.File.Name)),
		StoredName:   key,
		MimeType:     contentType,
		SizeBytes:    in.File.Size,
		Category:     strings.TrimSpace(in.Category),
		Notes:        strings.TrimSpace(in.Notes),
		CreatedAt:    a.now().UTC(),
		UpdatedAt:    a.now().UTC(),
	}
	if err := a.store.CreateUserFile(&record); err != nil {
		if delErr := a.objects.Delete(ctx, key); delErr != nil {
			slog.WarnContext(ctx, "orphaned object after failed file create", "key", key, "err", delErr)
		}
		return domain.UserFile{}, fmt.Errorf("create file record: %w", err)
	}
	slog.InfoContext(ctx, "user_file_uploaded", "file_id", record.ID, "adviser_id", record.AdviserID, "farmer_id", record.FarmerID)
	return a.withFileURL(ctx, record), nil
}

// ListUserFiles returns an adviser's uploads. Advisers only see their own;
// admins see everything and may filter by adviser.
func (a *App) ListUserFiles(ctx context.Context, actor domain.User, filter store.FileFilter) ([]domain.UserFile, error) {
	switch actor.UserLevel {
	case domain.LevelAdmin:
	case domain.LevelAgent:
		filter.AdviserID = actor.ID
	default:
		return nil, ErrForbidden
	}
	files, err := a.store.ListUserFiles(filter)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	for i := range files {
		files[i] = a.withFileURL(ctx, files[i])
	}
	return files, nil
}

// ListFilesForFarmer returns the documents shared with one farmer. An unknown
// farmer id yields an empty list, not an error.
func (a *App) ListFilesForFarmer(ctx context.Context, actor domain.User, farmerID uint) ([]domain.UserFile, error) {
	switch {
	case actor.UserLevel == domain.LevelAdmin, actor.UserLevel == domain.LevelAgent:
	case actor.ID == farmerID:
	default:
		return nil, ErrForbidden
	}
	files, err := a.store.ListUserFiles(store.FileFilter{FarmerID: farmerID})
	if err != nil {
		return nil, fmt.Errorf("list farmer files: %w", err)
	}
	for i := range files {
		files[i] = a.withFileURL(ctx, files[i])
	}
	return files, nil
}

// UpdateFileInput renames the notes/category on an uploaded document.
type UpdateFileInput struct {
	Category *string
	Notes    *string
}

func (a *App) UpdateUserFile(ctx context.Context, actor domain.User, id uint, in UpdateFileInput) (domain.UserFile, error) {
	record, ok, err := a.store.GetUserFile(id)
	if err != nil {
		return domain.UserFile{}, fmt.Errorf("lookup file: %w", err)
	}
	if !ok {
		return domain.UserFile{}, ErrNotFound
	}
	if actor.ID != record.AdviserID && actor.UserLevel != domain.LevelAdmin {
		return domain.UserFile{}, ErrForbidden
	}
	if in.Category != nil {
		record.Category = strings.TrimSpace(*in.Category)
	}
	if in.Notes != nil {
		record.Notes = strings.TrimSpace(*in.Notes)
	}
	record.UpdatedAt = a.now().UTC()
	if err := a.store.SaveUserFile(record); err != nil {
		return domain.UserFile{}, fmt.Errorf("save file: %w", err)
	}
	return a.withFileURL(ctx, record), nil
}

// DeleteUserFile removes the record and its stored object.
func (a *App) DeleteUserFile(ctx context.Context, actor domain.User, id uint) error {
	record, ok, err := a.store.GetUserFile(id)
	if err != nil {
		return fmt.Errorf("lookup file: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if actor.ID != record.AdviserID && actor.UserLevel != domain.LevelAdmin {
		return ErrForbidden
	}
	if a.objects != nil {
		if err := a.objects.Delete(ctx, record.StoredName); err != nil {
			slog.WarnContext(ctx, "delete stored object", "key", record.StoredName, "err", err)
		}
	}
	if err := a.store.DeleteUserFile(id); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	slog.InfoContext(ctx, "user_file_deleted", "file_id", id, "actor_id", actor.ID)
	return nil
}

// FileDownloadURL issues a short-lived pre-signed URL for the document.
func (a *App) FileDownloadURL(ctx context.Context, actor domain.User, id uint) (string, error) {
	record, ok, err := a.store.GetUserFile(id)
	if err != nil {
		return "", fmt.Errorf("lookup file: %w", err)
	}
	if !ok {
		return "", ErrNotFound
	}
	if actor.ID != record.AdviserID && actor.ID != record.FarmerID && actor.UserLevel != domain.LevelAdmin {
		return "", ErrForbidden
	}
	if a.objects == nil {
		return "", errors.New("object storage not configured")
	}
	url, err := a.objects.PresignGet(ctx, record.StoredName, presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url, nil
}

// withFileURL attaches a short-lived pre-signed URL to the record.
func (a *App) withFileURL(ctx context.Context, record domain.UserFile) domain.UserFile {
	if record.StoredName == "" || a.objects == nil {
		return record
	}
	url, err := a.objects.PresignGet(ctx, record.StoredName, presignExpiry)
	if err != nil {
		slog.WarnContext(ctx, "presign file", "key", record.StoredName, "err", err)
		return record
	}
	record.PublicURL = url
	return record
}
