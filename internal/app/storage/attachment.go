package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskflow/internal/pkg/errs"
)

const (
	// MaxAttachmentSizeMB is the maximum allowed file size in megabytes.
	MaxAttachmentSizeMB = 10

	// MaxAttachmentSize is the maximum allowed file size in bytes.
	MaxAttachmentSize = MaxAttachmentSizeMB * 1024 * 1024

	// PresignedURLDuration is the fixed duration for which a presigned URL is valid.
	PresignedURLDuration = 5 * time.Minute
)

// ExtToMIME maps the permitted file extensions to their MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".zip":  "application/zip",
}

// ValidateFileSize checks if the provided file size is within acceptable limits.
func ValidateFileSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if fileSize > MaxAttachmentSize {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}

	return nil
}

// ValidateFileType checks that the extension of fileName is permitted and agrees with mimeType.
func ValidateFileType(fileName string, mimeType string) *errs.CustomError {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) < 2 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	expectedMIME, ok := ExtToMIME[ext]
	if !ok {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if expectedMIME != strings.ToLower(mimeType) {
		return errs.NewError(errs.ErrInvalidParams)
	}

	return nil
}

// NewObjectKey returns a fresh key for an attachment of projectID, keeping the file's
// extension.
func NewObjectKey(projectID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("%s/%s%s", projectID, uuid.NewString(), ext)
}

// KeyBelongsTo reports whether key lies in projectID's namespace.
func KeyBelongsTo(projectID, key string) bool {
	if projectID == "" || strings.Contains(key, "..") {
		return false
	}

	rest, ok := strings.CutPrefix(key, projectID+"/")
	return ok && rest != "" && !strings.Contains(rest, "/")
}
