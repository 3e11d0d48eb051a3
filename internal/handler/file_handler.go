package handler

import (
	"errors"
	"net/http"

	"taskflow/internal/app/project"
	"taskflow/internal/app/storage"
	"taskflow/internal/pkg/errs"
	"taskflow/internal/pkg/logx"
	"taskflow/internal/pkg/req"
	"taskflow/internal/pkg/resp"
)

// PresignUploadInput defines the JSON input structure for generating upload URL.
type PresignUploadInput struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// HandlePresignUploadURL creates an HTTP HandlerFunc to generate a time-limited,
// pre-signed URL for uploading an attachment to a project the caller belongs to.
func HandlePresignUploadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.StorageService == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		caller, customErr := currentUser(deps, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		p, customErr := loadVisibleProject(deps, r, caller.Identity())
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input PresignUploadInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := storage.ValidateFileSize(input.FileSize); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := storage.ValidateFileType(input.FileName, input.MimeType); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		fileKey := storage.NewObjectKey(p.ID, input.FileName)

		url, err := deps.StorageService.PresignUpload(
			r.Context(),
			fileKey,
			input.MimeType,
			input.FileSize,
			storage.PresignedURLDuration,
		)
		if err != nil {
			logx.Error(err, "failed to presign upload", "project_id", p.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"presignedUrl": url,
			"fileKey":      fileKey,
			"fileName":     input.FileName,
		})
	}
}

// HandlePresignDownloadURL redirects a project member to a time-limited download URL for
// the attachment named by the "k" query parameter.
func HandlePresignDownloadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, fileKey, customErr := resolveAttachment(deps, r, "")
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		url, err := deps.StorageService.PresignDownload(r.Context(), fileKey, storage.PresignedURLDuration)
		if err != nil {
			logx.Error(err, "failed to presign download", "project_id", p.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}

// HandleDeleteAttachment removes an attachment. Deleting requires canDeleteTasks, the same
// capability that guards deleting the task it hangs off.
func HandleDeleteAttachment(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, fileKey, customErr := resolveAttachment(deps, r, project.CanDeleteTasks)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.StorageService.Delete(r.Context(), fileKey); err != nil {
			logx.Error(err, "failed to delete attachment", "project_id", p.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		logx.Info("Attachment deleted", "project_id", p.ID, "file_key", fileKey)
		resp.RespondSuccess(w, r, map[string]any{"fileKey": fileKey})
	}
}

// resolveAttachment checks storage, the caller's access to the project and that the "k"
// key exists inside the project's namespace. A non-empty permission is additionally required.
func resolveAttachment(deps *AppDeps, r *http.Request, permission project.Permission) (project.Project, string, *errs.CustomError) {
	if deps.StorageService == nil {
		return project.Project{}, "", errs.NewError(errs.ErrFileStorageFailed)
	}

	caller, customErr := currentUser(deps, r)
	if customErr != nil {
		return project.Project{}, "", customErr
	}

	fileKey, customErr := req.QueryParam(r, "k")
	if customErr != nil {
		return project.Project{}, "", customErr
	}

	p, customErr := loadVisibleProject(deps, r, caller.Identity())
	if customErr != nil {
		return project.Project{}, "", customErr
	}

	if permission != "" && !project.Allows(p.Members, caller.ID, permission) {
		return project.Project{}, "", errs.NewError(errs.ErrPermissionDenied, permission)
	}

	if !storage.KeyBelongsTo(p.ID, fileKey) {
		return project.Project{}, "", errs.NewError(errs.ErrAttachmentKeyInvalid)
	}

	if _, err := deps.StorageService.Stat(r.Context(), fileKey); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return project.Project{}, "", errs.NewError(errs.ErrAttachmentKeyInvalid)
		}
		logx.Error(err, "failed to stat attachment", "project_id", p.ID)
		return project.Project{}, "", errs.NewError(errs.ErrFileStorageFailed)
	}

	return p, fileKey, nil
}
