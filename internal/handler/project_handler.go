package handler

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"taskflow/internal/app/db"
	"taskflow/internal/app/project"
	"taskflow/internal/app/user"
	"taskflow/internal/pkg/errs"
	"taskflow/internal/pkg/logx"
	"taskflow/internal/pkg/req"
	"taskflow/internal/pkg/resp"
)

const maxProjectNameLength = 100

type CreateProjectInput struct {
	Name string `json:"name"`
}

// HandleCreateProject creates a project owned by the caller.
func HandleCreateProject(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, customErr := currentUser(deps, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input CreateProjectInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		name := strings.TrimSpace(input.Name)
		if name == "" || utf8.RuneCountInString(name) > maxProjectNameLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		p, err := deps.Projects.CreateProject(r.Context(), name, caller.ID)
		if err != nil {
			logx.Error(err, "failed to create project", "owner_id", caller.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("Project created", "project_id", p.ID, "owner_id", caller.ID)
		resp.RespondCreated(w, r, map[string]any{"project": p})
	}
}

// HandleGetProject returns a project to its members and to global admins.
func HandleGetProject(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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

		resp.RespondSuccess(w, r, map[string]any{"project": p})
	}
}

type AddMemberInput struct {
	UserID string       `json:"userId"`
	Role   project.Role `json:"role"`
}

// HandleAddMember adds a user to a project. The caller needs canInviteMembers; the new member
// is notified on every live websocket connection.
func HandleAddMember(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, customErr := currentUser(deps, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input AddMemberInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Role == "" {
			input.Role = project.RoleMember
		}
		if input.UserID == "" || !input.Role.Valid() || input.Role == project.RoleOwner {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		p, customErr := loadProject(deps, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if !project.Allows(p.Members, caller.ID, project.CanInviteMembers) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPermissionDenied, project.CanInviteMembers))
			return
		}

		if project.IsMember(p.Members, input.UserID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyMember))
			return
		}

		invitee, err := deps.Users.GetUserByID(r.Context(), input.UserID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			logx.Error(err, "add member: user lookup failed", "user_id", input.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}
		if !invitee.IsActive {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserInactive))
			return
		}

		member, err := deps.Projects.AddMember(r.Context(), p.ID, invitee.ID, input.Role)
		switch {
		case err == nil:
		case db.IsUniqueViolation(err):
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyMember))
			return
		case db.IsForeignKeyViolation(err):
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		default:
			logx.Error(err, "failed to add project member", "project_id", p.ID, "user_id", invitee.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		notified := 0
		if deps.Hub != nil {
			notified = deps.Hub.NotifyInvitation(caller.Identity(), p, invitee.ID, member.Role)
		}

		logx.Info("Project member added", "project_id", p.ID, "user_id", invitee.ID, "role", member.Role, "notified", notified)
		resp.RespondCreated(w, r, map[string]any{
			"member":   member,
			"notified": notified,
		})
	}
}

// loadProject fetches the project named by the {projectID} route parameter.
func loadProject(deps *AppDeps, r *http.Request) (project.Project, *errs.CustomError) {
	projectID, customErr := req.URLParam(r, "projectID")
	if customErr != nil {
		return project.Project{}, customErr
	}

	p, err := deps.Projects.FetchProject(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			return project.Project{}, errs.NewError(errs.ErrProjectNotFound)
		}
		logx.Error(err, "project lookup failed", "project_id", projectID)
		return project.Project{}, errs.NewError(errs.ErrUnknown)
	}

	return p, nil
}

// loadVisibleProject is loadProject restricted to members and global admins.
func loadVisibleProject(deps *AppDeps, r *http.Request, caller user.Identity) (project.Project, *errs.CustomError) {
	p, customErr := loadProject(deps, r)
	if customErr != nil {
		return project.Project{}, customErr
	}

	if !caller.IsGlobalAdmin() && !project.IsMember(p.Members, caller.ID) {
		return project.Project{}, errs.NewError(errs.ErrNotProjectMember)
	}

	return p, nil
}
