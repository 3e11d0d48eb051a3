/*
Package errs provides custom error types and application-level error code constants.

This file maps error codes to their CustomError templates, used to standardize HTTP responses,
websocket error events and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Project, Room and Realtime Errors
	ErrProjectNotFound:      {Code: ErrProjectNotFound, Message: "Project not found.", Status: http.StatusNotFound},
	ErrNotInRoom:            {Code: ErrNotInRoom, Message: "Join a project before sending project events."},
	ErrPermissionDenied:     {Code: ErrPermissionDenied, Message: "Permission denied: %s", Status: http.StatusForbidden},
	ErrNotProjectMember:     {Code: ErrNotProjectMember, Message: "Not authorized to access this project.", Status: http.StatusForbidden},
	ErrAlreadyMember:        {Code: ErrAlreadyMember, Message: "User is already a member of this project.", Status: http.StatusConflict},
	ErrUnknownEvent:         {Code: ErrUnknownEvent, Message: "Unsupported event type."},
	ErrConnectionNotFound:   {Code: ErrConnectionNotFound, Message: "Connection is closed."},
	ErrFileSizeTooLarge:     {Code: ErrFileSizeTooLarge, Message: "File is too large.", Status: http.StatusBadRequest},
	ErrAttachmentKeyInvalid: {Code: ErrAttachmentKeyInvalid, Message: "Invalid attachment.", Status: http.StatusBadRequest},

	// 3xxx: User, Session, and Security Errors
	ErrUnauthenticated:    {Code: ErrUnauthenticated, Message: "Not authorized to access this route.", Status: http.StatusUnauthorized},
	ErrAlreadyBound:       {Code: ErrAlreadyBound, Message: "Connection is already authenticated."},
	ErrAlreadyLoggedIn:    {Code: ErrAlreadyLoggedIn, Message: "You are already signed in.", Status: http.StatusBadRequest},
	ErrInvalidEmail:       {Code: ErrInvalidEmail, Message: "Please provide a valid email.", Status: http.StatusBadRequest},
	ErrInvalidPassword:    {Code: ErrInvalidPassword, Message: "Password must be at least 6 characters.", Status: http.StatusBadRequest},
	ErrUserAlreadyExists:  {Code: ErrUserAlreadyExists, Message: "Email is already registered.", Status: http.StatusConflict},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Invalid credentials.", Status: http.StatusUnauthorized},
	ErrUserNotFound:       {Code: ErrUserNotFound, Message: "User not found.", Status: http.StatusNotFound},
	ErrUserInactive:       {Code: ErrUserInactive, Message: "User account has been deactivated.", Status: http.StatusUnauthorized},
	ErrAuthTimeout:        {Code: ErrAuthTimeout, Message: "Authentication timed out."},

	// 5xxx: Internal System Errors
	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Message: "File storage is unavailable. Please try again.", Status: http.StatusServiceUnavailable},
}
