/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the server and
on the wire: HTTP responses carry them in the JSON body and websocket error events carry
them in their payload.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Project, Room and Realtime Errors
const (
	// ErrProjectNotFound indicates that the referenced project does not exist.
	ErrProjectNotFound = 2101

	// ErrNotInRoom indicates a room-scoped event sent by a connection outside any room.
	ErrNotInRoom = 2102

	// ErrPermissionDenied indicates the acting member lacks the capability required by the action.
	ErrPermissionDenied = 2103

	// ErrNotProjectMember indicates the caller is not on the project's membership list.
	ErrNotProjectMember = 2104

	// ErrAlreadyMember indicates the invited user is already on the membership list.
	ErrAlreadyMember = 2105

	// ErrUnknownEvent indicates a websocket event type outside the supported set.
	ErrUnknownEvent = 2201

	// ErrConnectionNotFound indicates the referenced connection is no longer registered.
	ErrConnectionNotFound = 2202

	// ErrFileSizeTooLarge indicates that the attachment exceeds the size limit.
	ErrFileSizeTooLarge = 2301

	// ErrAttachmentKeyInvalid indicates an attachment key outside the project's namespace.
	ErrAttachmentKeyInvalid = 2302
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthenticated indicates a missing, malformed, expired or otherwise rejected credential.
	ErrUnauthenticated = 3001

	// ErrAlreadyBound indicates a second authenticate on a connection bound to another identity.
	ErrAlreadyBound = 3002

	// ErrAlreadyLoggedIn indicates a login or register call that already carries a valid token.
	ErrAlreadyLoggedIn = 3003

	// ErrInvalidEmail indicates an email address that fails the format check.
	ErrInvalidEmail = 3004

	// ErrInvalidPassword indicates a password outside the accepted length range.
	ErrInvalidPassword = 3005

	// ErrUserAlreadyExists indicates the email is already registered.
	ErrUserAlreadyExists = 3006

	// ErrInvalidCredentials indicates a failed login.
	ErrInvalidCredentials = 3007

	// ErrUserNotFound indicates that the referenced user does not exist.
	ErrUserNotFound = 3008

	// ErrUserInactive indicates a deactivated account.
	ErrUserInactive = 3009

	// ErrAuthTimeout indicates a connection closed for not authenticating in time.
	ErrAuthTimeout = 3010
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrFileStorageFailed indicates the object storage backend failed or is not configured.
	ErrFileStorageFailed = 5001
)
