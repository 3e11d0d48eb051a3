/*
Package collab implements the realtime collaboration layer: authenticated connections,
project rooms, permission-gated events and their fan-out to connected project members.

This file defines the wire events. Inbound events form a closed set of EventType values,
each decoded into its own payload type before the Hub acts on it.
*/
package collab

import (
	"encoding/json"
	"errors"
	"time"

	"taskflow/internal/app/project"
	"taskflow/internal/app/user"
)

// EventType names an event on the wire.
type EventType string

// Inbound (client -> server) events.
const (
	EvAuthenticate     EventType = "authenticate"
	EvJoinProject      EventType = "join_project"
	EvLeaveProject     EventType = "leave_project"
	EvTaskUpdated      EventType = "task_updated"
	EvTaskCreated      EventType = "task_created"
	EvTaskDeleted      EventType = "task_deleted"
	EvCommentAdded     EventType = "comment_added"
	EvTypingStart      EventType = "typing_start"
	EvTypingStop       EventType = "typing_stop"
	EvProjectUpdated   EventType = "project_updated"
	EvMemberInvited    EventType = "member_invited"
	EvSendNotification EventType = "send_notification"
	EvStatusUpdate     EventType = "status_update"
)

// Outbound (server -> client) events. Mutation events reuse their inbound names.
const (
	EvAuthenticated       EventType = "authenticated"
	EvAuthenticationError EventType = "authentication_error"
	EvUserJoinedProject   EventType = "user_joined_project"
	EvUserLeftProject     EventType = "user_left_project"
	EvUserTyping          EventType = "user_typing"
	EvUserStoppedTyping   EventType = "user_stopped_typing"
	EvInvitationReceived  EventType = "invitation_received"
	EvNotification        EventType = "notification"
	EvUserStatusUpdated   EventType = "user_status_updated"
	EvUserDisconnected    EventType = "user_disconnected"
	EvError               EventType = "error"
)

// relay describes an inbound event that is forwarded to the sender's room with the
// acting identity attached under actorField.
type relay struct {
	actorField string
}

// relays lists the room-scoped mutation events forwarded as-is plus attribution.
var relays = map[EventType]relay{
	EvTaskUpdated:    {actorField: "updatedBy"},
	EvTaskCreated:    {actorField: "createdBy"},
	EvTaskDeleted:    {actorField: "deletedBy"},
	EvCommentAdded:   {actorField: "user"},
	EvProjectUpdated: {actorField: "updatedBy"},
}

// Inbound reports whether t is an event clients may send.
func (t EventType) Inbound() bool {
	switch t {
	case EvAuthenticate, EvJoinProject, EvLeaveProject,
		EvTaskUpdated, EvTaskCreated, EvTaskDeleted, EvCommentAdded,
		EvTypingStart, EvTypingStop, EvProjectUpdated,
		EvMemberInvited, EvSendNotification, EvStatusUpdate:
		return true
	}
	return false
}

// RoomScoped reports whether t is only meaningful inside a project room.
func (t EventType) RoomScoped() bool {
	if _, ok := relays[t]; ok {
		return true
	}
	switch t {
	case EvTypingStart, EvTypingStop, EvStatusUpdate, EvMemberInvited:
		return true
	}
	return false
}

// Envelope is the frame format in both directions.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AuthenticatePayload is the payload of authenticate.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// ProjectRef is the payload of join_project and leave_project.
type ProjectRef struct {
	ProjectID string `json:"projectId"`
}

// TypingPayload is the payload of typing_start and typing_stop.
type TypingPayload struct {
	TaskID string `json:"taskId"`
}

// StatusPayload is the payload of status_update.
type StatusPayload struct {
	Status string `json:"status"`
}

// InvitationPayload holds the fields of member_invited the server interprets.
// All other fields are forwarded untouched.
type InvitationPayload struct {
	InvitedUserID string `json:"invitedUserId"`
}

// NotificationPayload holds the fields of send_notification the server interprets.
type NotificationPayload struct {
	TargetUserID string          `json:"targetUserId"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Event is an outbound event before encoding.
type Event struct {
	Type    EventType
	Payload any
}

// Encode renders e as an Envelope frame.
func (e Event) Encode() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Type: e.Type, Payload: payload})
}

// AuthenticatedPayload is the payload of authenticated.
type AuthenticatedPayload struct {
	Success bool          `json:"success"`
	User    user.Identity `json:"user"`
}

// MessagePayload is the payload of authentication_error.
type MessagePayload struct {
	Message string `json:"message"`
}

// ErrorPayload is the payload of error.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// PresencePayload is the payload of user_joined_project, user_left_project and
// user_disconnected.
type PresencePayload struct {
	UserID    string        `json:"userId"`
	User      user.Identity `json:"user"`
	ProjectID string        `json:"projectId"`
	Timestamp time.Time     `json:"timestamp"`
}

// UserTypingPayload is the payload of user_typing and user_stopped_typing.
// User is omitted for user_stopped_typing.
type UserTypingPayload struct {
	UserID    string         `json:"userId"`
	User      *user.Identity `json:"user,omitempty"`
	TaskID    string         `json:"taskId"`
	Timestamp time.Time      `json:"timestamp"`
}

// NotificationEventPayload is the payload of notification.
type NotificationEventPayload struct {
	From      user.Identity   `json:"from"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// InvitationNotice is the server-built body of invitation_received for members added over
// the HTTP API. The inviter and timestamp are attached like any relayed event.
type InvitationNotice struct {
	ProjectID     string       `json:"projectId"`
	ProjectName   string       `json:"projectName"`
	InvitedUserID string       `json:"invitedUserId"`
	Role          project.Role `json:"role"`
}

// UserStatusPayload is the payload of user_status_updated.
type UserStatusPayload struct {
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

var errPayloadNotObject = errors.New("event payload must be a JSON object")

// attribute returns raw with the acting identity stored under actorField and the server
// timestamp under "timestamp". Client-supplied values for either key are overwritten.
func attribute(raw json.RawMessage, actorField string, actor user.Identity, ts time.Time) (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)

	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, errPayloadNotObject
		}
		if fields == nil {
			fields = make(map[string]json.RawMessage)
		}
	}

	actorJSON, err := json.Marshal(actor)
	if err != nil {
		return nil, err
	}

	tsJSON, err := json.Marshal(ts)
	if err != nil {
		return nil, err
	}

	fields[actorField] = actorJSON
	fields["timestamp"] = tsJSON

	return json.Marshal(fields)
}

// decodePayload unmarshals raw into dst, treating an absent payload as empty.
func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
