/*
Package collab implements the realtime collaboration layer: authenticated connections,
project rooms, permission-gated events and their fan-out to connected project members.

This file defines the Hub, the event router. It owns the Registry and the Rooms, drives the
per-connection state machine (unauthenticated, authenticated, in a room) and tears
connections down, either on request or when a send to them fails.
*/
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"taskflow/internal/app/project"
	"taskflow/internal/app/user"
	"taskflow/internal/pkg/errs"
	"taskflow/internal/pkg/logx"
)

const (
	// defaultLookupTimeout bounds a single collaborator lookup made while handling an event.
	defaultLookupTimeout = 5 * time.Second

	// cleanupQueueSize is the capacity of the queue of connections awaiting teardown.
	cleanupQueueSize = 64
)

// TokenVerifier resolves an authentication token to an active identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (user.Identity, error)
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock replaces the source of server timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		h.now = now
	}
}

// WithEventRate limits every connection to r inbound events per second with the given burst.
// A zero rate disables the limit.
func WithEventRate(r rate.Limit, burst int) Option {
	return func(h *Hub) {
		h.eventRate = r
		h.eventBurst = burst
	}
}

// WithLookupTimeout bounds each verifier or project store call.
func WithLookupTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.lookupTimeout = d
		}
	}
}

// Stats is a point-in-time view of the Hub.
type Stats struct {
	Connections            int   `json:"connections"`
	Users                  int   `json:"users"`
	Rooms                  int   `json:"rooms"`
	Accepted               int64 `json:"accepted"`
	AuthFailures           int64 `json:"authFailures"`
	DroppedUnauthenticated int64 `json:"droppedUnauthenticated"`
	DroppedNotInRoom       int64 `json:"droppedNotInRoom"`
	Denied                 int64 `json:"denied"`
	RateLimited            int64 `json:"rateLimited"`
}

type counters struct {
	accepted         atomic.Int64
	authFailures     atomic.Int64
	droppedUnauth    atomic.Int64
	droppedNotInRoom atomic.Int64
	denied           atomic.Int64
	rateLimited      atomic.Int64
}

// Hub routes inbound events of every live connection.
type Hub struct {
	registry *Registry
	rooms    *Rooms
	out      *fanout

	verifier TokenVerifier
	projects project.Store

	now           func() time.Time
	eventRate     rate.Limit
	eventBurst    int
	lookupTimeout time.Duration

	stats counters

	// cleanup carries connections whose send failed to the teardown goroutine.
	cleanup chan ConnID

	// closedMu guards closed and the close of cleanup.
	closedMu sync.Mutex
	closed   bool

	// wg waits for runCleanupLoop during Shutdown.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewHub constructs a Hub and starts its cleanup loop. Call Shutdown to stop it.
func NewHub(verifier TokenVerifier, projects project.Store, opts ...Option) *Hub {
	h := &Hub{
		registry:      NewRegistry(),
		verifier:      verifier,
		projects:      projects,
		now:           time.Now,
		lookupTimeout: defaultLookupTimeout,
		cleanup:       make(chan ConnID, cleanupQueueSize),
		logger:        logx.Component("hub"),
	}

	for _, opt := range opts {
		opt(h)
	}

	h.out = &fanout{registry: h.registry, onFailure: h.scheduleCleanup}
	h.rooms = NewRooms(h.registry, h.scheduleCleanup)
	h.rooms.now = h.now

	h.wg.Add(1)
	go h.runCleanupLoop()

	return h
}

// runCleanupLoop tears down every connection queued on the cleanup channel until it closes.
func (h *Hub) runCleanupLoop() {
	defer h.wg.Done()

	h.logger.Info().Msg("Cleanup loop started.")

	for id := range h.cleanup {
		h.Disconnect(id)
	}

	h.logger.Info().Msg("Cleanup loop stopped.")
}

// scheduleCleanup queues id for teardown without blocking the caller.
func (h *Hub) scheduleCleanup(id ConnID) {
	h.closedMu.Lock()
	defer h.closedMu.Unlock()

	if h.closed {
		return
	}

	select {
	case h.cleanup <- id:
	default:
		h.logger.Warn().Str("conn_id", string(id)).Msg("Cleanup queue full, tearing down inline")
		go h.Disconnect(id)
	}
}

// Accept registers a new unauthenticated connection and returns its id.
func (h *Hub) Accept(sender Sender) ConnID {
	id := ConnID(uuid.NewString())

	var limiter *rate.Limiter
	if h.eventRate > 0 {
		limiter = rate.NewLimiter(h.eventRate, h.eventBurst)
	}

	h.registry.Add(id, sender, limiter)

	h.logger.Debug().Str("conn_id", string(id)).Msg("Connection accepted")

	return id
}

// Disconnect tears down id: its registry state is removed, its transport closed, and the
// room it was in, if any, receives user_disconnected. It is idempotent and safe to call
// concurrently with broadcasts that target id.
func (h *Hub) Disconnect(id ConnID) {
	sender, identity, removed := h.registry.Unbind(id)
	if !removed {
		return
	}

	sender.Close()

	roomID, wasInRoom := h.rooms.Evict(id)

	event := h.logger.Info().Str("conn_id", string(id))
	if identity != nil {
		event = event.Str("user_id", identity.ID)
	}
	if wasInRoom {
		event = event.Str("room_id", roomID)
	}
	event.Msg("Connection disconnected")
}

// ExpireUnauthenticated removes id if it has not authenticated yet and reports whether it
// did. The caller owns the transport and closes it with its own close reason.
func (h *Hub) ExpireUnauthenticated(id ConnID) bool {
	if !h.registry.RemoveUnauthenticated(id) {
		return false
	}

	h.stats.authFailures.Add(1)
	h.logger.Info().Str("conn_id", string(id)).Msg("Connection expired before authenticating")

	return true
}

// Handle processes one inbound frame from id. Frames are expected one at a time per
// connection, in the order they were received.
func (h *Hub) Handle(ctx context.Context, id ConnID, raw []byte) {
	if !h.registry.Has(id) {
		return
	}

	if !h.registry.Allow(id) {
		h.stats.rateLimited.Add(1)
		h.logger.Warn().Str("conn_id", string(id)).Msg("Connection exceeded inbound event rate")
		h.replyError(id, errs.NewError(errs.ErrRateLimitExceeded))
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.logger.Warn().Err(err).Str("conn_id", string(id)).Msg("Client sent invalid JSON")
		h.replyError(id, errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	if !env.Type.Inbound() {
		h.logger.Warn().Str("conn_id", string(id)).Str("event", string(env.Type)).Msg("Client sent unsupported event type")
		h.replyError(id, errs.NewError(errs.ErrUnknownEvent))
		return
	}

	if env.Type == EvAuthenticate {
		h.handleAuthenticate(ctx, id, env.Payload)
		return
	}

	identity, ok := h.registry.IdentityOf(id)
	if !ok {
		h.stats.droppedUnauth.Add(1)
		h.logger.Warn().Str("conn_id", string(id)).Str("event", string(env.Type)).Msg("Dropped event from unauthenticated connection")
		return
	}

	var handled bool
	switch {
	case env.Type == EvJoinProject:
		handled = h.handleJoin(ctx, id, identity, env.Payload)
	case env.Type == EvLeaveProject:
		handled = h.handleLeave(id, env.Payload)
	case env.Type == EvSendNotification:
		handled = h.handleNotification(id, identity, env.Payload)
	case env.Type.RoomScoped():
		handled = h.handleRoomEvent(ctx, id, identity, env)
	}

	if handled {
		h.stats.accepted.Add(1)
	}
}

// handleRoomEvent dispatches an event that is only meaningful inside the sender's room.
// Events from a connection outside any room are dropped without a reply.
func (h *Hub) handleRoomEvent(ctx context.Context, id ConnID, identity user.Identity, env Envelope) bool {
	roomID, inRoom := h.rooms.RoomOf(id)
	if !inRoom {
		h.stats.droppedNotInRoom.Add(1)
		h.logger.Warn().
			Str("conn_id", string(id)).
			Str("user_id", identity.ID).
			Str("event", string(env.Type)).
			Int("code", errs.ErrNotInRoom).
			Msg("Dropped room event from connection outside any room")
		return false
	}

	switch env.Type {
	case EvTypingStart, EvTypingStop:
		return h.handleTyping(id, identity, roomID, env.Type, env.Payload)
	case EvStatusUpdate:
		return h.handleStatus(id, identity, roomID, env.Payload)
	case EvMemberInvited:
		return h.handleInvitation(ctx, id, identity, roomID, env.Payload)
	}

	r, ok := relays[env.Type]
	if !ok {
		return false
	}

	return h.handleRelay(id, identity, roomID, env.Type, r, env.Payload)
}

func (h *Hub) handleAuthenticate(ctx context.Context, id ConnID, raw json.RawMessage) {
	var p AuthenticatePayload
	if err := decodePayload(raw, &p); err != nil {
		h.stats.authFailures.Add(1)
		h.reply(id, Event{Type: EvAuthenticationError, Payload: MessagePayload{Message: "Invalid token"}})
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, h.lookupTimeout)
	identity, err := h.verifier.Verify(lookupCtx, p.Token)
	cancel()

	if err != nil {
		h.stats.authFailures.Add(1)
		h.logger.Info().Str("conn_id", string(id)).Msg("Authentication failed")
		h.reply(id, Event{Type: EvAuthenticationError, Payload: MessagePayload{Message: errs.From(err).Message}})
		return
	}

	if err := h.registry.Bind(id, identity); err != nil {
		if errs.HasCode(err, errs.ErrConnectionNotFound) {
			return
		}
		h.logger.Warn().Str("conn_id", string(id)).Str("user_id", identity.ID).Msg("Rejected second identity on bound connection")
		h.replyError(id, err)
		return
	}

	h.logger.Info().Str("conn_id", string(id)).Str("user_id", identity.ID).Msg("Connection authenticated")
	h.reply(id, Event{Type: EvAuthenticated, Payload: AuthenticatedPayload{Success: true, User: identity}})
}

func (h *Hub) handleJoin(ctx context.Context, id ConnID, identity user.Identity, raw json.RawMessage) bool {
	var ref ProjectRef
	if err := decodePayload(raw, &ref); err != nil || ref.ProjectID == "" {
		h.replyError(id, errs.NewError(errs.ErrInvalidParams))
		return false
	}

	p, err := h.fetchProject(ctx, ref.ProjectID)
	if err != nil {
		h.replyError(id, err)
		return false
	}

	if !identity.IsGlobalAdmin() && !project.IsMember(p.Members, identity.ID) {
		h.logger.Warn().Str("user_id", identity.ID).Str("project_id", p.ID).Msg("Non-member attempted to join project room")
		h.replyError(id, errs.NewError(errs.ErrNotProjectMember))
		return false
	}

	if err := h.rooms.Join(id, p.ID); err != nil {
		h.replyError(id, err)
		return false
	}

	return true
}

func (h *Hub) handleLeave(id ConnID, raw json.RawMessage) bool {
	var ref ProjectRef
	if err := decodePayload(raw, &ref); err != nil {
		h.replyError(id, errs.NewError(errs.ErrInvalidParams))
		return false
	}

	if !h.rooms.Leave(id, ref.ProjectID) {
		h.logger.Debug().Str("conn_id", string(id)).Str("room_id", ref.ProjectID).Msg("Leave for a room the connection is not in")
		return false
	}

	return true
}

func (h *Hub) handleRelay(id ConnID, identity user.Identity, roomID string, t EventType, r relay, raw json.RawMessage) bool {
	payload, err := attribute(raw, r.actorField, identity, h.now())
	if err != nil {
		h.replyError(id, errs.NewError(errs.ErrInvalidParams))
		return false
	}

	h.rooms.Broadcast(roomID, Event{Type: t, Payload: payload}, id)

	return true
}

func (h *Hub) handleTyping(id ConnID, identity user.Identity, roomID string, t EventType, raw json.RawMessage) bool {
	var p TypingPayload
	if err := decodePayload(raw, &p); err != nil {
		h.replyError(id, errs.NewError(errs.ErrInvalidParams))
		return false
	}

	out := UserTypingPayload{
		UserID:    identity.ID,
		TaskID:    p.TaskID,
		Timestamp: h.now(),
	}

	outType := EvUserStoppedTyping
	if t == EvTypingStart {
		outType = EvUserTyping
		out.User = &identity
	}

	h.rooms.Broadcast(roomID, Event{Type: outType, Payload: out}, id)

	return true
}

func (h *Hub) handleStatus(id ConnID, identity user.Identity, roomID string, raw json.RawMessage) bool {
	var p StatusPayload
	if err := decodePayload(raw, &p); err != nil {
		h.replyError(id, errs.NewError(errs.ErrInvalidParams))
		return false
	}

	h.rooms.Broadcast(roomID, Event{
		Type: EvUserStatusUpdated,
		Payload: UserStatusPayload{
			UserID:    identity.ID,
			Status:    p.Status,
			Timestamp: h.now(),
		},
	}, id)

	return true
}

func (h *Hub) handleInvitation(ctx context.Context, id ConnID, identity user.Identity, roomID string, raw json.RawMessage) bool {
	if !h.permitted(ctx, id, identity, roomID, project.CanInviteMembers) {
		return false
	}

	var p InvitationPayload
	if err := decodePayload(raw, &p); err != nil {
		h.replyError(id, errs.NewError(errs.ErrInvalidParams))
		return false
	}

	payload, err := attribute(raw, "invitedBy", identity, h.now())
	if err != nil {
		h.replyError(id, errs.NewError(errs.ErrInvalidParams))
		return false
	}

	h.rooms.Broadcast(roomID, Event{Type: EvMemberInvited, Payload: payload}, id)

	if p.InvitedUserID != "" {
		h.deliverToUser(p.InvitedUserID, Event{Type: EvInvitationReceived, Payload: payload})
	}

	return true
}

func (h *Hub) handleNotification(id ConnID, identity user.Identity, raw json.RawMessage) bool {
	var p NotificationPayload
	if err := decodePayload(raw, &p); err != nil || p.TargetUserID == "" {
		h.replyError(id, errs.NewError(errs.ErrInvalidParams))
		return false
	}

	h.deliverToUser(p.TargetUserID, Event{
		Type: EvNotification,
		Payload: NotificationEventPayload{
			From:      identity,
			Payload:   p.Payload,
			Timestamp: h.now(),
		},
	})

	return true
}

// permitted evaluates permission for identity against a freshly fetched membership list of
// roomID. A failed lookup denies. Denials are answered with an error event to id only.
func (h *Hub) permitted(ctx context.Context, id ConnID, identity user.Identity, roomID string, permission project.Permission) bool {
	p, err := h.fetchProject(ctx, roomID)
	if err == nil && project.Allows(p.Members, identity.ID, permission) {
		return true
	}

	h.stats.denied.Add(1)
	h.logger.Warn().
		Str("conn_id", string(id)).
		Str("user_id", identity.ID).
		Str("room_id", roomID).
		Str("permission", string(permission)).
		Msg("Permission denied")

	h.replyError(id, errs.NewError(errs.ErrPermissionDenied, permission))

	return false
}

func (h *Hub) fetchProject(ctx context.Context, projectID string) (project.Project, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, h.lookupTimeout)
	defer cancel()

	p, err := h.projects.FetchProject(lookupCtx, projectID)
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			return project.Project{}, errs.NewError(errs.ErrProjectNotFound)
		}
		h.logger.Error().Err(err).Str("project_id", projectID).Msg("Project lookup failed")
		return project.Project{}, errs.NewError(errs.ErrUnknown)
	}

	return p, nil
}

// NotifyInvitation delivers invitation_received to every live connection of invitedUserID
// for a membership created outside the websocket flow. It returns the number of
// connections reached.
func (h *Hub) NotifyInvitation(invitedBy user.Identity, p project.Project, invitedUserID string, role project.Role) int {
	notice, err := json.Marshal(InvitationNotice{
		ProjectID:     p.ID,
		ProjectName:   p.Name,
		InvitedUserID: invitedUserID,
		Role:          role,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode invitation notice")
		return 0
	}

	payload, err := attribute(notice, "invitedBy", invitedBy, h.now())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to attribute invitation notice")
		return 0
	}

	return h.deliverToUser(invitedUserID, Event{Type: EvInvitationReceived, Payload: payload})
}

// deliverToUser sends ev to every live connection of userID. An unknown or offline user
// receives nothing.
func (h *Hub) deliverToUser(userID string, ev Event) int {
	frame, err := ev.Encode()
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(ev.Type)).Msg("Failed to encode direct event")
		return 0
	}

	delivered := 0
	for _, id := range h.registry.ConnectionsFor(userID) {
		if h.out.deliver(id, frame) {
			delivered++
		}
	}

	return delivered
}

func (h *Hub) reply(id ConnID, ev Event) {
	frame, err := ev.Encode()
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(ev.Type)).Msg("Failed to encode reply")
		return
	}

	h.out.deliver(id, frame)
}

// replyError sends err to id as an error event.
func (h *Hub) replyError(id ConnID, err error) {
	customErr := errs.From(err)

	h.reply(id, Event{
		Type:    EvError,
		Payload: ErrorPayload{Code: customErr.Code, Message: customErr.Message},
	})
}

// Stats returns current counters and sizes.
func (h *Hub) Stats() Stats {
	connections, users := h.registry.Counts()

	return Stats{
		Connections:            connections,
		Users:                  users,
		Rooms:                  h.rooms.Count(),
		Accepted:               h.stats.accepted.Load(),
		AuthFailures:           h.stats.authFailures.Load(),
		DroppedUnauthenticated: h.stats.droppedUnauth.Load(),
		DroppedNotInRoom:       h.stats.droppedNotInRoom.Load(),
		Denied:                 h.stats.denied.Load(),
		RateLimited:            h.stats.rateLimited.Load(),
	}
}

// Shutdown stops the cleanup loop and disconnects every live connection.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down Hub...")

	h.closedMu.Lock()
	if h.closed {
		h.closedMu.Unlock()
		return
	}
	h.closed = true
	close(h.cleanup)
	h.closedMu.Unlock()

	h.wg.Wait()

	ids := h.registry.IDs()
	for _, id := range ids {
		h.Disconnect(id)
	}

	h.logger.Info().Int("closed_connections", len(ids)).Msg("Hub shutdown complete.")
}
