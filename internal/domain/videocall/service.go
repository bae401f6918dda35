package videocall

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/platform/audit"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/events"
	"github.com/carelink/carelink/pkg/apperror"
)

// UserDirectory resolves invitee ids against the staff directory.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*directory.User, error)
	GetUsers(ctx context.Context, ids []uuid.UUID) ([]*directory.User, error)
}

// SignalingSettings holds the ICE infrastructure handed to clients.
type SignalingSettings struct {
	STUNServers    []string
	TURNServer     string
	TURNUsername   string
	TURNCredential string
}

// callAccessRoles may initiate calls.
var callAccessRoles = []string{
	directory.RoleSuperAdmin,
	directory.RoleHospitalAdmin,
	directory.RoleDoctor,
	directory.RoleNurse,
	directory.RoleDispatcher,
}

// privilegedEndRoles may end any call regardless of host status.
var privilegedEndRoles = []string{
	directory.RoleSuperAdmin,
	directory.RoleHospitalAdmin,
}

type Service struct {
	calls        CallRepository
	participants ParticipantRepository
	users        UserDirectory
	signaling    SignalingSettings
	publisher    events.Publisher
	auditor      audit.Recorder
	logger       zerolog.Logger
}

func NewService(calls CallRepository, participants ParticipantRepository,
	users UserDirectory, signaling SignalingSettings,
	publisher events.Publisher, auditor audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		calls:        calls,
		participants: participants,
		users:        users,
		signaling:    signaling,
		publisher:    publisher,
		auditor:      auditor,
		logger:       logger,
	}
}

// BuildSignalingConfig derives the client connection bootstrap for a call.
// Pure: it reads only its arguments.
func BuildSignalingConfig(roomID string, settings CallSettings, sig SignalingSettings) SignalingConfig {
	cfg := SignalingConfig{
		RoomID: roomID,
		MediaConstraints: MediaConstraints{
			Audio:   true,
			Video:   true,
			Quality: settings.Quality,
		},
	}
	switch settings.Quality {
	case "sd":
		cfg.VideoWidth, cfg.FrameRate = 640, 24
	case "fhd":
		cfg.VideoWidth, cfg.FrameRate = 1920, 30
	default:
		cfg.VideoWidth, cfg.FrameRate = 1280, 30
	}
	if len(sig.STUNServers) > 0 {
		cfg.ICEServers = append(cfg.ICEServers, ICEServer{URLs: sig.STUNServers})
	}
	if sig.TURNServer != "" {
		cfg.ICEServers = append(cfg.ICEServers, ICEServer{
			URLs:       []string{sig.TURNServer},
			Username:   sig.TURNUsername,
			Credential: sig.TURNCredential,
		})
	}
	return cfg
}

// InitiateCallInput carries a call creation request.
type InitiateCallInput struct {
	ParticipantIDs  []uuid.UUID   `json:"participant_ids"`
	Type            string        `json:"type"`
	Title           string        `json:"title"`
	ScheduledAt     *time.Time    `json:"scheduled_at"`
	DurationMinutes int           `json:"duration_minutes"`
	Settings        *CallSettings `json:"settings"`
}

// CallSession is a call plus the caller's signaling bootstrap and role.
type CallSession struct {
	Call      *VideoCall      `json:"call"`
	Signaling SignalingConfig `json:"signaling"`
	Role      string          `json:"role"`
}

// InitiateCall creates a call with the initiator joined as host and the
// other participants invited. A scheduled_at in the input yields a scheduled
// call; otherwise the call starts in the initiated state.
func (s *Service) InitiateCall(ctx context.Context, initiator auth.Principal, in InitiateCallInput) (*CallSession, error) {
	if !initiator.HasAnyRole(callAccessRoles...) {
		return nil, apperror.Forbiddenf("you are not permitted to start calls")
	}
	if !validCallTypes[in.Type] {
		return nil, apperror.Validationf("unknown call type %q", in.Type)
	}
	if in.DurationMinutes != 0 && (in.DurationMinutes < MinDurationMinutes || in.DurationMinutes > MaxDurationMinutes) {
		return nil, apperror.Validationf("duration must be between %d and %d minutes", MinDurationMinutes, MaxDurationMinutes)
	}
	if in.Type == TypeOneOnOne && len(in.ParticipantIDs) != 1 {
		return nil, apperror.Validationf("a one_on_one call takes exactly one other participant")
	}

	invitees := make([]uuid.UUID, 0, len(in.ParticipantIDs))
	for _, id := range in.ParticipantIDs {
		if id != initiator.ID {
			invitees = append(invitees, id)
		}
	}
	if len(invitees) > 0 {
		found, err := s.users.GetUsers(ctx, invitees)
		if err != nil {
			return nil, apperror.Internalf("resolving participants: %v", err)
		}
		if len(found) != len(invitees) {
			return nil, apperror.Validationf("one or more participant ids do not exist")
		}
	}

	settings := DefaultCallSettings()
	if in.Settings != nil {
		settings = *in.Settings
	}
	status := StatusInitiated
	if in.ScheduledAt != nil {
		status = StatusScheduled
	}

	call := &VideoCall{
		CallID:          "call_" + uuid.NewString(),
		RoomID:          "room_" + uuid.NewString(),
		InitiatorID:     initiator.ID,
		Type:            in.Type,
		Title:           in.Title,
		Status:          status,
		ScheduledAt:     in.ScheduledAt,
		DurationMinutes: in.DurationMinutes,
		Settings:        settings,
	}
	if err := s.calls.Create(ctx, call); err != nil {
		return nil, apperror.Internalf("creating call: %v", err)
	}

	now := time.Now().UTC()
	host := &CallParticipant{
		CallID:   call.ID,
		UserID:   initiator.ID,
		Status:   ParticipantJoined,
		IsHost:   true,
		JoinedAt: &now,
	}
	if err := s.participants.Add(ctx, host); err != nil {
		return nil, apperror.Internalf("adding host participant: %v", err)
	}
	for _, id := range invitees {
		p := &CallParticipant{CallID: call.ID, UserID: id, Status: ParticipantInvited}
		if err := s.participants.Add(ctx, p); err != nil {
			return nil, apperror.Internalf("adding participant: %v", err)
		}
	}

	s.publisher.PublishToUsers(ctx, invitees, events.NewEvent("call.initiated", map[string]any{
		"callId":        call.ID,
		"callToken":     call.CallID,
		"type":          call.Type,
		"title":         call.Title,
		"initiatorId":   initiator.ID,
		"initiatorName": initiator.Name,
		"scheduledAt":   call.ScheduledAt,
	}))

	s.auditor.Record(ctx, audit.Entry{
		Action:    "call.initiated",
		Subject:   "video_call:" + call.ID.String(),
		ActorID:   initiator.ID,
		ActorName: initiator.Name,
		Metadata:  map[string]any{"type": call.Type, "invitees": len(invitees)},
	})

	return &CallSession{
		Call:      call,
		Signaling: BuildSignalingConfig(call.RoomID, settings, s.signaling),
		Role:      "host",
	}, nil
}

// JoinCall marks the caller joined. Joining again while already joined is a
// no-op that returns the session. The first join of an initiated call moves
// it to in_progress.
func (s *Service) JoinCall(ctx context.Context, user auth.Principal, callID uuid.UUID) (*CallSession, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, apperror.NotFoundf("call not found")
	}

	p, err := s.participants.Get(ctx, callID, user.ID)
	if err != nil {
		return nil, apperror.Internalf("looking up participant: %v", err)
	}
	if p == nil && call.InitiatorID != user.ID {
		return nil, apperror.Forbiddenf("you are not invited to this call")
	}
	if !call.IsJoinable() {
		return nil, apperror.InvalidStatef("the call has ended")
	}

	now := time.Now().UTC()
	if p == nil {
		p = &CallParticipant{CallID: callID, UserID: user.ID, Status: ParticipantJoined, JoinedAt: &now}
		if err := s.participants.Add(ctx, p); err != nil {
			return nil, apperror.Internalf("adding participant: %v", err)
		}
	} else if p.Status != ParticipantJoined {
		if err := s.participants.MarkJoined(ctx, callID, user.ID, now); err != nil {
			return nil, apperror.Internalf("joining call: %v", err)
		}
		p.Status = ParticipantJoined
		p.JoinedAt = &now
	}

	if call.Status == StatusInitiated || call.Status == StatusScheduled {
		started, err := s.calls.MarkInProgress(ctx, callID, now)
		if err != nil {
			return nil, apperror.Internalf("starting call: %v", err)
		}
		if started {
			call.Status = StatusInProgress
			call.StartedAt = &now
		}
	}

	others, err := s.participants.ListByCall(ctx, callID)
	if err == nil {
		s.publisher.PublishToUsers(ctx, participantIDsExcept(others, user.ID),
			events.NewEvent("call.joined", map[string]any{
				"callId":   callID,
				"userId":   user.ID,
				"userName": user.Name,
				"status":   call.Status,
			}))
	}

	role := "participant"
	if p.IsHost || call.InitiatorID == user.ID {
		role = "host"
	}
	return &CallSession{
		Call:      call,
		Signaling: BuildSignalingConfig(call.RoomID, call.Settings, s.signaling),
		Role:      role,
	}, nil
}

// EndCall moves the call to its terminal state and marks every participant
// left.
func (s *Service) EndCall(ctx context.Context, actor auth.Principal, callID uuid.UUID) (*VideoCall, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, apperror.NotFoundf("call not found")
	}
	if call.Status == StatusEnded {
		return nil, apperror.InvalidStatef("the call has already ended")
	}

	p, err := s.participants.Get(ctx, callID, actor.ID)
	if err != nil {
		return nil, apperror.Internalf("looking up participant: %v", err)
	}
	isHost := p != nil && p.IsHost
	if !isHost && call.InitiatorID != actor.ID && !actor.HasAnyRole(privilegedEndRoles...) {
		return nil, apperror.Forbiddenf("only the host may end the call")
	}

	participants, err := s.participants.ListByCall(ctx, callID)
	if err != nil {
		return nil, apperror.Internalf("listing participants: %v", err)
	}

	now := time.Now().UTC()
	call.Status = StatusEnded
	call.EndedAt = &now
	call.EndedBy = &actor.ID
	if err := s.calls.Update(ctx, call); err != nil {
		return nil, apperror.Internalf("ending call: %v", err)
	}
	if err := s.participants.MarkAllLeft(ctx, callID, now); err != nil {
		return nil, apperror.Internalf("marking participants left: %v", err)
	}

	s.publisher.PublishToUsers(ctx, participantIDsExcept(participants, actor.ID),
		events.NewEvent("call.ended", map[string]any{
			"callId":      callID,
			"endedById":   actor.ID,
			"endedByName": actor.Name,
		}))

	s.auditor.Record(ctx, audit.Entry{
		Action:    "call.ended",
		Subject:   "video_call:" + callID.String(),
		ActorID:   actor.ID,
		ActorName: actor.Name,
	})
	return call, nil
}

// StartScreenSharing claims the call's exclusive screen-share slot.
// Contention surfaces as a Conflict naming the current sharer.
func (s *Service) StartScreenSharing(ctx context.Context, user auth.Principal, callID uuid.UUID) error {
	call, _, err := s.requireJoined(ctx, callID, user.ID)
	if err != nil {
		return err
	}
	if call.Status != StatusInProgress {
		return apperror.InvalidStatef("the call is not active")
	}
	if !call.Settings.IsScreenSharingEnabled {
		return apperror.InvalidStatef("screen sharing is disabled for this call")
	}

	claimed, err := s.participants.StartScreenSharing(ctx, callID, user.ID, time.Now().UTC())
	if err != nil {
		return apperror.Internalf("claiming screen share: %v", err)
	}
	if !claimed {
		sharer, err := s.participants.CurrentSharer(ctx, callID)
		if err != nil {
			return apperror.Internalf("resolving current sharer: %v", err)
		}
		if sharer != nil && sharer.UserID != user.ID {
			name := s.userName(ctx, sharer.UserID)
			return apperror.Conflictf("%s is already sharing their screen", name)
		}
		return apperror.InvalidStatef("you must join the call before sharing")
	}

	participants, err := s.participants.ListByCall(ctx, callID)
	if err == nil {
		s.publisher.PublishToUsers(ctx, participantIDsExcept(participants, user.ID),
			events.NewEvent("call.screenshare.started", map[string]any{
				"callId":   callID,
				"userId":   user.ID,
				"userName": user.Name,
			}))
	}
	return nil
}

// StopScreenSharing releases the slot held by the caller.
func (s *Service) StopScreenSharing(ctx context.Context, user auth.Principal, callID uuid.UUID) error {
	if _, _, err := s.requireJoined(ctx, callID, user.ID); err != nil {
		return err
	}

	released, err := s.participants.StopScreenSharing(ctx, callID, user.ID, time.Now().UTC())
	if err != nil {
		return apperror.Internalf("releasing screen share: %v", err)
	}
	if !released {
		return apperror.InvalidStatef("you are not the current screen sharer")
	}

	participants, err := s.participants.ListByCall(ctx, callID)
	if err == nil {
		s.publisher.PublishToUsers(ctx, participantIDsExcept(participants, user.ID),
			events.NewEvent("call.screenshare.stopped", map[string]any{
				"callId":   callID,
				"userId":   user.ID,
				"userName": user.Name,
			}))
	}
	return nil
}

// GetScreenShareStatus reports the slot holder and whether the caller may
// claim it.
func (s *Service) GetScreenShareStatus(ctx context.Context, user auth.Principal, callID uuid.UUID) (*ScreenShareStatus, error) {
	if _, _, err := s.requireJoined(ctx, callID, user.ID); err != nil {
		return nil, err
	}
	sharer, err := s.participants.CurrentSharer(ctx, callID)
	if err != nil {
		return nil, apperror.Internalf("resolving current sharer: %v", err)
	}
	status := &ScreenShareStatus{CanStart: true}
	if sharer != nil {
		status.CurrentSharerID = &sharer.UserID
		status.CurrentSharerName = s.userName(ctx, sharer.UserID)
		status.CanStart = sharer.UserID == user.ID
	}
	return status, nil
}

// RequestScreenSharePermission notifies the call's hosts. No state changes.
func (s *Service) RequestScreenSharePermission(ctx context.Context, user auth.Principal, callID uuid.UUID) error {
	_, _, err := s.requireJoined(ctx, callID, user.ID)
	if err != nil {
		return err
	}
	participants, err := s.participants.ListByCall(ctx, callID)
	if err != nil {
		return apperror.Internalf("listing participants: %v", err)
	}
	var hosts []uuid.UUID
	for _, p := range participants {
		if p.IsHost && p.UserID != user.ID {
			hosts = append(hosts, p.UserID)
		}
	}
	s.publisher.PublishToUsers(ctx, hosts, events.NewEvent("call.screenshare.permission_requested", map[string]any{
		"callId":   callID,
		"userId":   user.ID,
		"userName": user.Name,
	}))
	return nil
}

// GrantScreenSharePermission is advisory. The grant is recorded for the
// audit trail but startScreenSharing checks only slot availability.
func (s *Service) GrantScreenSharePermission(ctx context.Context, host auth.Principal, callID, requesterID uuid.UUID) error {
	_, p, err := s.requireJoined(ctx, callID, host.ID)
	if err != nil {
		return err
	}
	if !p.IsHost {
		return apperror.Forbiddenf("only a host may grant screen sharing")
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:    "call.screenshare.granted",
		Subject:   "video_call:" + callID.String(),
		ActorID:   host.ID,
		ActorName: host.Name,
		Message:   fmt.Sprintf("screen share granted to %s", requesterID),
		Metadata:  map[string]any{"requesterId": requesterID},
	})
	s.publisher.PublishToUsers(ctx, []uuid.UUID{requesterID},
		events.NewEvent("call.screenshare.permission_granted", map[string]any{
			"callId":   callID,
			"hostId":   host.ID,
			"hostName": host.Name,
		}))
	return nil
}

// ListCalls lists the calls the user participates in, newest first.
func (s *Service) ListCalls(ctx context.Context, user auth.Principal, limit, offset int) ([]*VideoCall, int, error) {
	return s.calls.ListByUser(ctx, user.ID, limit, offset)
}

// GetCall returns a call visible to the given participant.
func (s *Service) GetCall(ctx context.Context, user auth.Principal, callID uuid.UUID) (*VideoCall, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, apperror.NotFoundf("call not found")
	}
	p, err := s.participants.Get(ctx, callID, user.ID)
	if err != nil {
		return nil, apperror.Internalf("looking up participant: %v", err)
	}
	if p == nil && call.InitiatorID != user.ID {
		return nil, apperror.Forbiddenf("you are not a participant of this call")
	}
	return call, nil
}

func (s *Service) requireJoined(ctx context.Context, callID, userID uuid.UUID) (*VideoCall, *CallParticipant, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, nil, apperror.NotFoundf("call not found")
	}
	p, err := s.participants.Get(ctx, callID, userID)
	if err != nil {
		return nil, nil, apperror.Internalf("looking up participant: %v", err)
	}
	if p == nil {
		return nil, nil, apperror.Forbiddenf("you are not a participant of this call")
	}
	return call, p, nil
}

func (s *Service) userName(ctx context.Context, id uuid.UUID) string {
	u, err := s.users.GetUser(ctx, id)
	if err != nil || u == nil {
		return id.String()
	}
	return u.Name
}

func participantIDsExcept(participants []*CallParticipant, exclude uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		if p.UserID != exclude {
			out = append(out, p.UserID)
		}
	}
	return out
}
