package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/platform/audit"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/events"
	"github.com/carelink/carelink/pkg/apperror"
)

// UserDirectory resolves participant ids against the staff directory.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*directory.User, error)
	GetUsers(ctx context.Context, ids []uuid.UUID) ([]*directory.User, error)
}

// FileStore persists attachment bytes and produces client-facing URLs.
type FileStore interface {
	Store(ctx context.Context, content []byte, pathHint string) (storagePath string, err error)
	URLFor(storagePath string) string
}

type Service struct {
	rooms        RoomRepository
	participants ParticipantRepository
	messages     MessageRepository
	attachments  AttachmentRepository
	users        UserDirectory
	files        FileStore
	publisher    events.Publisher
	auditor      audit.Recorder
	logger       zerolog.Logger
}

func NewService(
	rooms RoomRepository,
	participants ParticipantRepository,
	messages MessageRepository,
	attachments AttachmentRepository,
	users UserDirectory,
	files FileStore,
	publisher events.Publisher,
	auditor audit.Recorder,
	logger zerolog.Logger,
) *Service {
	return &Service{
		rooms:        rooms,
		participants: participants,
		messages:     messages,
		attachments:  attachments,
		users:        users,
		files:        files,
		publisher:    publisher,
		auditor:      auditor,
		logger:       logger,
	}
}

// CreateRoomInput carries the room-creation request.
type CreateRoomInput struct {
	Name           string      `json:"name"`
	Type           string      `json:"type"`
	Description    *string     `json:"description"`
	IsPrivate      bool        `json:"is_private"`
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
}

// CreateRoom creates a room with the actor as admin. For individual rooms
// with exactly one other participant, an existing room between the pair is
// returned unchanged.
func (s *Service) CreateRoom(ctx context.Context, actor auth.Principal, in CreateRoomInput) (*ChatRoom, error) {
	if in.Name == "" {
		return nil, apperror.Validationf("name is required")
	}
	if len(in.Name) > MaxRoomNameLen {
		return nil, apperror.Validationf("name exceeds %d characters", MaxRoomNameLen)
	}
	if !validRoomTypes[in.Type] {
		return nil, apperror.Validationf("unknown room type %q", in.Type)
	}

	// Drop the creator from the participant list if duplicated.
	others := make([]uuid.UUID, 0, len(in.ParticipantIDs))
	for _, id := range in.ParticipantIDs {
		if id != actor.ID {
			others = append(others, id)
		}
	}

	// Every participant id must resolve to a real user.
	if len(others) > 0 {
		found, err := s.users.GetUsers(ctx, others)
		if err != nil {
			return nil, apperror.Internalf("resolving participants: %v", err)
		}
		if len(found) != len(distinct(others)) {
			return nil, apperror.Validationf("one or more participant ids do not exist")
		}
	}

	if in.Type == RoomTypeIndividual && len(others) == 1 {
		existing, err := s.rooms.FindIndividualRoom(ctx, actor.ID, others[0])
		if err != nil {
			return nil, apperror.Internalf("searching individual room: %v", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	room := &ChatRoom{
		Name:        in.Name,
		Type:        in.Type,
		Description: in.Description,
		CreatedBy:   actor.ID,
		IsActive:    true,
		IsPrivate:   in.IsPrivate,
		Settings:    DefaultRoomSettings(),
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, apperror.Internalf("creating room: %v", err)
	}

	now := time.Now().UTC()
	creator := &ChatParticipant{RoomID: room.ID, UserID: actor.ID, Role: ParticipantAdmin, JoinedAt: now}
	if err := s.participants.Add(ctx, creator); err != nil {
		return nil, apperror.Internalf("adding creator participant: %v", err)
	}
	for _, id := range distinct(others) {
		p := &ChatParticipant{RoomID: room.ID, UserID: id, Role: ParticipantMember, JoinedAt: now}
		if err := s.participants.Add(ctx, p); err != nil {
			return nil, apperror.Internalf("adding participant: %v", err)
		}
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:    "chat.room.created",
		Subject:   "chat_room:" + room.ID.String(),
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Message:   fmt.Sprintf("room %q created", room.Name),
		Metadata:  map[string]any{"type": room.Type, "participants": len(others) + 1},
	})

	return room, nil
}

// FileUpload is a single attachment to store alongside a message.
type FileUpload struct {
	OriginalName string
	MimeType     string
	Content      []byte
}

// SendMessageInput carries a message send request.
type SendMessageInput struct {
	Body      string     `json:"body"`
	Type      string     `json:"type"`
	ReplyToID *uuid.UUID `json:"reply_to_id"`
	Priority  string     `json:"priority"`
	Uploads   []FileUpload
}

// SendMessage persists a message with its attachments, updates the room's
// activity fields, and publishes a message-sent event to every participant
// except the sender. A storage failure on any attachment aborts the send.
func (s *Service) SendMessage(ctx context.Context, actor auth.Principal, roomID uuid.UUID, in SendMessageInput) (*ChatMessage, error) {
	room, participants, err := s.requireParticipant(ctx, roomID, actor.ID)
	if err != nil {
		return nil, err
	}

	if in.Type == "" {
		in.Type = MessageText
	}
	if !validMessageTypes[in.Type] {
		return nil, apperror.Validationf("unknown message type %q", in.Type)
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if !validPriorities[in.Priority] {
		return nil, apperror.Validationf("unknown priority %q", in.Priority)
	}
	if in.Body == "" && len(in.Uploads) == 0 {
		return nil, apperror.Validationf("message body or attachment is required")
	}
	if len(in.Uploads) > 0 && !room.Settings.AllowFileSharing {
		return nil, apperror.Validationf("file sharing is disabled in this room")
	}
	if in.ReplyToID != nil {
		parent, err := s.messages.GetByID(ctx, *in.ReplyToID)
		if err != nil || parent == nil || parent.RoomID != roomID {
			return nil, apperror.Validationf("reply target does not exist in this room")
		}
	}

	msg := &ChatMessage{
		RoomID:      roomID,
		SenderID:    actor.ID,
		Body:        in.Body,
		MessageType: in.Type,
		ReplyToID:   in.ReplyToID,
		Priority:    in.Priority,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperror.Internalf("persisting message: %v", err)
	}

	var stored []*Attachment
	for _, upload := range in.Uploads {
		att, err := s.storeAttachment(ctx, msg.ID, upload)
		if err != nil {
			// Abort the whole send on the first storage failure.
			return nil, err
		}
		stored = append(stored, att)
	}

	now := time.Now().UTC()
	if err := s.rooms.TouchActivity(ctx, roomID, msg.ID, now); err != nil {
		s.logger.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to update room activity")
	}

	s.publisher.PublishToUsers(ctx, participantIDsExcept(participants, actor.ID),
		events.NewEvent("chat.message.sent", map[string]any{
			"roomId":      roomID,
			"messageId":   msg.ID,
			"senderId":    actor.ID,
			"senderName":  actor.Name,
			"messageType": msg.MessageType,
			"priority":    msg.Priority,
			"attachments": len(stored),
		}))

	return msg, nil
}

func (s *Service) storeAttachment(ctx context.Context, messageID uuid.UUID, upload FileUpload) (*Attachment, error) {
	filename := uuid.NewString()
	if idx := strings.LastIndex(upload.OriginalName, "."); idx >= 0 {
		filename += upload.OriginalName[idx:]
	}
	path, err := s.files.Store(ctx, upload.Content, "chat/"+filename)
	if err != nil {
		return nil, apperror.Internalf("storing attachment %q: %v", upload.OriginalName, err)
	}

	att := &Attachment{
		MessageID:    messageID,
		Filename:     filename,
		OriginalName: upload.OriginalName,
		StoragePath:  path,
		Size:         int64(len(upload.Content)),
		MimeType:     upload.MimeType,
		Type:         DeriveAttachmentType(upload.MimeType),
		URL:          s.files.URLFor(path),
	}
	if err := s.attachments.Create(ctx, att); err != nil {
		return nil, apperror.Internalf("persisting attachment: %v", err)
	}
	return att, nil
}

// AddParticipants adds users to a room. Admin only. Ids already present are
// skipped. Emits one system message naming the users added.
func (s *Service) AddParticipants(ctx context.Context, actor auth.Principal, roomID uuid.UUID, userIDs []uuid.UUID) error {
	_, participants, err := s.requireAdmin(ctx, roomID, actor.ID)
	if err != nil {
		return err
	}

	present := make(map[uuid.UUID]bool, len(participants))
	for _, p := range participants {
		present[p.UserID] = true
	}

	var toAdd []uuid.UUID
	for _, id := range distinct(userIDs) {
		if !present[id] {
			toAdd = append(toAdd, id)
		}
	}
	if len(toAdd) == 0 {
		return nil
	}

	users, err := s.users.GetUsers(ctx, toAdd)
	if err != nil {
		return apperror.Internalf("resolving users: %v", err)
	}
	if len(users) != len(toAdd) {
		return apperror.Validationf("one or more user ids do not exist")
	}

	now := time.Now().UTC()
	var names []string
	for _, u := range users {
		p := &ChatParticipant{RoomID: roomID, UserID: u.ID, Role: ParticipantMember, JoinedAt: now}
		if err := s.participants.Add(ctx, p); err != nil {
			return apperror.Internalf("adding participant: %v", err)
		}
		names = append(names, u.Name)
	}

	body := fmt.Sprintf("%s added %s to the room", actor.Name, strings.Join(names, ", "))
	if err := s.emitSystemMessage(ctx, roomID, actor, body, "chat.participants.added"); err != nil {
		return err
	}
	return nil
}

// RemoveParticipants removes users from a room. Admin only. The room creator
// cannot be removed.
func (s *Service) RemoveParticipants(ctx context.Context, actor auth.Principal, roomID uuid.UUID, userIDs []uuid.UUID) error {
	room, participants, err := s.requireAdmin(ctx, roomID, actor.ID)
	if err != nil {
		return err
	}

	present := make(map[uuid.UUID]bool, len(participants))
	for _, p := range participants {
		present[p.UserID] = true
	}

	var removed []uuid.UUID
	for _, id := range distinct(userIDs) {
		if id == room.CreatedBy {
			return apperror.Validationf("the room creator cannot be removed")
		}
		if !present[id] {
			continue
		}
		if err := s.participants.Remove(ctx, roomID, id); err != nil {
			return apperror.Internalf("removing participant: %v", err)
		}
		removed = append(removed, id)
	}
	if len(removed) == 0 {
		return nil
	}

	users, err := s.users.GetUsers(ctx, removed)
	if err != nil {
		return apperror.Internalf("resolving users: %v", err)
	}
	var names []string
	for _, u := range users {
		names = append(names, u.Name)
	}

	body := fmt.Sprintf("%s removed %s from the room", actor.Name, strings.Join(names, ", "))
	if err := s.emitSystemMessage(ctx, roomID, actor, body, "chat.participants.removed"); err != nil {
		return err
	}
	return nil
}

// PromoteToAdmin grants admin role to an existing participant. Admin only.
func (s *Service) PromoteToAdmin(ctx context.Context, actor auth.Principal, roomID, targetUserID uuid.UUID) error {
	_, _, err := s.requireAdmin(ctx, roomID, actor.ID)
	if err != nil {
		return err
	}

	target, err := s.participants.Get(ctx, roomID, targetUserID)
	if err != nil {
		return apperror.Internalf("looking up participant: %v", err)
	}
	if target == nil {
		return apperror.NotFoundf("user is not a participant of this room")
	}
	if target.Role == ParticipantAdmin {
		return nil
	}

	if err := s.participants.UpdateRole(ctx, roomID, targetUserID, ParticipantAdmin); err != nil {
		return apperror.Internalf("updating role: %v", err)
	}

	user, err := s.users.GetUser(ctx, targetUserID)
	if err != nil {
		return apperror.Internalf("resolving user: %v", err)
	}
	body := fmt.Sprintf("%s promoted %s to admin", actor.Name, user.Name)
	return s.emitSystemMessage(ctx, roomID, actor, body, "chat.participant.promoted")
}

// LeaveRoom removes the actor from the room. The creator cannot leave while
// being the sole remaining admin.
func (s *Service) LeaveRoom(ctx context.Context, actor auth.Principal, roomID uuid.UUID) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return apperror.NotFoundf("room not found")
	}

	p, err := s.participants.Get(ctx, roomID, actor.ID)
	if err != nil {
		return apperror.Internalf("looking up participant: %v", err)
	}
	if p == nil {
		return apperror.NotFoundf("you are not a participant of this room")
	}

	if actor.ID == room.CreatedBy {
		admins, err := s.participants.CountAdmins(ctx, roomID)
		if err != nil {
			return apperror.Internalf("counting admins: %v", err)
		}
		if admins <= 1 {
			return apperror.InvalidStatef("promote another member to admin before leaving")
		}
	}

	if err := s.participants.Remove(ctx, roomID, actor.ID); err != nil {
		return apperror.Internalf("removing participant: %v", err)
	}

	body := fmt.Sprintf("%s left the room", actor.Name)
	return s.emitSystemMessage(ctx, roomID, actor, body, "chat.participant.left")
}

// MarkAsRead idempotently attaches read records for every unread message in
// the room and returns the number newly marked.
func (s *Service) MarkAsRead(ctx context.Context, actor auth.Principal, roomID uuid.UUID) (int, error) {
	if _, _, err := s.requireParticipant(ctx, roomID, actor.ID); err != nil {
		return 0, err
	}

	unread, err := s.messages.UnreadMessageIDs(ctx, roomID, actor.ID)
	if err != nil {
		return 0, apperror.Internalf("finding unread messages: %v", err)
	}
	if len(unread) == 0 {
		return 0, nil
	}

	count, err := s.messages.MarkRead(ctx, unread, actor.ID, time.Now().UTC())
	if err != nil {
		return 0, apperror.Internalf("marking messages read: %v", err)
	}
	return count, nil
}

// SendTypingIndicator publishes an ephemeral typing event. No state is
// persisted.
func (s *Service) SendTypingIndicator(ctx context.Context, actor auth.Principal, roomID uuid.UUID, isTyping bool) error {
	_, participants, err := s.requireParticipant(ctx, roomID, actor.ID)
	if err != nil {
		return err
	}

	s.publisher.PublishToUsers(ctx, participantIDsExcept(participants, actor.ID),
		events.NewEvent("chat.typing", map[string]any{
			"roomId":   roomID,
			"userId":   actor.ID,
			"userName": actor.Name,
			"isTyping": isTyping,
		}))
	return nil
}

// GetRooms lists rooms the actor participates in, most recently active first.
func (s *Service) GetRooms(ctx context.Context, actor auth.Principal, limit, offset int) ([]*ChatRoom, int, error) {
	return s.rooms.ListByUser(ctx, actor.ID, limit, offset)
}

// GetMessages lists a room's messages, newest first. Participants only.
func (s *Service) GetMessages(ctx context.Context, actor auth.Principal, roomID uuid.UUID, limit, offset int) ([]*ChatMessage, int, error) {
	if _, _, err := s.requireParticipant(ctx, roomID, actor.ID); err != nil {
		return nil, 0, err
	}
	return s.messages.ListByRoom(ctx, roomID, limit, offset)
}

// GetParticipants lists a room's participants. Participants only.
func (s *Service) GetParticipants(ctx context.Context, actor auth.Principal, roomID uuid.UUID) ([]*ChatParticipant, error) {
	_, participants, err := s.requireParticipant(ctx, roomID, actor.ID)
	if err != nil {
		return nil, err
	}
	return participants, nil
}

// DeleteAttachment removes a single attachment without touching its parent
// message. Only the message sender or a room admin may delete.
func (s *Service) DeleteAttachment(ctx context.Context, actor auth.Principal, roomID, attachmentID uuid.UUID) error {
	_, participants, err := s.requireParticipant(ctx, roomID, actor.ID)
	if err != nil {
		return err
	}
	att, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil || att == nil {
		return apperror.NotFoundf("attachment not found")
	}
	msg, err := s.messages.GetByID(ctx, att.MessageID)
	if err != nil || msg == nil || msg.RoomID != roomID {
		return apperror.NotFoundf("attachment not found")
	}

	allowed := msg.SenderID == actor.ID
	if !allowed {
		for _, p := range participants {
			if p.UserID == actor.ID && p.Role == ParticipantAdmin {
				allowed = true
				break
			}
		}
	}
	if !allowed {
		return apperror.Forbiddenf("only the sender or a room admin may delete attachments")
	}

	if err := s.attachments.Delete(ctx, attachmentID); err != nil {
		return apperror.Internalf("deleting attachment: %v", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:    "chat.attachment.deleted",
		Subject:   "chat_attachment:" + attachmentID.String(),
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Message:   fmt.Sprintf("attachment %q deleted", att.OriginalName),
		Metadata:  map[string]any{"room_id": roomID.String(), "message_id": att.MessageID.String()},
	})
	return nil
}

// SettingsPatch carries a partial settings update. Nil fields are unchanged.
type SettingsPatch struct {
	Name                 *string `json:"name"`
	Description          *string `json:"description"`
	AllowFileSharing     *bool   `json:"allowFileSharing"`
	AllowVoiceMessages   *bool   `json:"allowVoiceMessages"`
	MessageRetentionDays *int    `json:"messageRetentionDays"`
	MaxParticipants      *int    `json:"maxParticipants"`
}

// UpdateGroupSettings applies a shallow merge of the patch onto the room.
// Admin only. Concurrent updates are last-write-wins against the state read
// at call time.
func (s *Service) UpdateGroupSettings(ctx context.Context, actor auth.Principal, roomID uuid.UUID, patch SettingsPatch) (*ChatRoom, error) {
	room, _, err := s.requireAdmin(ctx, roomID, actor.ID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if *patch.Name == "" || len(*patch.Name) > MaxRoomNameLen {
			return nil, apperror.Validationf("invalid room name")
		}
		room.Name = *patch.Name
	}
	if patch.Description != nil {
		room.Description = patch.Description
	}
	if patch.AllowFileSharing != nil {
		room.Settings.AllowFileSharing = *patch.AllowFileSharing
	}
	if patch.AllowVoiceMessages != nil {
		room.Settings.AllowVoiceMessages = *patch.AllowVoiceMessages
	}
	if patch.MessageRetentionDays != nil {
		if *patch.MessageRetentionDays < 1 {
			return nil, apperror.Validationf("messageRetentionDays must be positive")
		}
		room.Settings.MessageRetentionDays = *patch.MessageRetentionDays
	}
	if patch.MaxParticipants != nil {
		if *patch.MaxParticipants < 2 {
			return nil, apperror.Validationf("maxParticipants must be at least 2")
		}
		room.Settings.MaxParticipants = *patch.MaxParticipants
	}

	if err := s.rooms.Update(ctx, room); err != nil {
		return nil, apperror.Internalf("updating room: %v", err)
	}
	return room, nil
}

// emitSystemMessage persists an auto-generated message attributed to the
// actor and publishes it to the other participants.
func (s *Service) emitSystemMessage(ctx context.Context, roomID uuid.UUID, actor auth.Principal, body, eventName string) error {
	msg := &ChatMessage{
		RoomID:          roomID,
		SenderID:        actor.ID,
		Body:            body,
		MessageType:     MessageSystem,
		IsSystemMessage: true,
		Priority:        PriorityNormal,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return apperror.Internalf("persisting system message: %v", err)
	}
	if err := s.rooms.TouchActivity(ctx, roomID, msg.ID, time.Now().UTC()); err != nil {
		s.logger.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to update room activity")
	}

	participants, err := s.participants.ListByRoom(ctx, roomID)
	if err == nil {
		s.publisher.PublishToUsers(ctx, participantIDsExcept(participants, actor.ID),
			events.NewEvent(eventName, map[string]any{
				"roomId":    roomID,
				"messageId": msg.ID,
				"body":      body,
			}))
	}
	return nil
}

// requireParticipant loads the room and verifies the user belongs to it.
func (s *Service) requireParticipant(ctx context.Context, roomID, userID uuid.UUID) (*ChatRoom, []*ChatParticipant, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, apperror.NotFoundf("room not found")
	}
	participants, err := s.participants.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, nil, apperror.Internalf("listing participants: %v", err)
	}
	for _, p := range participants {
		if p.UserID == userID {
			return room, participants, nil
		}
	}
	return nil, nil, apperror.Forbiddenf("you are not a participant of this room")
}

// requireAdmin verifies the user holds the admin role in the room.
func (s *Service) requireAdmin(ctx context.Context, roomID, userID uuid.UUID) (*ChatRoom, []*ChatParticipant, error) {
	room, participants, err := s.requireParticipant(ctx, roomID, userID)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range participants {
		if p.UserID == userID && p.Role == ParticipantAdmin {
			return room, participants, nil
		}
	}
	return nil, nil, apperror.Forbiddenf("only room admins may do this")
}

func participantIDsExcept(participants []*ChatParticipant, exclude uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		if p.UserID != exclude {
			out = append(out, p.UserID)
		}
	}
	return out
}

func distinct(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
