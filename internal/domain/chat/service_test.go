package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/platform/audit"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/events"
	"github.com/carelink/carelink/pkg/apperror"
)

type mockRoomRepo struct {
	rooms map[uuid.UUID]*ChatRoom
	// participants is shared with the participant repo to answer
	// FindIndividualRoom and ListByUser.
	participants *mockParticipantRepo
}

func (m *mockRoomRepo) Create(_ context.Context, room *ChatRoom) error {
	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	room.CreatedAt = time.Now().UTC()
	room.UpdatedAt = room.CreatedAt
	m.rooms[room.ID] = room
	return nil
}

func (m *mockRoomRepo) GetByID(_ context.Context, id uuid.UUID) (*ChatRoom, error) {
	room, ok := m.rooms[id]
	if !ok || !room.IsActive {
		return nil, errors.New("no rows")
	}
	return room, nil
}

func (m *mockRoomRepo) Update(_ context.Context, room *ChatRoom) error {
	m.rooms[room.ID] = room
	return nil
}

func (m *mockRoomRepo) TouchActivity(_ context.Context, roomID, lastMessageID uuid.UUID, at time.Time) error {
	room, ok := m.rooms[roomID]
	if !ok {
		return errors.New("no rows")
	}
	room.LastActivityAt = &at
	room.LastMessageID = &lastMessageID
	return nil
}

func (m *mockRoomRepo) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*ChatRoom, int, error) {
	var out []*ChatRoom
	for _, room := range m.rooms {
		if !room.IsActive {
			continue
		}
		for _, p := range m.participants.byRoom[room.ID] {
			if p.UserID == userID {
				out = append(out, room)
				break
			}
		}
	}
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockRoomRepo) FindIndividualRoom(_ context.Context, userA, userB uuid.UUID) (*ChatRoom, error) {
	for _, room := range m.rooms {
		if room.Type != RoomTypeIndividual || !room.IsActive {
			continue
		}
		var hasA, hasB bool
		for _, p := range m.participants.byRoom[room.ID] {
			if p.UserID == userA {
				hasA = true
			}
			if p.UserID == userB {
				hasB = true
			}
		}
		if hasA && hasB {
			return room, nil
		}
	}
	return nil, nil
}

type mockParticipantRepo struct {
	byRoom map[uuid.UUID][]*ChatParticipant
}

func (m *mockParticipantRepo) Add(_ context.Context, p *ChatParticipant) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	for _, existing := range m.byRoom[p.RoomID] {
		if existing.UserID == p.UserID {
			return nil
		}
	}
	m.byRoom[p.RoomID] = append(m.byRoom[p.RoomID], p)
	return nil
}

func (m *mockParticipantRepo) Get(_ context.Context, roomID, userID uuid.UUID) (*ChatParticipant, error) {
	for _, p := range m.byRoom[roomID] {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockParticipantRepo) ListByRoom(_ context.Context, roomID uuid.UUID) ([]*ChatParticipant, error) {
	return m.byRoom[roomID], nil
}

func (m *mockParticipantRepo) Remove(_ context.Context, roomID, userID uuid.UUID) error {
	list := m.byRoom[roomID]
	for i, p := range list {
		if p.UserID == userID {
			m.byRoom[roomID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockParticipantRepo) UpdateRole(_ context.Context, roomID, userID uuid.UUID, role string) error {
	for _, p := range m.byRoom[roomID] {
		if p.UserID == userID {
			p.Role = role
			return nil
		}
	}
	return errors.New("no rows")
}

func (m *mockParticipantRepo) CountAdmins(_ context.Context, roomID uuid.UUID) (int, error) {
	count := 0
	for _, p := range m.byRoom[roomID] {
		if p.Role == ParticipantAdmin {
			count++
		}
	}
	return count, nil
}

type mockMessageRepo struct {
	messages map[uuid.UUID]*ChatMessage
	reads    map[string]time.Time // "messageID/userID"
}

func readKey(messageID, userID uuid.UUID) string {
	return messageID.String() + "/" + userID.String()
}

func (m *mockMessageRepo) Create(_ context.Context, msg *ChatMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.CreatedAt = time.Now().UTC()
	m.messages[msg.ID] = msg
	return nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*ChatMessage, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	return msg, nil
}

func (m *mockMessageRepo) ListByRoom(_ context.Context, roomID uuid.UUID, limit, offset int) ([]*ChatMessage, int, error) {
	var out []*ChatMessage
	for _, msg := range m.messages {
		if msg.RoomID == roomID {
			out = append(out, msg)
		}
	}
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockMessageRepo) UnreadMessageIDs(_ context.Context, roomID, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, msg := range m.messages {
		if msg.RoomID != roomID || msg.SenderID == userID {
			continue
		}
		if _, read := m.reads[readKey(msg.ID, userID)]; !read {
			ids = append(ids, msg.ID)
		}
	}
	return ids, nil
}

func (m *mockMessageRepo) MarkRead(_ context.Context, messageIDs []uuid.UUID, userID uuid.UUID, readAt time.Time) (int, error) {
	count := 0
	for _, id := range messageIDs {
		key := readKey(id, userID)
		if _, ok := m.reads[key]; ok {
			continue
		}
		m.reads[key] = readAt
		count++
	}
	return count, nil
}

type mockAttachmentRepo struct {
	attachments map[uuid.UUID]*Attachment
}

func (m *mockAttachmentRepo) Create(_ context.Context, a *Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()
	m.attachments[a.ID] = a
	return nil
}

func (m *mockAttachmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Attachment, error) {
	a, ok := m.attachments[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	return a, nil
}

func (m *mockAttachmentRepo) ListByMessage(_ context.Context, messageID uuid.UUID) ([]*Attachment, error) {
	var out []*Attachment
	for _, a := range m.attachments {
		if a.MessageID == messageID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAttachmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.attachments, id)
	return nil
}

type mockDirectory struct {
	users map[uuid.UUID]*directory.User
}

func (m *mockDirectory) GetUser(_ context.Context, id uuid.UUID) (*directory.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFoundf("user not found")
	}
	return u, nil
}

func (m *mockDirectory) GetUsers(_ context.Context, ids []uuid.UUID) ([]*directory.User, error) {
	// Like the real repo's `WHERE id = ANY($1)`, duplicate ids yield one row.
	seen := make(map[uuid.UUID]bool, len(ids))
	var out []*directory.User
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type mockFileStore struct {
	failAfter int // store calls beyond this index fail; -1 never fails
	calls     int
	stored    []string
}

func (m *mockFileStore) Store(_ context.Context, _ []byte, pathHint string) (string, error) {
	m.calls++
	if m.failAfter >= 0 && m.calls > m.failAfter {
		return "", errors.New("storage unavailable")
	}
	path := "stored/" + pathHint
	m.stored = append(m.stored, path)
	return path, nil
}

func (m *mockFileStore) URLFor(storagePath string) string {
	return "https://files.local/" + storagePath
}

type chatFixture struct {
	svc          *Service
	rooms        *mockRoomRepo
	participants *mockParticipantRepo
	messages     *mockMessageRepo
	attachments  *mockAttachmentRepo
	dir          *mockDirectory
	files        *mockFileStore
	publisher    *events.RecordingPublisher
	auditor      *audit.MemoryRecorder
}

func newChatFixture() *chatFixture {
	participants := &mockParticipantRepo{byRoom: map[uuid.UUID][]*ChatParticipant{}}
	f := &chatFixture{
		rooms:        &mockRoomRepo{rooms: map[uuid.UUID]*ChatRoom{}, participants: participants},
		participants: participants,
		messages:     &mockMessageRepo{messages: map[uuid.UUID]*ChatMessage{}, reads: map[string]time.Time{}},
		attachments:  &mockAttachmentRepo{attachments: map[uuid.UUID]*Attachment{}},
		dir:          &mockDirectory{users: map[uuid.UUID]*directory.User{}},
		files:        &mockFileStore{failAfter: -1},
		publisher:    events.NewRecordingPublisher(),
		auditor:      audit.NewMemoryRecorder(),
	}
	f.svc = NewService(f.rooms, f.participants, f.messages, f.attachments,
		f.dir, f.files, f.publisher, f.auditor, zerolog.Nop())
	return f
}

func (f *chatFixture) seedUser(t *testing.T, name, role string) auth.Principal {
	t.Helper()
	u := &directory.User{ID: uuid.New(), Name: name, Role: role, IsActive: true}
	f.dir.users[u.ID] = u
	return auth.Principal{ID: u.ID, Name: u.Name, Roles: []string{u.Role}}
}

func (f *chatFixture) seedRoom(t *testing.T, creator auth.Principal, roomType string, members ...auth.Principal) *ChatRoom {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	room, err := f.svc.CreateRoom(context.Background(), creator, CreateRoomInput{
		Name:           fmt.Sprintf("%s room", roomType),
		Type:           roomType,
		ParticipantIDs: ids,
	})
	if err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return room
}

func TestCreateRoom_Validation(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)

	cases := []struct {
		name string
		in   CreateRoomInput
	}{
		{"missing name", CreateRoomInput{Type: RoomTypeGroup}},
		{"unknown type", CreateRoomInput{Name: "x", Type: "podcast"}},
		{"unknown participant", CreateRoomInput{Name: "x", Type: RoomTypeGroup, ParticipantIDs: []uuid.UUID{uuid.New()}}},
	}
	for _, tc := range cases {
		if _, err := f.svc.CreateRoom(context.Background(), alice, tc.in); !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("%s: got %v, want validation error", tc.name, err)
		}
	}
}

func TestCreateRoom_CreatorBecomesAdmin(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)

	// The creator appearing in the participant list must not yield a
	// duplicate membership.
	room, err := f.svc.CreateRoom(context.Background(), alice, CreateRoomInput{
		Name:           "oncall",
		Type:           RoomTypeGroup,
		ParticipantIDs: []uuid.UUID{alice.ID, bob.ID, bob.ID},
	})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	participants, _ := f.participants.ListByRoom(context.Background(), room.ID)
	if len(participants) != 2 {
		t.Fatalf("got %d participants, want 2", len(participants))
	}
	p, _ := f.participants.Get(context.Background(), room.ID, alice.ID)
	if p == nil || p.Role != ParticipantAdmin {
		t.Errorf("creator is not admin: %+v", p)
	}
	if room.Settings != DefaultRoomSettings() {
		t.Errorf("got settings %+v, want defaults", room.Settings)
	}
}

func TestCreateRoom_IndividualIsIdempotent(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)

	first := f.seedRoom(t, alice, RoomTypeIndividual, bob)
	second, err := f.svc.CreateRoom(context.Background(), bob, CreateRoomInput{
		Name:           "direct",
		Type:           RoomTypeIndividual,
		ParticipantIDs: []uuid.UUID{alice.ID},
	})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("got a new room %s, want existing %s", second.ID, first.ID)
	}
}

func TestSendMessage_RequiresParticipant(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	carol := f.seedUser(t, "Carol", directory.RoleDispatcher)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob)

	_, err := f.svc.SendMessage(context.Background(), carol, room.ID, SendMessageInput{Body: "hi"})
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("got %v, want forbidden", err)
	}
}

func TestSendMessage_PublishesToOthersAndTouchesRoom(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	carol := f.seedUser(t, "Carol", directory.RoleDispatcher)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob, carol)

	msg, err := f.svc.SendMessage(context.Background(), alice, room.ID, SendMessageInput{Body: "rounds at 9"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Priority != PriorityNormal || msg.MessageType != MessageText {
		t.Errorf("defaults not applied: %+v", msg)
	}

	published := f.publisher.ByName("chat.message.sent")
	if len(published) != 1 {
		t.Fatalf("got %d events, want 1", len(published))
	}
	targets := published[0].Targets
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(targets))
	}
	for _, id := range targets {
		if id == alice.ID {
			t.Error("event was published back to the sender")
		}
	}

	if room.LastMessageID == nil || *room.LastMessageID != msg.ID {
		t.Errorf("room last_message_id not updated")
	}
}

func TestSendMessage_AttachmentFailureAbortsSend(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob)

	f.files.failAfter = 1
	_, err := f.svc.SendMessage(context.Background(), alice, room.ID, SendMessageInput{
		Body: "scans attached",
		Uploads: []FileUpload{
			{OriginalName: "scan1.png", MimeType: "image/png", Content: []byte("a")},
			{OriginalName: "scan2.png", MimeType: "image/png", Content: []byte("b")},
		},
	})
	if err == nil {
		t.Fatal("expected error when attachment storage fails")
	}
	if n := len(f.publisher.Events()); n != 0 {
		t.Errorf("got %d events after aborted send, want 0", n)
	}
}

func TestSendMessage_RespectsFileSharingSetting(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob)

	off := false
	if _, err := f.svc.UpdateGroupSettings(context.Background(), alice, room.ID, SettingsPatch{AllowFileSharing: &off}); err != nil {
		t.Fatalf("UpdateGroupSettings: %v", err)
	}

	_, err := f.svc.SendMessage(context.Background(), alice, room.ID, SendMessageInput{
		Uploads: []FileUpload{{OriginalName: "x.pdf", MimeType: "application/pdf", Content: []byte("x")}},
	})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestAddParticipants_SkipsExistingAndEmitsOneSystemMessage(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	carol := f.seedUser(t, "Carol", directory.RoleDispatcher)
	dave := f.seedUser(t, "Dave", directory.RoleNurse)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob)

	err := f.svc.AddParticipants(context.Background(), alice, room.ID, []uuid.UUID{bob.ID, carol.ID, dave.ID})
	if err != nil {
		t.Fatalf("AddParticipants: %v", err)
	}

	participants, _ := f.participants.ListByRoom(context.Background(), room.ID)
	if len(participants) != 4 {
		t.Fatalf("got %d participants, want 4", len(participants))
	}

	var systemMsgs []*ChatMessage
	for _, m := range f.messages.messages {
		if m.IsSystemMessage {
			systemMsgs = append(systemMsgs, m)
		}
	}
	if len(systemMsgs) != 1 {
		t.Fatalf("got %d system messages, want 1", len(systemMsgs))
	}
}

func TestAddParticipants_AdminOnly(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	carol := f.seedUser(t, "Carol", directory.RoleDispatcher)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob)

	err := f.svc.AddParticipants(context.Background(), bob, room.ID, []uuid.UUID{carol.ID})
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("got %v, want forbidden", err)
	}
}

func TestRemoveParticipants_RefusesCreator(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob)

	if err := f.svc.PromoteToAdmin(context.Background(), alice, room.ID, bob.ID); err != nil {
		t.Fatalf("PromoteToAdmin: %v", err)
	}
	err := f.svc.RemoveParticipants(context.Background(), bob, room.ID, []uuid.UUID{alice.ID})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestPromoteToAdmin_TargetMustBeParticipant(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	carol := f.seedUser(t, "Carol", directory.RoleDispatcher)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob)

	err := f.svc.PromoteToAdmin(context.Background(), alice, room.ID, carol.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestLeaveRoom_CreatorNeedsAnotherAdmin(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob)

	err := f.svc.LeaveRoom(context.Background(), alice, room.ID)
	if !errors.Is(err, apperror.ErrInvalidState) {
		t.Fatalf("got %v, want invalid state", err)
	}

	if err := f.svc.PromoteToAdmin(context.Background(), alice, room.ID, bob.ID); err != nil {
		t.Fatalf("PromoteToAdmin: %v", err)
	}
	if err := f.svc.LeaveRoom(context.Background(), alice, room.ID); err != nil {
		t.Fatalf("LeaveRoom after promotion: %v", err)
	}
	if p, _ := f.participants.Get(context.Background(), room.ID, alice.ID); p != nil {
		t.Error("creator still a participant after leaving")
	}
}

func TestLeaveRoom_NonParticipant(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	carol := f.seedUser(t, "Carol", directory.RoleDispatcher)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob)

	err := f.svc.LeaveRoom(context.Background(), carol, room.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestMarkAsRead_IdempotentAndExcludesOwnMessages(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.SendMessage(context.Background(), alice, room.ID, SendMessageInput{Body: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}
	if _, err := f.svc.SendMessage(context.Background(), bob, room.ID, SendMessageInput{Body: "ack"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	count, err := f.svc.MarkAsRead(context.Background(), bob, room.ID)
	if err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}
	if count != 3 {
		t.Fatalf("got %d marked, want 3", count)
	}

	count, err = f.svc.MarkAsRead(context.Background(), bob, room.ID)
	if err != nil {
		t.Fatalf("MarkAsRead again: %v", err)
	}
	if count != 0 {
		t.Fatalf("got %d marked on repeat, want 0", count)
	}
}

func TestSendTypingIndicator_NotPersisted(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob)

	if err := f.svc.SendTypingIndicator(context.Background(), alice, room.ID, true); err != nil {
		t.Fatalf("SendTypingIndicator: %v", err)
	}
	if len(f.publisher.ByName("chat.typing")) != 1 {
		t.Fatal("typing event not published")
	}
	if len(f.messages.messages) != 0 {
		t.Error("typing indicator persisted a message")
	}

	carol := f.seedUser(t, "Carol", directory.RoleDispatcher)
	if err := f.svc.SendTypingIndicator(context.Background(), carol, room.ID, true); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("got %v, want forbidden", err)
	}
}

func TestUpdateGroupSettings_MergesPatch(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob)

	retention := 30
	updated, err := f.svc.UpdateGroupSettings(context.Background(), alice, room.ID, SettingsPatch{
		MessageRetentionDays: &retention,
	})
	if err != nil {
		t.Fatalf("UpdateGroupSettings: %v", err)
	}
	if updated.Settings.MessageRetentionDays != 30 {
		t.Errorf("got retention %d, want 30", updated.Settings.MessageRetentionDays)
	}
	if !updated.Settings.AllowFileSharing {
		t.Error("untouched setting was changed")
	}

	bad := 0
	if _, err := f.svc.UpdateGroupSettings(context.Background(), alice, room.ID, SettingsPatch{MessageRetentionDays: &bad}); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("got %v, want validation error", err)
	}
	if _, err := f.svc.UpdateGroupSettings(context.Background(), bob, room.ID, SettingsPatch{}); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("got %v, want forbidden", err)
	}
}

func TestDeleteAttachment_SenderOrAdminOnly(t *testing.T) {
	f := newChatFixture()
	alice := f.seedUser(t, "Alice", directory.RoleDoctor)
	bob := f.seedUser(t, "Bob", directory.RoleNurse)
	carol := f.seedUser(t, "Carol", directory.RoleNurse)
	room := f.seedRoom(t, alice, RoomTypeGroup, bob, carol)

	msg, err := f.svc.SendMessage(context.Background(), bob, room.ID, SendMessageInput{
		Body:    "scan attached",
		Uploads: []FileUpload{{OriginalName: "scan.png", MimeType: "image/png", Content: []byte{1}}},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	atts, err := f.attachments.ListByMessage(context.Background(), msg.ID)
	if err != nil || len(atts) != 1 {
		t.Fatalf("got %d attachments (%v), want 1", len(atts), err)
	}
	attID := atts[0].ID

	// Carol is a plain member and not the sender.
	err = f.svc.DeleteAttachment(context.Background(), carol, room.ID, attID)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("got %v, want forbidden", err)
	}

	// Bob sent the message.
	if err := f.svc.DeleteAttachment(context.Background(), bob, room.ID, attID); err != nil {
		t.Fatalf("DeleteAttachment as sender: %v", err)
	}
	if _, err := f.attachments.GetByID(context.Background(), attID); err == nil {
		t.Fatal("attachment still present after delete")
	}
	if err := f.svc.DeleteAttachment(context.Background(), bob, room.ID, attID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
	if got := len(f.auditor.ByAction("chat.attachment.deleted")); got != 1 {
		t.Fatalf("got %d audit entries, want 1", got)
	}
}
