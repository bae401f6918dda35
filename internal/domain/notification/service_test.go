package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/platform/audit"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/delivery"
	"github.com/carelink/carelink/internal/platform/events"
	"github.com/carelink/carelink/pkg/apperror"
)

type mockRepo struct {
	notifications map[uuid.UUID]*Notification
}

func (m *mockRepo) Create(_ context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = time.Now().UTC()
	m.notifications[n.ID] = n
	return nil
}

func (m *mockRepo) GetOwned(_ context.Context, id, ownerID uuid.UUID) (*Notification, error) {
	n, ok := m.notifications[id]
	if !ok || n.OwnerUserID != ownerID {
		return nil, nil
	}
	return n, nil
}

func (m *mockRepo) List(_ context.Context, ownerID uuid.UUID, filter ListFilter, limit, offset int) ([]*Notification, int, error) {
	var out []*Notification
	for _, n := range m.notifications {
		if n.OwnerUserID != ownerID {
			continue
		}
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		if filter.Status == StatusUnread && n.IsRead() {
			continue
		}
		if filter.Status == StatusRead && !n.IsRead() {
			continue
		}
		if filter.Priority != "" {
			if p, _ := n.Data["priority"].(string); p != filter.Priority {
				continue
			}
		}
		out = append(out, n)
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

func (m *mockRepo) UnreadCount(_ context.Context, ownerID uuid.UUID) (int, error) {
	count := 0
	for _, n := range m.notifications {
		if n.OwnerUserID == ownerID && !n.IsRead() {
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) MarkRead(_ context.Context, id, ownerID uuid.UUID, at time.Time) error {
	n, ok := m.notifications[id]
	if ok && n.OwnerUserID == ownerID && !n.IsRead() {
		n.ReadAt = &at
	}
	return nil
}

func (m *mockRepo) MarkAllRead(_ context.Context, ownerID uuid.UUID, at time.Time) (int, error) {
	count := 0
	for _, n := range m.notifications {
		if n.OwnerUserID == ownerID && !n.IsRead() {
			n.ReadAt = &at
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) Delete(_ context.Context, id, ownerID uuid.UUID) error {
	n, ok := m.notifications[id]
	if ok && n.OwnerUserID == ownerID {
		delete(m.notifications, id)
	}
	return nil
}

func (m *mockRepo) Stats(_ context.Context, ownerID uuid.UUID, now time.Time) (*Statistics, error) {
	stats := &Statistics{ByPriority: map[string]int{}, ByCategory: map[string]int{}}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart := now.AddDate(0, 0, -7)
	for _, n := range m.notifications {
		if n.OwnerUserID != ownerID {
			continue
		}
		stats.Total++
		if n.IsRead() {
			stats.Read++
		} else {
			stats.Unread++
		}
		if !n.CreatedAt.Before(dayStart) {
			stats.Today++
		}
		if !n.CreatedAt.Before(weekStart) {
			stats.ThisWeek++
		}
		priority, _ := n.Data["priority"].(string)
		if priority == "" {
			priority = PriorityNormal
		}
		stats.ByPriority[priority]++
		category, _ := n.Data["category"].(string)
		if category == "" {
			category = "general"
		}
		stats.ByCategory[category]++
	}
	return stats, nil
}

type mockUsers struct {
	users map[uuid.UUID]*directory.User
}

func (m *mockUsers) GetUsers(_ context.Context, ids []uuid.UUID) ([]*directory.User, error) {
	var out []*directory.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type mockDeliverer struct {
	failFor map[uuid.UUID]bool
	calls   int
}

func (m *mockDeliverer) Deliver(_ context.Context, channels []string, msg delivery.Message) delivery.Result {
	m.calls++
	if m.failFor[msg.RecipientID] {
		return delivery.Result{Success: false, Errors: map[string]string{channels[0]: "send failed"}}
	}
	return delivery.Result{Success: true}
}

type notifFixture struct {
	svc       *Service
	repo      *mockRepo
	users     *mockUsers
	deliverer *mockDeliverer
	publisher *events.RecordingPublisher
}

func newNotifFixture() *notifFixture {
	f := &notifFixture{
		repo:      &mockRepo{notifications: map[uuid.UUID]*Notification{}},
		users:     &mockUsers{users: map[uuid.UUID]*directory.User{}},
		deliverer: &mockDeliverer{failFor: map[uuid.UUID]bool{}},
		publisher: events.NewRecordingPublisher(),
	}
	f.svc = NewService(f.repo, f.users, f.deliverer, f.publisher, audit.NewMemoryRecorder(), zerolog.Nop())
	return f
}

func (f *notifFixture) seedNotification(t *testing.T, ownerID uuid.UUID, priority string, read bool) *Notification {
	t.Helper()
	n := &Notification{
		OwnerUserID: ownerID,
		Type:        "general",
		Data:        map[string]any{"title": "t", "priority": priority, "category": "general"},
	}
	if err := f.repo.Create(context.Background(), n); err != nil {
		t.Fatalf("seed notification: %v", err)
	}
	if read {
		now := time.Now().UTC()
		n.ReadAt = &now
	}
	return n
}

func ownerPrincipal() auth.Principal {
	return auth.Principal{ID: uuid.New(), Name: "Olive Owner", Roles: []string{directory.RoleNurse}}
}

func TestList_ComputesUnreadCountAcrossAllRows(t *testing.T) {
	f := newNotifFixture()
	owner := ownerPrincipal()
	f.seedNotification(t, owner.ID, PriorityNormal, false)
	f.seedNotification(t, owner.ID, PriorityHigh, false)
	f.seedNotification(t, owner.ID, PriorityNormal, true)
	f.seedNotification(t, uuid.New(), PriorityNormal, false)

	result, err := f.svc.List(context.Background(), owner, ListFilter{Status: StatusRead}, 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 1 {
		t.Errorf("got %d read notifications, want 1", result.Total)
	}
	// Unread count ignores the page filter and other owners' rows.
	if result.UnreadCount != 2 {
		t.Errorf("got unread count %d, want 2", result.UnreadCount)
	}
}

func TestList_RejectsBadFilter(t *testing.T) {
	f := newNotifFixture()
	owner := ownerPrincipal()
	if _, err := f.svc.List(context.Background(), owner, ListFilter{Status: "archived"}, 20, 0); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("got %v, want validation error", err)
	}
	if _, err := f.svc.List(context.Background(), owner, ListFilter{Priority: "extreme"}, 20, 0); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("got %v, want validation error", err)
	}
}

func TestMarkRead_NoopWhenAlreadyRead(t *testing.T) {
	f := newNotifFixture()
	owner := ownerPrincipal()
	n := f.seedNotification(t, owner.ID, PriorityNormal, true)
	before := *n.ReadAt

	got, err := f.svc.MarkRead(context.Background(), owner, n.ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !got.ReadAt.Equal(before) {
		t.Error("read timestamp changed on already-read notification")
	}
}

func TestMarkRead_NotOwned(t *testing.T) {
	f := newNotifFixture()
	owner := ownerPrincipal()
	other := f.seedNotification(t, uuid.New(), PriorityNormal, false)

	_, err := f.svc.MarkRead(context.Background(), owner, other.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestMarkAllRead_ReturnsCount(t *testing.T) {
	f := newNotifFixture()
	owner := ownerPrincipal()
	f.seedNotification(t, owner.ID, PriorityNormal, false)
	f.seedNotification(t, owner.ID, PriorityHigh, false)
	f.seedNotification(t, owner.ID, PriorityNormal, true)

	count, err := f.svc.MarkAllRead(context.Background(), owner)
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if count != 2 {
		t.Errorf("got %d marked, want 2", count)
	}

	count, err = f.svc.MarkAllRead(context.Background(), owner)
	if err != nil {
		t.Fatalf("MarkAllRead again: %v", err)
	}
	if count != 0 {
		t.Errorf("got %d marked on repeat, want 0", count)
	}
}

func TestDelete_OwnedOnly(t *testing.T) {
	f := newNotifFixture()
	owner := ownerPrincipal()
	mine := f.seedNotification(t, owner.ID, PriorityNormal, false)
	theirs := f.seedNotification(t, uuid.New(), PriorityNormal, false)

	if err := f.svc.Delete(context.Background(), owner, mine.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := f.svc.Delete(context.Background(), owner, theirs.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestSend_PerRecipientFailuresAreReportedNotRaised(t *testing.T) {
	f := newNotifFixture()
	sender := auth.Principal{ID: uuid.New(), Name: "Dr. Sender", Roles: []string{directory.RoleDoctor}}

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		u := &directory.User{ID: uuid.New(), Name: "u", Role: directory.RoleNurse, IsActive: true}
		f.users.users[u.ID] = u
		ids = append(ids, u.ID)
	}
	f.deliverer.failFor[ids[1]] = true

	results, err := f.svc.Send(context.Background(), sender, SendInput{
		Recipients: ids,
		Payload:    Payload{Title: "Shift change", Priority: PriorityNormal},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	if succeeded != 2 {
		t.Errorf("got %d successes, want 2", succeeded)
	}

	published := f.publisher.ByName("notification.received")
	if len(published) != 1 {
		t.Fatalf("got %d events, want 1", len(published))
	}
	if len(published[0].Targets) != 2 {
		t.Errorf("event targeted %d users, want the 2 delivered", len(published[0].Targets))
	}
}

func TestSend_RequiresPermission(t *testing.T) {
	f := newNotifFixture()
	nurse := auth.Principal{ID: uuid.New(), Name: "Nia", Roles: []string{directory.RoleNurse}}

	_, err := f.svc.Send(context.Background(), nurse, SendInput{
		Recipients: []uuid.UUID{uuid.New()},
		Payload:    Payload{Title: "t"},
	})
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("got %v, want forbidden", err)
	}
}

func TestSend_ScheduledDefersDelivery(t *testing.T) {
	f := newNotifFixture()
	sender := auth.Principal{ID: uuid.New(), Name: "Dr. Sender", Roles: []string{directory.RoleDoctor}}
	u := &directory.User{ID: uuid.New(), Name: "u", Role: directory.RoleNurse, IsActive: true}
	f.users.users[u.ID] = u

	at := time.Now().Add(time.Hour)
	results, err := f.svc.Send(context.Background(), sender, SendInput{
		Recipients: []uuid.UUID{u.ID},
		Payload:    Payload{Title: "Reminder"},
		ScheduleAt: &at,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(results) != 1 || !results[0].Scheduled {
		t.Fatalf("got %+v, want one scheduled result", results)
	}
	if f.deliverer.calls != 0 {
		t.Errorf("deliverer was called %d times before the scheduled time", f.deliverer.calls)
	}
}

func TestGetStatistics(t *testing.T) {
	f := newNotifFixture()
	owner := ownerPrincipal()
	f.seedNotification(t, owner.ID, PriorityHigh, false)
	f.seedNotification(t, owner.ID, PriorityHigh, true)
	f.seedNotification(t, owner.ID, PriorityNormal, false)

	stats, err := f.svc.GetStatistics(context.Background(), owner)
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.Total != 3 || stats.Unread != 2 || stats.Read != 1 {
		t.Errorf("got total/unread/read %d/%d/%d, want 3/2/1", stats.Total, stats.Unread, stats.Read)
	}
	if stats.ByPriority[PriorityHigh] != 2 {
		t.Errorf("got %d high-priority, want 2", stats.ByPriority[PriorityHigh])
	}
}

func TestStoreFromDelivery_PersistsRow(t *testing.T) {
	f := newNotifFixture()
	store := StoreFromDelivery(f.repo)
	recipient := uuid.New()

	err := store(context.Background(), delivery.Message{
		RecipientID: recipient,
		Title:       "t",
		Body:        "b",
		Priority:    PriorityNormal,
		Category:    "general",
		Data:        map[string]any{"title": "t", "priority": PriorityNormal},
	})
	if err != nil {
		t.Fatalf("StoreFromDelivery: %v", err)
	}

	count, _ := f.repo.UnreadCount(context.Background(), recipient)
	if count != 1 {
		t.Fatalf("got %d stored notifications, want 1", count)
	}
}
