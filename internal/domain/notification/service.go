package notification

import (
	"context"
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

// UserDirectory resolves recipient contact details.
type UserDirectory interface {
	GetUsers(ctx context.Context, ids []uuid.UUID) ([]*directory.User, error)
}

// Deliverer attempts delivery of one payload over the requested channels.
type Deliverer interface {
	Deliver(ctx context.Context, channels []string, msg delivery.Message) delivery.Result
}

// senderRoles may push notifications to other users.
var senderRoles = []string{
	directory.RoleSuperAdmin,
	directory.RoleHospitalAdmin,
	directory.RoleDoctor,
	directory.RoleDispatcher,
}

type Service struct {
	repo      Repository
	users     UserDirectory
	deliverer Deliverer
	publisher events.Publisher
	auditor   audit.Recorder
	logger    zerolog.Logger
}

func NewService(repo Repository, users UserDirectory, deliverer Deliverer,
	publisher events.Publisher, auditor audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		deliverer: deliverer,
		publisher: publisher,
		auditor:   auditor,
		logger:    logger,
	}
}

// ListResult is one page of notifications plus the owner's total unread
// count, which is computed over all rows rather than the page.
type ListResult struct {
	Notifications []*Notification `json:"notifications"`
	Total         int             `json:"total"`
	UnreadCount   int             `json:"unread_count"`
}

func (s *Service) List(ctx context.Context, owner auth.Principal, filter ListFilter, limit, offset int) (*ListResult, error) {
	if filter.Status != "" && filter.Status != StatusUnread && filter.Status != StatusRead {
		return nil, apperror.Validationf("unknown status %q", filter.Status)
	}
	if filter.Priority != "" && !validPriorities[filter.Priority] {
		return nil, apperror.Validationf("unknown priority %q", filter.Priority)
	}

	notifications, total, err := s.repo.List(ctx, owner.ID, filter, limit, offset)
	if err != nil {
		return nil, apperror.Internalf("listing notifications: %v", err)
	}
	unread, err := s.repo.UnreadCount(ctx, owner.ID)
	if err != nil {
		return nil, apperror.Internalf("counting unread: %v", err)
	}
	return &ListResult{Notifications: notifications, Total: total, UnreadCount: unread}, nil
}

// MarkRead sets the read timestamp. Already-read notifications are left
// unchanged.
func (s *Service) MarkRead(ctx context.Context, owner auth.Principal, id uuid.UUID) (*Notification, error) {
	n, err := s.repo.GetOwned(ctx, id, owner.ID)
	if err != nil {
		return nil, apperror.Internalf("loading notification: %v", err)
	}
	if n == nil {
		return nil, apperror.NotFoundf("notification not found")
	}
	if n.IsRead() {
		return n, nil
	}

	now := time.Now().UTC()
	if err := s.repo.MarkRead(ctx, id, owner.ID, now); err != nil {
		return nil, apperror.Internalf("marking notification read: %v", err)
	}
	n.ReadAt = &now
	return n, nil
}

// MarkAllRead marks every unread notification owned by the caller and
// returns the number affected.
func (s *Service) MarkAllRead(ctx context.Context, owner auth.Principal) (int, error) {
	count, err := s.repo.MarkAllRead(ctx, owner.ID, time.Now().UTC())
	if err != nil {
		return 0, apperror.Internalf("marking all read: %v", err)
	}
	return count, nil
}

// Delete removes a notification owned by the caller.
func (s *Service) Delete(ctx context.Context, owner auth.Principal, id uuid.UUID) error {
	n, err := s.repo.GetOwned(ctx, id, owner.ID)
	if err != nil {
		return apperror.Internalf("loading notification: %v", err)
	}
	if n == nil {
		return apperror.NotFoundf("notification not found")
	}
	if err := s.repo.Delete(ctx, id, owner.ID); err != nil {
		return apperror.Internalf("deleting notification: %v", err)
	}
	return nil
}

// Payload is the user-facing content of a sent notification. Its fields map
// onto the documented Notification.data keys.
type Payload struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	Priority   string `json:"priority"`
	Category   string `json:"category"`
	ActionURL  string `json:"action_url"`
	ActionText string `json:"action_text"`
	Icon       string `json:"icon"`
}

// SendInput carries one notification-send request.
type SendInput struct {
	Recipients []uuid.UUID `json:"recipients"`
	Payload    Payload     `json:"payload"`
	Channels   []string    `json:"channels"`
	ScheduleAt *time.Time  `json:"schedule_at"`
}

// SendResult is one recipient's outcome.
type SendResult struct {
	UserID    uuid.UUID         `json:"userId"`
	UserName  string            `json:"userName"`
	Success   bool              `json:"success"`
	Scheduled bool              `json:"scheduled,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// Send delivers a notification to each recipient independently. Per-recipient
// failures are reported in the result list, never raised. When ScheduleAt is
// in the future the fan-out is deferred and every result is reported as
// scheduled.
func (s *Service) Send(ctx context.Context, sender auth.Principal, in SendInput) ([]SendResult, error) {
	if !sender.HasAnyRole(senderRoles...) {
		return nil, apperror.Forbiddenf("you are not permitted to send notifications")
	}
	if len(in.Recipients) == 0 {
		return nil, apperror.Validationf("at least one recipient is required")
	}
	if in.Payload.Title == "" {
		return nil, apperror.Validationf("payload title is required")
	}
	if in.Payload.Priority == "" {
		in.Payload.Priority = PriorityNormal
	}
	if !validPriorities[in.Payload.Priority] {
		return nil, apperror.Validationf("unknown priority %q", in.Payload.Priority)
	}
	if len(in.Channels) == 0 {
		in.Channels = []string{delivery.ChannelDatabase}
	}

	recipients, err := s.users.GetUsers(ctx, in.Recipients)
	if err != nil {
		return nil, apperror.Internalf("resolving recipients: %v", err)
	}
	if len(recipients) != len(in.Recipients) {
		return nil, apperror.Validationf("one or more recipient ids do not exist")
	}

	if in.ScheduleAt != nil {
		if delay := time.Until(*in.ScheduleAt); delay > 0 {
			s.scheduleSend(sender, recipients, in, delay)
			results := make([]SendResult, 0, len(recipients))
			for _, u := range recipients {
				results = append(results, SendResult{UserID: u.ID, UserName: u.Name, Scheduled: true})
			}
			return results, nil
		}
	}

	return s.fanOut(ctx, sender, recipients, in), nil
}

func (s *Service) fanOut(ctx context.Context, sender auth.Principal, recipients []*directory.User, in SendInput) []SendResult {
	results := make([]SendResult, 0, len(recipients))
	var delivered []uuid.UUID
	for _, u := range recipients {
		res := s.deliverer.Deliver(ctx, in.Channels, delivery.Message{
			RecipientID:    u.ID,
			RecipientName:  u.Name,
			RecipientEmail: derefStr(u.Email),
			RecipientPhone: derefStr(u.Phone),
			Title:          in.Payload.Title,
			Body:           in.Payload.Message,
			Priority:       in.Payload.Priority,
			Category:       in.Payload.Category,
			Data: map[string]any{
				"title":      in.Payload.Title,
				"message":    in.Payload.Message,
				"priority":   in.Payload.Priority,
				"category":   in.Payload.Category,
				"actionUrl":  in.Payload.ActionURL,
				"actionText": in.Payload.ActionText,
				"icon":       in.Payload.Icon,
				"senderId":   sender.ID,
				"senderName": sender.Name,
			},
		})
		if !res.Success {
			s.logger.Warn().
				Str("recipient_id", u.ID.String()).
				Interface("errors", res.Errors).
				Msg("notification delivery failed for recipient")
		} else {
			delivered = append(delivered, u.ID)
		}
		results = append(results, SendResult{
			UserID:   u.ID,
			UserName: u.Name,
			Success:  res.Success,
			Errors:   res.Errors,
		})
	}

	if len(delivered) > 0 {
		s.publisher.PublishToUsers(ctx, delivered, events.NewEvent("notification.received", map[string]any{
			"title":      in.Payload.Title,
			"priority":   in.Payload.Priority,
			"category":   in.Payload.Category,
			"senderId":   sender.ID,
			"senderName": sender.Name,
		}))
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:    "notification.sent",
		Subject:   "notification_batch:" + uuid.NewString(),
		ActorID:   sender.ID,
		ActorName: sender.Name,
		Metadata:  map[string]any{"recipients": len(recipients), "channels": in.Channels},
	})
	return results
}

// scheduleSend defers the fan-out. The deferred run uses a background
// context so it survives the originating request.
func (s *Service) scheduleSend(sender auth.Principal, recipients []*directory.User, in SendInput, delay time.Duration) {
	s.logger.Info().
		Dur("delay", delay).
		Int("recipients", len(recipients)).
		Msg("notification send scheduled")
	time.AfterFunc(delay, func() {
		s.fanOut(context.Background(), sender, recipients, in)
	})
}

// GetStatistics summarizes the caller's notifications.
func (s *Service) GetStatistics(ctx context.Context, owner auth.Principal) (*Statistics, error) {
	stats, err := s.repo.Stats(ctx, owner.ID, time.Now().UTC())
	if err != nil {
		return nil, apperror.Internalf("computing statistics: %v", err)
	}
	return stats, nil
}

// StoreFromDelivery persists a Notification row from a gateway message. It
// backs the database channel sender.
func StoreFromDelivery(repo Repository) func(ctx context.Context, msg delivery.Message) error {
	return func(ctx context.Context, msg delivery.Message) error {
		data := msg.Data
		if data == nil {
			data = map[string]any{
				"title":    msg.Title,
				"message":  msg.Body,
				"priority": msg.Priority,
				"category": msg.Category,
			}
		}
		return repo.Create(ctx, &Notification{
			OwnerUserID: msg.RecipientID,
			Type:        msg.Category,
			Data:        data,
		})
	}
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
