package broadcast

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
	"github.com/carelink/carelink/internal/platform/delivery"
	"github.com/carelink/carelink/internal/platform/events"
	"github.com/carelink/carelink/pkg/apperror"
)

// UserDirectory resolves the broadcast audience.
type UserDirectory interface {
	FindActiveUsers(ctx context.Context, roles []string, facilityIDs []uuid.UUID) ([]*directory.User, error)
}

// Deliverer attempts delivery of one payload over the requested channels.
type Deliverer interface {
	Deliver(ctx context.Context, channels []string, msg delivery.Message) delivery.Result
}

// DefaultTargetRoles is the audience used when a broadcast specifies neither
// roles nor facilities.
var DefaultTargetRoles = []string{
	directory.RoleSuperAdmin,
	directory.RoleHospitalAdmin,
	directory.RoleDoctor,
	directory.RoleNurse,
	directory.RoleDispatcher,
}

// senderRoles may dispatch broadcasts; viewerRoles may read the history.
var senderRoles = []string{
	directory.RoleSuperAdmin,
	directory.RoleHospitalAdmin,
	directory.RoleDoctor,
	directory.RoleDispatcher,
}

var viewerRoles = append([]string{directory.RoleNurse}, senderRoles...)

var validChannels = map[string]bool{
	delivery.ChannelDatabase: true,
	delivery.ChannelEmail:    true,
	delivery.ChannelSMS:      true,
	delivery.ChannelWhatsApp: true,
	delivery.ChannelPush:     true,
	delivery.ChannelVoice:    true,
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

// SendBroadcastInput carries one broadcast request.
type SendBroadcastInput struct {
	Title            string      `json:"title"`
	Message          string      `json:"message"`
	Severity         string      `json:"severity"`
	Type             string      `json:"type"`
	TargetRoles      []string    `json:"target_roles"`
	TargetFacilities []uuid.UUID `json:"target_facilities"`
	Channels         []string    `json:"channels"`
	ExpiresAt        *time.Time  `json:"expires_at"`
}

// SendBroadcast resolves the audience, fans the alert out once per recipient
// over all requested channels, and persists the outcome. Individual delivery
// failures are folded into the counts and never abort the run.
func (s *Service) SendBroadcast(ctx context.Context, sender auth.Principal, in SendBroadcastInput) (*EmergencyBroadcast, error) {
	if !sender.HasAnyRole(senderRoles...) {
		return nil, apperror.Forbiddenf("you are not permitted to send broadcasts")
	}
	if in.Title == "" || in.Message == "" {
		return nil, apperror.Validationf("title and message are required")
	}
	if !validSeverities[in.Severity] {
		return nil, apperror.Validationf("unknown severity %q", in.Severity)
	}
	if !validTypes[in.Type] {
		return nil, apperror.Validationf("unknown broadcast type %q", in.Type)
	}
	if len(in.Channels) == 0 {
		return nil, apperror.Validationf("at least one channel is required")
	}
	for _, ch := range in.Channels {
		if !validChannels[ch] {
			return nil, apperror.Validationf("unknown channel %q", ch)
		}
	}

	roles := in.TargetRoles
	if len(roles) == 0 && len(in.TargetFacilities) == 0 {
		roles = DefaultTargetRoles
	}
	recipients, err := s.users.FindActiveUsers(ctx, roles, in.TargetFacilities)
	if err != nil {
		return nil, apperror.Internalf("resolving audience: %v", err)
	}

	b := &EmergencyBroadcast{
		Title:            in.Title,
		Message:          in.Message,
		Severity:         in.Severity,
		Type:             in.Type,
		SentBy:           sender.ID,
		SenderName:       sender.Name,
		TargetRoles:      roles,
		TargetFacilities: in.TargetFacilities,
		Channels:         in.Channels,
		Status:           StatusSending,
		ExpiresAt:        in.ExpiresAt,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, apperror.Internalf("creating broadcast record: %v", err)
	}

	// The recipient set is fixed here; late roster changes do not affect
	// this run.
	results := make([]DeliveryResult, 0, len(recipients))
	for _, u := range recipients {
		res := s.deliverer.Deliver(ctx, in.Channels, delivery.Message{
			RecipientID:    u.ID,
			RecipientName:  u.Name,
			RecipientEmail: deref(u.Email),
			RecipientPhone: deref(u.Phone),
			Title:          in.Title,
			Body:           in.Message,
			Priority:       priorityForSeverity(in.Severity),
			Category:       "emergency_broadcast",
			Data: map[string]any{
				"broadcastId": b.ID,
				"severity":    in.Severity,
				"type":        in.Type,
				"senderId":    sender.ID,
				"senderName":  sender.Name,
			},
		})
		outcome := OutcomeDelivered
		if !res.Success {
			outcome = OutcomeFailed
			s.logger.Warn().
				Str("broadcast_id", b.ID.String()).
				Str("recipient_id", u.ID.String()).
				Interface("errors", res.Errors).
				Msg("broadcast delivery failed for recipient")
		}
		results = append(results, DeliveryResult{UserID: u.ID, UserName: u.Name, Outcome: outcome})
	}

	now := time.Now().UTC()
	b.Status = StatusSent
	b.SentAt = &now
	b.RecipientCount = len(recipients)
	b.DeliveryResults = results
	for _, r := range results {
		if r.Outcome == OutcomeDelivered {
			b.SuccessCount++
		} else {
			b.FailureCount++
		}
	}
	if err := s.repo.Finalize(ctx, b); err != nil {
		return nil, apperror.Internalf("finalizing broadcast record: %v", err)
	}

	s.publisher.PublishToAll(ctx, events.NewEvent("broadcast.sent", map[string]any{
		"broadcastId": b.ID,
		"title":       b.Title,
		"severity":    b.Severity,
		"type":        b.Type,
		"senderId":    sender.ID,
		"senderName":  sender.Name,
	}), sender.ID)

	s.auditor.Record(ctx, audit.Entry{
		Action:    "broadcast.sent",
		Subject:   "emergency_broadcast:" + b.ID.String(),
		ActorID:   sender.ID,
		ActorName: sender.Name,
		Severity:  auditSeverity(b.Severity),
		Message:   fmt.Sprintf("broadcast %q sent to %d recipients (%d failed)", b.Title, b.RecipientCount, b.FailureCount),
		Metadata:  map[string]any{"channels": b.Channels, "target_roles": roles},
	})

	return b, nil
}

const (
	AlertPriorityStable          = "stable"
	AlertPriorityUrgent          = "urgent"
	AlertPriorityCritical        = "critical"
	AlertPriorityLifeThreatening = "life_threatening"
)

var validAlertPriorities = map[string]bool{
	AlertPriorityStable:          true,
	AlertPriorityUrgent:          true,
	AlertPriorityCritical:        true,
	AlertPriorityLifeThreatening: true,
}

// UrgentMedicalAlertInput describes an incoming patient alert.
type UrgentMedicalAlertInput struct {
	PatientRef          string     `json:"patient_ref"`
	Condition           string     `json:"condition"`
	Location            string     `json:"location"`
	Priority            string     `json:"priority"`
	RequiredSpecialties []string   `json:"required_specialties"`
	EstimatedArrival    *time.Time `json:"estimated_arrival"`
}

// SendUrgentMedicalAlert composes a medical-emergency broadcast from the
// alert fields and delegates to SendBroadcast. Channels are fixed to
// database, push and SMS.
func (s *Service) SendUrgentMedicalAlert(ctx context.Context, sender auth.Principal, in UrgentMedicalAlertInput) (*EmergencyBroadcast, error) {
	if in.PatientRef == "" || in.Condition == "" {
		return nil, apperror.Validationf("patient_ref and condition are required")
	}
	if !validAlertPriorities[in.Priority] {
		return nil, apperror.Validationf("unknown alert priority %q", in.Priority)
	}

	roles := []string{directory.RoleDoctor, directory.RoleNurse}
	if in.Priority == AlertPriorityLifeThreatening {
		roles = append(roles, directory.RoleHospitalAdmin, directory.RoleDispatcher)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Patient %s incoming with %s", in.PatientRef, in.Condition)
	if in.Location != "" {
		fmt.Fprintf(&body, " at %s", in.Location)
	}
	if in.EstimatedArrival != nil {
		fmt.Fprintf(&body, ", ETA %s", in.EstimatedArrival.Format("15:04"))
	}
	if len(in.RequiredSpecialties) > 0 {
		fmt.Fprintf(&body, ". Required: %s", strings.Join(in.RequiredSpecialties, ", "))
	}

	return s.SendBroadcast(ctx, sender, SendBroadcastInput{
		Title:       fmt.Sprintf("URGENT: %s patient incoming", strings.ToUpper(in.Priority)),
		Message:     body.String(),
		Severity:    severityForAlertPriority(in.Priority),
		Type:        TypeMedicalEmergency,
		TargetRoles: roles,
		Channels:    []string{delivery.ChannelDatabase, delivery.ChannelPush, delivery.ChannelSMS},
	})
}

// GetBroadcastHistory lists past broadcasts, newest first.
func (s *Service) GetBroadcastHistory(ctx context.Context, viewer auth.Principal, filter HistoryFilter, limit, offset int) ([]*EmergencyBroadcast, int, error) {
	if !viewer.HasAnyRole(viewerRoles...) {
		return nil, 0, apperror.Forbiddenf("you are not permitted to view broadcast history")
	}
	if filter.Severity != "" && !validSeverities[filter.Severity] {
		return nil, 0, apperror.Validationf("unknown severity %q", filter.Severity)
	}
	if filter.Type != "" && !validTypes[filter.Type] {
		return nil, 0, apperror.Validationf("unknown broadcast type %q", filter.Type)
	}
	return s.repo.List(ctx, filter, limit, offset)
}

// GetBroadcast returns a single broadcast record.
func (s *Service) GetBroadcast(ctx context.Context, viewer auth.Principal, id uuid.UUID) (*EmergencyBroadcast, error) {
	if !viewer.HasAnyRole(viewerRoles...) {
		return nil, apperror.Forbiddenf("you are not permitted to view broadcasts")
	}
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFoundf("broadcast not found")
	}
	return b, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func priorityForSeverity(severity string) string {
	switch severity {
	case SeverityCritical:
		return "urgent"
	case SeverityHigh:
		return "high"
	default:
		return "normal"
	}
}

func severityForAlertPriority(priority string) string {
	switch priority {
	case AlertPriorityLifeThreatening:
		return SeverityCritical
	case AlertPriorityCritical:
		return SeverityHigh
	case AlertPriorityUrgent:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func auditSeverity(broadcastSeverity string) audit.Severity {
	switch broadcastSeverity {
	case SeverityCritical:
		return audit.SeverityCritical
	case SeverityHigh:
		return audit.SeverityWarning
	default:
		return audit.SeverityInfo
	}
}
