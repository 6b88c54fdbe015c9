package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/process-portal/internal/application/dispatcher"
	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/domain/event"
)

// NotificationService turns committed domain events into chat messages
type NotificationService interface {
	// Register subscribes the notification handlers on d
	Register(d dispatcher.Dispatcher)
	Handle(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	sender    port.MessageSender
	approvers []string
	logger    Logger
}

// NewNotificationService creates a new NotificationService. approvers receive
// a message for every submission.
func NewNotificationService(sender port.MessageSender, approvers []string, logger Logger) NotificationService {
	return &notificationServiceImpl{
		sender:    sender,
		approvers: approvers,
		logger:    logger,
	}
}

var notifiedEvents = []event.Type{
	event.TypeApprovalSubmitted,
	event.TypeApprovalApproved,
	event.TypeApprovalRejected,
	event.TypeApprovalWithdrawn,
	event.TypeApprovalCommented,
	event.TypeProcessDeleted,
	event.TypeProcessRestored,
	event.TypeProcessHardDeleted,
	event.TypeEditConflictDetected,
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	for _, t := range notifiedEvents {
		d.SubscribeNamed(t, "notification."+t.String(), s.Handle, "Sends chat notifications for "+t.String())
	}
}

// Handle sends the message for evt to every recipient. Each recipient is tried
// even when an earlier send fails.
func (s *notificationServiceImpl) Handle(ctx context.Context, evt *event.Event) error {
	recipients, text := s.compose(evt)
	if len(recipients) == 0 || text == "" {
		return nil
	}

	var errs []error
	for _, to := range recipients {
		messageID, err := s.sender.SendText(ctx, to, text)
		if err != nil {
			s.logger.Error("Failed to send notification",
				"error", err,
				"event_type", evt.Type,
				"process_id", evt.ProcessID,
				"receiver", to,
			)
			errs = append(errs, fmt.Errorf("send to %s: %w", to, err))
			continue
		}
		s.logger.Info("Notification sent",
			"event_type", evt.Type,
			"process_id", evt.ProcessID,
			"receiver", to,
			"message_id", messageID,
		)
	}
	return errors.Join(errs...)
}

func (s *notificationServiceImpl) compose(evt *event.Event) ([]string, string) {
	title := evt.GetPayloadString(event.KeyTitle)
	if title == "" {
		title = fmt.Sprintf("#%d", evt.ProcessID)
	}
	requester := evt.GetPayloadString(event.KeyRequestedBy)
	stakeholders := []string{evt.GetPayloadString(event.KeyCreatedBy), evt.GetPayloadString(event.KeyOwnerID)}

	var (
		to   []string
		text string
	)
	switch evt.Type {
	case event.TypeApprovalSubmitted:
		to = s.approvers
		text = fmt.Sprintf("Process \"%s\" was submitted for approval by %s.", title, evt.ActorID)
		text = withLine(text, "Comment", evt.GetPayloadString(event.KeyComment))
	case event.TypeApprovalApproved:
		to = []string{requester}
		text = fmt.Sprintf("Your process \"%s\" was approved by %s and published as version %s.",
			title, evt.ActorID, evt.GetPayloadString(event.KeyVersionNumber))
		text = withLine(text, "Comment", evt.GetPayloadString(event.KeyComment))
	case event.TypeApprovalRejected:
		to = []string{requester}
		text = fmt.Sprintf("Your process \"%s\" was rejected by %s.", title, evt.ActorID)
		text = withLine(text, "Reason", evt.GetPayloadString(event.KeyReason))
	case event.TypeApprovalWithdrawn:
		to = []string{requester}
		text = fmt.Sprintf("The approval request for \"%s\" was withdrawn.", title)
	case event.TypeApprovalCommented:
		to = []string{requester}
		text = fmt.Sprintf("%s commented on the approval request for process %d.", evt.ActorID, evt.ProcessID)
		text = withLine(text, "Comment", evt.GetPayloadString(event.KeyComment))
	case event.TypeProcessDeleted:
		to = stakeholders
		text = fmt.Sprintf("Process \"%s\" was deleted by %s.", title, evt.ActorID)
		text = withLine(text, "Reason", evt.GetPayloadString(event.KeyReason))
	case event.TypeProcessRestored:
		to = stakeholders
		text = fmt.Sprintf("Process \"%s\" was restored by %s and is now a draft.", title, evt.ActorID)
	case event.TypeProcessHardDeleted:
		to = stakeholders
		text = fmt.Sprintf("Process \"%s\" was permanently deleted by %s.", title, evt.ActorID)
		text = withLine(text, "Reason", evt.GetPayloadString(event.KeyReason))
	case event.TypeEditConflictDetected:
		to = evt.GetPayloadStrings(event.KeyConflicts)
		text = fmt.Sprintf("%s saved changes to \"%s\" that overlap with your open draft. Review the conflict before completing your edit.",
			evt.ActorID, title)
	default:
		return nil, ""
	}
	return unique(to), text
}

func withLine(text, label, value string) string {
	if strings.TrimSpace(value) == "" {
		return text
	}
	return text + "\n" + label + ": " + value
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
