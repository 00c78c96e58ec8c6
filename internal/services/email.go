package services

import (
	"context"
	"fmt"
	"log/slog"

	"analyticsadmin/internal/domain"
)

type emailService struct {
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
	logger   *slog.Logger
}

// NewEmailService returns an EmailService that uses the given Mailer and template renderer.
func NewEmailService(mailer domain.Mailer, renderer domain.EmailTemplateRenderer, logger *slog.Logger) domain.EmailService {
	return &emailService{mailer: mailer, renderer: renderer, logger: logger}
}

// SendInvitationAccepted tells the inviter that a non-owner invitation was accepted.
func (s *emailService) SendInvitationAccepted(ctx context.Context, data *domain.InvitationAcceptedEmailData) error {
	if data == nil {
		return fmt.Errorf("invitation accepted data is nil")
	}
	return s.send(ctx, "invitation_accepted", data.Email, data)
}

// SendOwnershipTransferAccepted tells the previous owner that the site changed hands.
func (s *emailService) SendOwnershipTransferAccepted(ctx context.Context, data *domain.InvitationAcceptedEmailData) error {
	if data == nil {
		return fmt.Errorf("ownership transfer data is nil")
	}
	return s.send(ctx, "ownership_transfer_accepted", data.Email, data)
}

// SendDashboardLocked tells an owner their dashboards are locked.
func (s *emailService) SendDashboardLocked(ctx context.Context, data *domain.DashboardLockedEmailData) error {
	if data == nil {
		return fmt.Errorf("dashboard locked data is nil")
	}
	return s.send(ctx, "dashboard_locked", data.Email, data)
}

func (s *emailService) send(ctx context.Context, template, to string, data any) error {
	subject, htmlBody, textBody, err := s.renderer.Render(template, data)
	if err != nil {
		return fmt.Errorf("failed to render %s template: %w", template, err)
	}
	if err := s.mailer.Send(to, subject, htmlBody, textBody); err != nil {
		return fmt.Errorf("failed to send %s email: %w", template, err)
	}
	s.logger.InfoContext(ctx, "email sent", "template", template, "to", to)
	return nil
}
