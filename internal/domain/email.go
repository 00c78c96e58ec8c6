package domain

import "context"

// Mailer defines the contract for sending emails (infrastructure port).
type Mailer interface {
	Send(to, subject, html, text string) error
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// InvitationAcceptedEmailData is sent to the inviter once the invitee joins.
type InvitationAcceptedEmailData struct {
	Email        string // inviter address
	InviteeEmail string
	SiteDomain   string
	Role         Role
}

// DashboardLockedEmailData is sent to an owner whose sites were locked after the grace period.
type DashboardLockedEmailData struct {
	Email      string
	Name       string
	SiteCount  int
	SiteDomain string
}

// EmailService defines the contract for sending domain-level emails.
type EmailService interface {
	SendInvitationAccepted(ctx context.Context, data *InvitationAcceptedEmailData) error
	SendOwnershipTransferAccepted(ctx context.Context, data *InvitationAcceptedEmailData) error
	SendDashboardLocked(ctx context.Context, data *DashboardLockedEmailData) error
}
