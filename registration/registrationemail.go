package registration

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/International-Combat-Archery-Alliance/email"
	"github.com/pulsefest/registration/events"
)

//go:embed templates
var templates embed.FS

// SendRegistrationConfirmationEmail mails the leader once the registration
// reaches SUCCESS. Best-effort; callers log failures and never surface them.
func SendRegistrationConfirmationEmail(ctx context.Context, emailSender email.Sender, fromAddress string, reg Registration, event events.Event) error {
	leader, ok := reg.Leader()
	if !ok {
		return fmt.Errorf("registration %q has no leader to email", reg.ID)
	}

	htmlBody, err := renderEmailTemplate("registration-confirmation.tmpl", event, reg)
	if err != nil {
		return err
	}

	textOnlyBody, err := renderEmailTemplate("registration-confirmation-textonly.tmpl", event, reg)
	if err != nil {
		return err
	}

	return emailSender.SendEmail(ctx, email.Email{
		FromAddress: fromAddress,
		ToAddresses: []string{leader.Email},
		Subject:     fmt.Sprintf("Registration confirmed - %q", event.Name),
		HTMLBody:    htmlBody,
		TextBody:    textOnlyBody,
	})
}

func renderEmailTemplate(name string, event events.Event, reg Registration) (string, error) {
	tmpl, err := template.New(name).Funcs(template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}).ParseFS(templates, "templates/"+name)
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, map[string]any{
		"Event":        event,
		"Registration": reg,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}

	return buf.String(), nil
}
