package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"gopkg.in/gomail.v2"

	"github.com/premunia/leadline/internal/lead"
	"github.com/premunia/leadline/internal/settings"
)

// Message is one outgoing email.
type Message struct {
	To      string
	ReplyTo string
	Subject string
	HTML    string
}

// Mailer delivers a message through the given SMTP server.
type Mailer interface {
	Send(ctx context.Context, cfg *settings.SMTPConfig, msg Message) error
}

// GomailMailer sends mail with gomail over SMTP.
type GomailMailer struct{}

// Send dials the configured server and delivers msg. The dial happens in a
// goroutine so ctx can bound it.
func (GomailMailer) Send(ctx context.Context, cfg *settings.SMTPConfig, msg Message) error {
	m := gomail.NewMessage()
	if cfg.FromName != "" {
		m.SetAddressHeader("From", cfg.FromEmail, cfg.FromName)
	} else {
		m.SetHeader("From", cfg.FromEmail)
	}
	m.SetHeader("To", msg.To)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	d := gomail.NewDialer(cfg.Host, int(cfg.Port), cfg.User, cfg.Password)

	errCh := make(chan error, 1)
	go func() { errCh <- d.DialAndSend(m) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	}
}

var (
	alertTmpl = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <div style="max-width: 560px; margin: 0 auto; padding: 16px;">
    <h2>Nouveau prospect</h2>
    <table cellpadding="4">
      <tr><td><b>Nom</b></td><td>{{.FirstName}} {{.LastName}}</td></tr>
      <tr><td><b>Email</b></td><td>{{.Email}}</td></tr>
      {{with .Phone}}<tr><td><b>Téléphone</b></td><td>{{.}}</td></tr>{{end}}
      {{with .Profession}}<tr><td><b>Profession</b></td><td>{{.}}</td></tr>{{end}}
    </table>
    {{with .Message}}<p style="white-space: pre-wrap;">{{.}}</p>{{end}}
    <p style="font-size: 12px; color: #6b7280;">Reçu le {{.CreatedAt.Format "02/01/2006 15:04"}}</p>
  </div>
</body>
</html>`))

	ackTmpl = template.Must(template.New("ack").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <div style="max-width: 560px; margin: 0 auto; padding: 16px;">
    <p>Bonjour {{.Lead.FirstName}},</p>
    <p>Merci pour votre demande. Un conseiller vous recontactera très prochainement.</p>
    <p>{{.Sender}}</p>
  </div>
</body>
</html>`))
)

func renderAlert(l lead.Lead) (string, error) {
	var buf bytes.Buffer
	if err := alertTmpl.Execute(&buf, l); err != nil {
		return "", fmt.Errorf("rendering alert: %w", err)
	}
	return buf.String(), nil
}

func renderAck(l lead.Lead, sender string) (string, error) {
	var buf bytes.Buffer
	err := ackTmpl.Execute(&buf, struct {
		Lead   lead.Lead
		Sender string
	}{l, sender})
	if err != nil {
		return "", fmt.Errorf("rendering acknowledgement: %w", err)
	}
	return buf.String(), nil
}
