package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"time"
)

// Kind selects the template and subject of a code email
type Kind string

const (
	KindVerification  Kind = "verify_email"
	KindPasswordReset Kind = "password_reset"
)

// Message is one rendered email ready to be sent
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Transport delivers a rendered message
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Service renders code emails and hands them to a transport
type Service struct {
	transport Transport
	codeTTL   time.Duration
	templates map[Kind]*template.Template
	subjects  map[Kind]string
}

func NewService(transport Transport, codeTTL time.Duration) *Service {
	return &Service{
		transport: transport,
		codeTTL:   codeTTL,
		templates: map[Kind]*template.Template{
			KindVerification:  template.Must(template.New("verification").Parse(verificationTemplate)),
			KindPasswordReset: template.Must(template.New("passwordReset").Parse(passwordResetTemplate)),
		},
		subjects: map[Kind]string{
			KindVerification:  "Email Verification",
			KindPasswordReset: "Password Reset Code",
		},
	}
}

// SendCode renders the template for kind and sends it synchronously
func (s *Service) SendCode(ctx context.Context, kind Kind, toEmail, name, code string) error {
	msg, err := s.Render(kind, toEmail, name, code)
	if err != nil {
		return err
	}

	if err := s.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// Render builds the message for kind without sending it
func (s *Service) Render(kind Kind, toEmail, name, code string) (Message, error) {
	tmpl, ok := s.templates[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown email kind %q", kind)
	}

	var buf bytes.Buffer
	data := struct {
		Name           string
		Code           string
		ExpiresMinutes int
	}{
		Name:           name,
		Code:           code,
		ExpiresMinutes: int(s.codeTTL.Minutes()),
	}

	if err := tmpl.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("execute template: %w", err)
	}

	return Message{To: toEmail, Subject: s.subjects[kind], HTML: buf.String()}, nil
}

// SMTPTransport sends mail through an SMTP relay with PLAIN auth
type SMTPTransport struct {
	host     string
	port     string
	user     string
	password string
	from     string
	dialer   net.Dialer
}

func NewSMTPTransport(host, port, user, password, fromName string) *SMTPTransport {
	from := user
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, user)
	}
	return &SMTPTransport{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     from,
	}
}

// Send delivers msg in one SMTP session. The connection deadline follows
// ctx, so a stalled relay fails the send instead of holding the caller.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := t.dialer.DialContext(ctx, "tcp", net.JoinHostPort(t.host, t.port))
	if err != nil {
		return fmt.Errorf("failed to dial SMTP server: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("failed to set SMTP deadline: %w", err)
		}
	}
	// cancellation without a deadline still unblocks pending reads
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: t.host}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	if t.user != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", t.user, t.password, t.host)); err != nil {
				return fmt.Errorf("failed to authenticate: %w", err)
			}
		}
	}

	if err := client.Mail(t.user); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open message body: %w", err)
	}
	if _, err := wc.Write(t.compose(msg)); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return client.Quit()
}

func (t *SMTPTransport) compose(msg Message) []byte {
	return []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		t.from, msg.To, msg.Subject, msg.HTML,
	))
}

const verificationTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #4F46E5; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
        .code { font-size: 32px; font-weight: bold; letter-spacing: 8px; color: #4F46E5; text-align: center; margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Welcome, {{.Name}}!</h1>
    </div>
    <div class="content">
        <h2>Verify your email address</h2>
        <p>Enter this code in the app to activate your account:</p>
        <p class="code">{{.Code}}</p>
        <p style="margin-top: 30px;">If you didn't create an account, you can safely ignore this email.</p>
    </div>
    <div class="footer">
        <p>This code will expire in {{.ExpiresMinutes}} minutes.</p>
    </div>
</body>
</html>
`

const passwordResetTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #4F46E5; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
        .code { font-size: 32px; font-weight: bold; letter-spacing: 8px; color: #4F46E5; text-align: center; margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Password Reset Request</h1>
    </div>
    <div class="content">
        <h2>Hi {{.Name}},</h2>
        <p>You requested to reset your password. Enter this code in the app to continue:</p>
        <p class="code">{{.Code}}</p>
        <p style="margin-top: 30px;">If you didn't request a password reset, you can safely ignore this email. Your password will remain unchanged.</p>
    </div>
    <div class="footer">
        <p>This code will expire in {{.ExpiresMinutes}} minutes.</p>
    </div>
</body>
</html>
`
