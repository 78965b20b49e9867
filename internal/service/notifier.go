package service

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/observability"
	"github.com/boddenberg/securebank-go/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var mailTracer = otel.Tracer("service/notifier")

// Mail kinds.
const (
	MailConfirmEmail  = "confirm-email"
	MailResetPassword = "reset-password"
	MailWithdrawalOTP = "withdrawal-otp"
)

type mailTemplate struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

var mailTemplates = map[string]mailTemplate{
	MailConfirmEmail: {
		subject: "Confirm your SecureBank email",
		text: texttemplate.Must(texttemplate.New("confirm").Parse(
			"Hi {{.Username}},\n\nConfirm your email by opening this link: {{.Link}}\n\nThe link is valid for 1 hour.\n")),
		html: htmltemplate.Must(htmltemplate.New("confirm").Parse(
			`<h3>Welcome to SecureBank</h3>
<p>Hi <strong>{{.Username}}</strong>,</p>
<p>Please confirm your email address:</p>
<a href="{{.Link}}" style="display:inline-block;padding:10px 15px;background-color:#007bff;color:white;text-decoration:none;border-radius:5px;">Confirm Email</a>
<p style="margin-top:20px;font-size:small;">This link is valid for 1 hour.</p>`)),
	},
	MailResetPassword: {
		subject: "Reset your SecureBank password",
		text: texttemplate.Must(texttemplate.New("reset").Parse(
			"Hi {{.Username}},\n\nOpen this link to reset your password: {{.Link}}\n\nThe link is valid for 30 minutes. If you did not request a reset, ignore this email.\n")),
		html: htmltemplate.Must(htmltemplate.New("reset").Parse(
			`<h3>Reset Your SecureBank Password</h3>
<p>Hi <strong>{{.Username}}</strong>,</p>
<p>We received a request to reset your password. Click the button below:</p>
<a href="{{.Link}}" style="display:inline-block;padding:10px 15px;background-color:#007bff;color:white;text-decoration:none;border-radius:5px;">Reset Password</a>
<p style="margin-top:20px;font-size:small;">This link is valid for 30 minutes. If you did not request a reset, ignore this email.</p>`)),
	},
	MailWithdrawalOTP: {
		subject: "OTP verification for withdrawal",
		text: texttemplate.Must(texttemplate.New("otp").Parse(
			"Use this OTP to confirm your withdrawal of ${{.Amount}}: {{.Code}}\n\nThis code is valid for 5 minutes.\n")),
	},
}

type mailData struct {
	Username string
	Link     string
	Code     string
	Amount   string
}

// Notifier composes the outbound emails and hands them to the mail
// capability. A failed send is returned as *domain.ErrDelivery.
type Notifier struct {
	mailer  port.Mailer
	from    string
	baseURL string
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewNotifier creates a notifier. Links in mails are rooted at baseURL.
func NewNotifier(mailer port.Mailer, from, baseURL string, metrics *observability.Metrics, logger *zap.Logger) *Notifier {
	return &Notifier{
		mailer:  mailer,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// SendConfirmation mails the email confirmation link.
func (n *Notifier) SendConfirmation(ctx context.Context, username, email, token string) error {
	return n.send(ctx, MailConfirmEmail, email, mailData{
		Username: username,
		Link:     n.baseURL + "/v1/auth/confirm/" + token,
	})
}

// SendPasswordReset mails the password reset link.
func (n *Notifier) SendPasswordReset(ctx context.Context, username, email, token string) error {
	return n.send(ctx, MailResetPassword, email, mailData{
		Username: username,
		Link:     n.baseURL + "/v1/auth/password/reset/" + token,
	})
}

// SendWithdrawalCode mails the one-time code for a large withdrawal.
func (n *Notifier) SendWithdrawalCode(ctx context.Context, username, email, code string, amount decimal.Decimal) error {
	return n.send(ctx, MailWithdrawalOTP, email, mailData{
		Username: username,
		Code:     code,
		Amount:   amount.StringFixed(2),
	})
}

func (n *Notifier) send(ctx context.Context, kind, to string, data mailData) error {
	ctx, span := mailTracer.Start(ctx, "Notifier."+kind)
	defer span.End()

	msg, err := n.render(kind, to, data)
	if err == nil {
		err = n.mailer.Send(ctx, msg)
	}
	if err != nil {
		n.metrics.IncrMail(kind, observability.OutcomeFailure)
		n.logger.Error("mail delivery failed",
			zap.String("kind", kind),
			zap.String("username", data.Username),
			zap.Error(err),
		)
		return &domain.ErrDelivery{Kind: kind, Err: err}
	}

	n.metrics.IncrMail(kind, observability.OutcomeSuccess)
	n.logger.Debug("mail sent", zap.String("kind", kind), zap.String("id", msg.ID))
	return nil
}

func (n *Notifier) render(kind, to string, data mailData) (*domain.MailMessage, error) {
	tpl := mailTemplates[kind]

	var text bytes.Buffer
	if err := tpl.text.Execute(&text, data); err != nil {
		return nil, err
	}
	msg := &domain.MailMessage{
		ID:       uuid.NewString(),
		Kind:     kind,
		To:       to,
		From:     n.from,
		Subject:  tpl.subject,
		TextBody: text.String(),
	}
	if tpl.html != nil {
		var html bytes.Buffer
		if err := tpl.html.Execute(&html, data); err != nil {
			return nil, err
		}
		msg.HTMLBody = html.String()
	}
	return msg, nil
}
