// internal/services/email_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

// EmailService sends transactional email through the Resend API.
type EmailService struct {
	client *resty.Client
	config *config.Config
	tmpl   *template.Template
}

type EmailMessage struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

func NewEmailService(cfg *config.Config) *EmailService {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Email.ResendURL, "/")).
		SetTimeout(10*time.Second).
		SetAuthToken(cfg.Email.ResendAPIKey).
		SetHeader("Content-Type", "application/json")

	return &EmailService{
		client: client,
		config: cfg,
		tmpl:   template.Must(template.New("email").Parse(emailTemplates)),
	}
}

// Send delivers msg and returns the provider message id. With no API key the
// message is only logged.
func (s *EmailService) Send(ctx context.Context, msg EmailMessage) (string, error) {
	if len(msg.To) == 0 {
		return "", fmt.Errorf("%w: email has no recipients", utils.ErrInvalidInput)
	}

	if s.config.Email.ResendAPIKey == "" {
		logrus.WithFields(logrus.Fields{"to": msg.To, "subject": msg.Subject}).Info("Email not configured, skipping send")
		return "", nil
	}

	var out resendResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(resendRequest{
			From:    fmt.Sprintf("%s <%s>", s.config.Email.FromName, s.config.Email.FromEmail),
			To:      msg.To,
			Subject: msg.Subject,
			HTML:    msg.HTML,
			ReplyTo: msg.ReplyTo,
		}).
		SetResult(&out).
		Post("/emails")
	if err != nil {
		return "", fmt.Errorf("%w: email request failed: %v", utils.ErrUpstream, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: email provider returned HTTP %d: %s", utils.ErrUpstream, resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}

	return out.ID, nil
}

// sendTemplate renders a named template and sends it in the background.
func (s *EmailService) sendTemplate(to, subject, name string, data map[string]interface{}) {
	if to == "" {
		return
	}
	data["PlatformName"] = s.config.Email.FromName
	data["BaseURL"] = s.config.Frontend.BaseURL

	body, err := s.render(name, data)
	if err != nil {
		logrus.WithError(err).WithField("template", name).Error("Failed to render email template")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := s.Send(ctx, EmailMessage{To: []string{to}, Subject: subject, HTML: body}); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"to": to, "template": name}).Error("Failed to send email")
		}
	}()
}

func (s *EmailService) render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *EmailService) SendWelcomeEmail(user *models.User, verificationToken string) {
	s.sendTemplate(user.Email, "Welcome to "+s.config.Email.FromName, "welcome", map[string]interface{}{
		"Name":            displayName(user),
		"VerificationURL": fmt.Sprintf("%s/verify-email?token=%s", s.config.Frontend.BaseURL, verificationToken),
	})
}

func (s *EmailService) SendPasswordResetEmail(user *models.User, resetToken string) {
	s.sendTemplate(user.Email, "Password Reset Request", "password_reset", map[string]interface{}{
		"Name":      displayName(user),
		"ResetURL":  fmt.Sprintf("%s/reset-password?token=%s", s.config.Frontend.BaseURL, resetToken),
		"ExpiresIn": "1 hour",
	})
}

func (s *EmailService) SendSubmissionReceived(submission *models.Submission, market *models.Market, organizerEmail string) {
	data := map[string]interface{}{
		"BusinessName": submission.BusinessName,
		"MarketName":   market.Name,
	}
	s.sendTemplate(submission.Email, "Application received - "+market.Name, "submission_received", data)

	s.sendTemplate(organizerEmail, "New vendor application - "+submission.BusinessName, "submission_new", map[string]interface{}{
		"BusinessName":  submission.BusinessName,
		"MarketName":    market.Name,
		"SubmissionURL": fmt.Sprintf("%s/organizer/markets/%s/vendors/%s", s.config.Frontend.BaseURL, market.ID, submission.ID),
	})
}

func (s *EmailService) SendSubmissionStatusChanged(submission *models.Submission, market *models.Market) {
	s.sendTemplate(submission.Email, "Your application to "+market.Name+" was "+string(submission.Status), "submission_status", map[string]interface{}{
		"BusinessName": submission.BusinessName,
		"MarketName":   market.Name,
		"Status":       string(submission.Status),
		"Notes":        submission.ReviewNotes,
	})
}

func (s *EmailService) SendOrderReceipt(order *models.Order, shopperEmail string) {
	s.sendTemplate(shopperEmail, "Your order "+order.OrderNumber, "order_receipt", map[string]interface{}{
		"OrderNumber": order.OrderNumber,
		"Items":       order.Items,
		"Subtotal":    fmt.Sprintf("%.2f", order.Subtotal),
		"Fee":         fmt.Sprintf("%.2f", order.PlatformFee),
		"Total":       fmt.Sprintf("%.2f", order.Total),
		"OrderURL":    fmt.Sprintf("%s/orders/%s", s.config.Frontend.BaseURL, order.ID),
	})
}

func (s *EmailService) SendVendorSale(order *models.Order, submission *models.Submission, items []models.OrderItem) {
	var total float64
	for _, item := range items {
		total += item.LineTotal
	}
	s.sendTemplate(submission.Email, "New order "+order.OrderNumber, "vendor_sale", map[string]interface{}{
		"BusinessName": submission.BusinessName,
		"OrderNumber":  order.OrderNumber,
		"Items":        items,
		"Total":        fmt.Sprintf("%.2f", utils.RoundMoney(total)),
	})
}

func (s *EmailService) SendRefundNotice(order *models.Order, shopperEmail string) {
	s.sendTemplate(shopperEmail, "Refund for order "+order.OrderNumber, "refund", map[string]interface{}{
		"OrderNumber": order.OrderNumber,
		"Total":       fmt.Sprintf("%.2f", order.Total),
	})
}

func (s *EmailService) SendInvite(invite *models.Invite) {
	s.sendTemplate(invite.Email, "You're invited to "+s.config.Email.FromName, "invite", map[string]interface{}{
		"Role":      string(invite.Role),
		"InviteURL": invite.URL,
		"ExpiresAt": invite.ExpiresAt.Format("January 2, 2006"),
	})
}

func (s *EmailService) SendNewMessageNotice(to string, senderName string, conversation *models.Conversation, preview string) {
	if len(preview) > 140 {
		preview = preview[:140] + "..."
	}
	s.sendTemplate(to, "New message from "+senderName, "new_message", map[string]interface{}{
		"SenderName": senderName,
		"Preview":    preview,
		"ChatURL":    fmt.Sprintf("%s/messages/%s", s.config.Frontend.BaseURL, conversation.ID),
	})
}

func displayName(user *models.User) string {
	if user.FullName != "" {
		return user.FullName
	}
	return user.Email
}

const emailTemplates = `
{{define "footer"}}<p>Best regards,<br>{{.PlatformName}} Team</p></body></html>{{end}}

{{define "welcome"}}<!DOCTYPE html><html><body>
<h2>Welcome {{.Name}}!</h2>
<p>Thanks for joining {{.PlatformName}}. Please verify your email address:</p>
<a href="{{.VerificationURL}}">Verify Email</a>
{{template "footer" .}}{{end}}

{{define "password_reset"}}<!DOCTYPE html><html><body>
<h2>Password reset</h2>
<p>Hello {{.Name}}, use the link below to choose a new password. It expires in {{.ExpiresIn}}.</p>
<a href="{{.ResetURL}}">Reset Password</a>
{{template "footer" .}}{{end}}

{{define "submission_received"}}<!DOCTYPE html><html><body>
<h2>Application received</h2>
<p>{{.BusinessName}}, your application to sell at {{.MarketName}} is pending review.</p>
{{template "footer" .}}{{end}}

{{define "submission_new"}}<!DOCTYPE html><html><body>
<h2>New vendor application</h2>
<p>{{.BusinessName}} applied to {{.MarketName}}.</p>
<a href="{{.SubmissionURL}}">Review application</a>
{{template "footer" .}}{{end}}

{{define "submission_status"}}<!DOCTYPE html><html><body>
<h2>Application {{.Status}}</h2>
<p>{{.BusinessName}}, your application to {{.MarketName}} was {{.Status}}.</p>
{{if .Notes}}<p>Notes from the organizer: {{.Notes}}</p>{{end}}
{{template "footer" .}}{{end}}

{{define "order_receipt"}}<!DOCTYPE html><html><body>
<h2>Thanks for your order!</h2>
<p>Order {{.OrderNumber}}</p>
<ul>{{range .Items}}<li>{{.Quantity}} x {{.ProductName}} - ${{printf "%.2f" .LineTotal}}</li>{{end}}</ul>
<p>Subtotal: ${{.Subtotal}}<br>Service fee: ${{.Fee}}<br><strong>Total: ${{.Total}}</strong></p>
<a href="{{.OrderURL}}">View order</a>
{{template "footer" .}}{{end}}

{{define "vendor_sale"}}<!DOCTYPE html><html><body>
<h2>New order {{.OrderNumber}}</h2>
<p>{{.BusinessName}}, you have a new order:</p>
<ul>{{range .Items}}<li>{{.Quantity}} x {{.ProductName}}</li>{{end}}</ul>
<p>Total: ${{.Total}}</p>
{{template "footer" .}}{{end}}

{{define "refund"}}<!DOCTYPE html><html><body>
<h2>Refund processed</h2>
<p>Your order {{.OrderNumber}} has been refunded (${{.Total}}).</p>
{{template "footer" .}}{{end}}

{{define "invite"}}<!DOCTYPE html><html><body>
<h2>You're invited</h2>
<p>You have been invited to join {{.PlatformName}} as a {{.Role}}.</p>
<a href="{{.InviteURL}}">Accept invitation</a>
<p>This link expires on {{.ExpiresAt}}.</p>
{{template "footer" .}}{{end}}

{{define "new_message"}}<!DOCTYPE html><html><body>
<h2>New message from {{.SenderName}}</h2>
<blockquote>{{.Preview}}</blockquote>
<a href="{{.ChatURL}}">Reply</a>
{{template "footer" .}}{{end}}
`
