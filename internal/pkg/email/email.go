package email

import (
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/qs3c/insight_go_server/config"
	"github.com/qs3c/insight_go_server/internal/model"
)

// SummaryLimit 汇总邮件最多展示的信号数
const SummaryLimit = 3

type Service struct {
	cfg *config.EmailConfig
}

func NewService(cfg *config.EmailConfig) *Service {
	return &Service{cfg: cfg}
}

// SendAlertSummary 发送洞察变化汇总邮件（最多前 3 条信号）
func (s *Service) SendAlertSummary(to string, signals []model.ChangeSignal) error {
	subject := fmt.Sprintf("%d new insight alerts for your feedback", len(signals))
	if len(signals) == 1 {
		subject = "1 new insight alert for your feedback"
	}

	return s.sendHTML(to, subject, buildAlertSummary(signals, s.cfg.AppURL))
}

func buildAlertSummary(signals []model.ChangeSignal, appURL string) string {
	top := signals
	if len(top) > SummaryLimit {
		top = top[:SummaryLimit]
	}

	var items strings.Builder
	for _, sig := range top {
		items.WriteString(fmt.Sprintf(
			`<li style="margin-bottom: 10px;"><strong>%s</strong><br>%s</li>`,
			html.EscapeString(alertLabel(sig.Type)), html.EscapeString(sig.Message)))
	}

	more := ""
	if rest := len(signals) - len(top); rest > 0 {
		more = fmt.Sprintf(`<p>…and %d more in your dashboard.</p>`, rest)
	}

	link := ""
	if appURL != "" {
		link = fmt.Sprintf(`<div style="text-align: center; margin: 30px 0;">
            <a href="%s/alerts" style="background-color: #2563eb; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">View alerts</a>
        </div>`, html.EscapeString(strings.TrimRight(appURL, "/")))
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">Your latest analysis found changes</h2>
        <ul>%s</ul>
        %s
        %s
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">You receive at most one of these emails per hour.</p>
    </div>
</body>
</html>
`, items.String(), more, link)
}

func alertLabel(alertType string) string {
	switch alertType {
	case model.AlertNewOpportunity:
		return "New opportunity"
	case model.AlertDemandSurge:
		return "Demand surge"
	case model.AlertPriorityEscalation:
		return "Priority escalation"
	case model.AlertMentionsSpike:
		return "Mentions spike"
	default:
		return alertType
	}
}

// sendHTML 发送 HTML 邮件
func (s *Service) sendHTML(to, subject, body string) error {
	if s.cfg.SMTPHost == "" {
		return fmt.Errorf("smtp not configured")
	}

	headers := make(map[string]string)
	headers["From"] = s.cfg.From
	headers["To"] = to
	headers["Subject"] = subject
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=UTF-8"

	var msg strings.Builder
	for k, v := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String()))
}
