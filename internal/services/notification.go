package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Nk110820004/freddie-backend-sub000/internal/metrics"
	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
)

// ErrNoContactChannel means the outlet has no destination on file.
var ErrNoContactChannel = errors.New("no contact channel on file")

const (
	TemplateManualReviewAlert = "manual_review_alert"
	TemplateReviewReminder    = "review_reminder"
	TemplateReviewEscalated   = "review_escalated"
	TemplateDailyDigest       = "daily_digest"
)

// Destination is where a notification is delivered.
type Destination struct {
	Channel string // slack, feishu, dingtalk, wechat_work, discord, teams, telegram, generic
	Address string
	Secret  string
	Extra   string
}

func DestinationForOutlet(outlet *models.Outlet) Destination {
	return Destination{
		Channel: outlet.ContactChannel,
		Address: strings.TrimSpace(outlet.ContactAddress),
		Secret:  outlet.ContactSecret,
		Extra:   outlet.ContactExtra,
	}
}

// Notifier sends a templated notification with ordered parameters.
type Notifier interface {
	Send(ctx context.Context, dest Destination, template string, params []string) error
}

type messageTemplate struct {
	Title  string
	Body   string
	Params int
}

var notificationTemplates = map[string]messageTemplate{
	TemplateManualReviewAlert: {
		Title:  "New review needs a reply: {{1}}",
		Body:   "**{{1}}** received a {{3}}-star review from {{2}}:\n\n> {{4}}\n\nSuggested reply:\n{{5}}",
		Params: 5,
	},
	TemplateReviewReminder: {
		Title:  "Reminder {{4}}/{{5}}: {{1}}",
		Body:   "Reminder {{4}} of {{5}}: the {{3}}-star review from {{2}} at **{{1}}** is still waiting for a reply.",
		Params: 5,
	},
	TemplateReviewEscalated: {
		Title:  "Review escalated: {{1}}",
		Body:   "The {{3}}-star review from {{2}} at **{{1}}** got no reply after {{4}} reminders and has been escalated.",
		Params: 4,
	},
	TemplateDailyDigest: {
		Title:  "Daily review summary: {{1}}",
		Body:   "**{{1}}** review summary for {{2}}\n\n- New reviews: {{3}}\n- Auto-replied: {{4}}\n- Awaiting a reply: {{5}}\n- Escalated: {{6}}",
		Params: 6,
	},
}

var placeholderRegex = regexp.MustCompile(`\{\{(\d+)\}\}`)

// renderTemplate replaces {{n}} with params[n-1].
func renderTemplate(tpl string, params []string) string {
	return placeholderRegex.ReplaceAllStringFunc(tpl, func(m string) string {
		n, _ := strconv.Atoi(m[2 : len(m)-2])
		if n < 1 || n > len(params) {
			return ""
		}
		return params[n-1]
	})
}

// Message is a rendered notification ready for an adapter.
type Message struct {
	Template string
	Title    string
	Text     string
	Params   []string
}

func RenderNotification(template string, params []string) (*Message, error) {
	tpl, ok := notificationTemplates[template]
	if !ok {
		return nil, fmt.Errorf("unknown notification template %q", template)
	}
	if len(params) < tpl.Params {
		return nil, fmt.Errorf("template %q needs %d params, got %d", template, tpl.Params, len(params))
	}
	return &Message{
		Template: template,
		Title:    renderTemplate(tpl.Title, params),
		Text:     renderTemplate(tpl.Body, params),
		Params:   params,
	}, nil
}

type NotificationService struct {
	adapterFor func(channel string) NotificationAdapter
}

func NewNotificationService() *NotificationService {
	return &NotificationService{adapterFor: getAdapter}
}

func (s *NotificationService) Send(ctx context.Context, dest Destination, template string, params []string) error {
	msg, err := RenderNotification(template, params)
	if err != nil {
		return err
	}
	if dest.Address == "" {
		metrics.Notifications.WithLabelValues(template, "no_channel").Inc()
		return ErrNoContactChannel
	}

	if err := s.adapterFor(dest.Channel).Send(ctx, dest, msg); err != nil {
		metrics.Notifications.WithLabelValues(template, "failure").Inc()
		logger.Warn().Err(err).Str("channel", dest.Channel).Str("template", template).Msg("[Notification] send failed")
		return fmt.Errorf("send %s via %s: %w", template, channelName(dest.Channel), err)
	}

	metrics.Notifications.WithLabelValues(template, "success").Inc()
	logger.Debug().Str("channel", dest.Channel).Str("template", template).Msg("[Notification] sent")
	return nil
}

func channelName(ch string) string {
	if ch == "" {
		return "generic"
	}
	return ch
}
