package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
)

// NotificationAdapter delivers a rendered message in one channel's payload format.
type NotificationAdapter interface {
	Send(ctx context.Context, dest Destination, msg *Message) error
}

func getAdapter(channel string) NotificationAdapter {
	switch channel {
	case "wechat_work":
		return &wecomAdapter{}
	case "dingtalk":
		return &dingtalkAdapter{}
	case "feishu":
		return &feishuAdapter{}
	case "slack":
		return &slackAdapter{}
	case "discord":
		return &discordAdapter{}
	case "teams":
		return &teamsAdapter{}
	case "telegram":
		return &telegramAdapter{}
	default:
		return &genericAdapter{}
	}
}

var notificationHTTPClient = &http.Client{Timeout: 10 * time.Second}

func postJSONWithClient(ctx context.Context, client *http.Client, webhookURL string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	logger.Debug().Int("status", resp.StatusCode).Int("payload_bytes", len(body)).Msg("[Notification] webhook response")

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func dingTalkSign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// feishuSign keys the HMAC with the string-to-sign and an empty message.
func feishuSign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func signedDingTalkURL(webhook, secret string, now time.Time) string {
	if secret == "" {
		return webhook
	}
	timestamp := now.UnixMilli()
	sep := "&"
	if !strings.Contains(webhook, "?") {
		sep = "?"
	}
	return fmt.Sprintf("%s%stimestamp=%d&sign=%s", webhook, sep, timestamp, url.QueryEscape(dingTalkSign(timestamp, secret)))
}

func markdownText(msg *Message) string {
	return fmt.Sprintf("**%s**\n\n%s", msg.Title, msg.Text)
}

type wecomAdapter struct{}

func (a *wecomAdapter) Send(ctx context.Context, dest Destination, msg *Message) error {
	payload := map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"content": markdownText(msg),
		},
	}
	return postJSONWithClient(ctx, notificationHTTPClient, dest.Address, payload)
}

type dingtalkAdapter struct{}

func (a *dingtalkAdapter) Send(ctx context.Context, dest Destination, msg *Message) error {
	payload := map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": msg.Title,
			"text":  markdownText(msg),
		},
	}
	return postJSONWithClient(ctx, notificationHTTPClient, signedDingTalkURL(dest.Address, dest.Secret, time.Now()), payload)
}

type feishuAdapter struct{}

func (a *feishuAdapter) Send(ctx context.Context, dest Destination, msg *Message) error {
	payload := map[string]interface{}{
		"msg_type": "text",
		"content": map[string]string{
			"text": msg.Title + "\n\n" + msg.Text,
		},
	}
	if dest.Secret != "" {
		timestamp := time.Now().Unix()
		payload["timestamp"] = fmt.Sprintf("%d", timestamp)
		payload["sign"] = feishuSign(timestamp, dest.Secret)
	}
	return postJSONWithClient(ctx, notificationHTTPClient, dest.Address, payload)
}

type slackAdapter struct{}

// slack mrkdwn uses single asterisks for bold
func (a *slackAdapter) Send(ctx context.Context, dest Destination, msg *Message) error {
	body := strings.ReplaceAll(msg.Text, "**", "*")
	payload := map[string]interface{}{
		"text": msg.Title,
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": msg.Title,
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": body,
				},
			},
		},
	}
	return postJSONWithClient(ctx, notificationHTTPClient, dest.Address, payload)
}

type discordAdapter struct{}

func (a *discordAdapter) Send(ctx context.Context, dest Destination, msg *Message) error {
	return postJSONWithClient(ctx, notificationHTTPClient, dest.Address, map[string]interface{}{
		"content": markdownText(msg),
	})
}

type teamsAdapter struct{}

func buildAdaptiveCard(title, text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "message",
		"attachments": []map[string]interface{}{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content": map[string]interface{}{
					"type":    "AdaptiveCard",
					"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
					"version": "1.5",
					"body": []map[string]interface{}{
						{"type": "TextBlock", "text": title, "weight": "Bolder", "wrap": true},
						{"type": "TextBlock", "text": text, "wrap": true},
					},
				},
			},
		},
	}
}

func (a *teamsAdapter) Send(ctx context.Context, dest Destination, msg *Message) error {
	return postJSONWithClient(ctx, notificationHTTPClient, dest.Address, buildAdaptiveCard(msg.Title, msg.Text))
}

// telegramAdapter expects the bot sendMessage URL as address and chat_id in Extra.
type telegramAdapter struct{}

func (a *telegramAdapter) Send(ctx context.Context, dest Destination, msg *Message) error {
	if dest.Extra == "" {
		return fmt.Errorf("telegram chat_id is required in extra field")
	}
	return postJSONWithClient(ctx, notificationHTTPClient, dest.Address, map[string]interface{}{
		"chat_id":    dest.Extra,
		"text":       strings.ReplaceAll(markdownText(msg), "**", "*"),
		"parse_mode": "Markdown",
	})
}

type genericAdapter struct{}

func (a *genericAdapter) Send(ctx context.Context, dest Destination, msg *Message) error {
	return postJSONWithClient(ctx, notificationHTTPClient, dest.Address, map[string]interface{}{
		"template": msg.Template,
		"title":    msg.Title,
		"text":     msg.Text,
		"params":   msg.Params,
	})
}
