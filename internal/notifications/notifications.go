// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package notifications delivers rendered messages to the per-user
// platforms. Delivery is best-effort: errors go back to the caller to be
// logged, never retried. The next monitoring sweep re-emits if the
// condition still holds.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/goccy/go-json"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

const messageTitle = "Shelfwatch"

// Sender fans one message out to a platform. The SES client is nil when
// email is not configured; email platforms then fail with a config error.
type Sender struct {
	http *http.Client
	ses  *ses.Client
	from string
}

// New builds the sender. Email is optional: without a from address the
// SES client is skipped entirely.
func New(ctx context.Context, cfg config.EmailConfig, timeout time.Duration) (*Sender, error) {
	sender := &Sender{
		http: &http.Client{Timeout: timeout},
		from: cfg.FromEmail,
	}
	if cfg.FromEmail == "" {
		return sender, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("notifications: load aws config: %w", err)
	}
	sender.ses = ses.NewFromConfig(awsCfg)
	return sender, nil
}

// Send delivers msg to one platform.
func (s *Sender) Send(ctx context.Context, platform *models.NotificationPlatform, msg string) error {
	err := s.dispatch(ctx, platform, msg)
	status := "ok"
	if err != nil {
		status = "error"
	}
	deliveries.WithLabelValues(string(platform.Kind), status).Inc()
	return err
}

func (s *Sender) dispatch(ctx context.Context, platform *models.NotificationPlatform, msg string) error {
	settings := platform.Settings
	switch platform.Kind {
	case models.PlatformApprise:
		return s.postJSON(ctx, strings.TrimSuffix(settings.BaseURL, "/")+"/notify/"+settings.Key, nil,
			map[string]any{"title": messageTitle, "body": msg})
	case models.PlatformDiscord:
		return s.postJSON(ctx, settings.WebhookURL, nil, map[string]any{"content": msg})
	case models.PlatformGotify:
		body := map[string]any{"title": messageTitle, "message": msg}
		if settings.Priority != nil {
			body["priority"] = *settings.Priority
		}
		return s.postJSON(ctx, strings.TrimSuffix(settings.BaseURL, "/")+"/message",
			map[string]string{"X-Gotify-Key": settings.Token}, body)
	case models.PlatformNtfy:
		return s.sendNtfy(ctx, settings, msg)
	case models.PlatformPushBullet:
		return s.postJSON(ctx, "https://api.pushbullet.com/v2/pushes",
			map[string]string{"Access-Token": settings.APIToken},
			map[string]any{"type": "note", "title": messageTitle, "body": msg})
	case models.PlatformPushOver:
		return s.postForm(ctx, "https://api.pushover.net/1/messages.json", map[string]string{
			"token":   settings.APIToken,
			"user":    settings.UserKey,
			"title":   messageTitle,
			"message": msg,
		})
	case models.PlatformPushSafer:
		return s.postForm(ctx, "https://www.pushsafer.com/api", map[string]string{
			"k": settings.APIToken,
			"t": messageTitle,
			"m": msg,
		})
	case models.PlatformEmail:
		return s.sendEmail(ctx, settings.ToEmail, msg)
	case models.PlatformTelegram:
		return s.postJSON(ctx,
			fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", settings.BotToken), nil,
			map[string]any{"chat_id": settings.ChatID, "text": msg})
	default:
		return fmt.Errorf("notifications: unknown platform kind %q", platform.Kind)
	}
}

// sendNtfy posts the message as the request body; metadata rides in
// headers, per the ntfy protocol.
func (s *Sender) sendNtfy(ctx context.Context, settings models.NotificationPlatformSettings, msg string) error {
	base := settings.BaseURL
	if base == "" {
		base = "https://ntfy.sh"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(base, "/")+"/"+settings.Topic, strings.NewReader(msg))
	if err != nil {
		return err
	}
	req.Header.Set("Title", messageTitle)
	if settings.Priority != nil {
		req.Header.Set("Priority", fmt.Sprint(*settings.Priority))
	}
	if settings.AuthHeader != "" {
		req.Header.Set("Authorization", settings.AuthHeader)
	}
	return s.do(req)
}

func (s *Sender) sendEmail(ctx context.Context, to, msg string) error {
	if s.ses == nil {
		return fmt.Errorf("notifications: email is not configured")
	}
	_, err := s.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.from),
		Destination: &sestypes.Destination{ToAddresses: []string{to}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(messageTitle)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(msg)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("notifications: send email: %w", err)
	}
	return nil
}

func (s *Sender) postJSON(ctx context.Context, rawURL string, headers map[string]string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return s.do(req)
}

func (s *Sender) postForm(ctx context.Context, rawURL string, fields map[string]string) error {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *Sender) do(req *http.Request) error {
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("notifications: %s returned %d: %s", req.URL.Host, resp.StatusCode, snippet)
	}
	return nil
}
