package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"chat-credential-engine/internal/security"
)

// LinkSender delivers a login link token to the owner of email.
type LinkSender interface {
	SendLoginLink(ctx context.Context, email, token string) error
}

// LogSender records issued login links in the log. By default only the link fingerprint is
// logged; with revealURL the full URL is written at debug level for local development.
type LogSender struct {
	logger    *zap.Logger
	baseURL   string
	revealURL bool
}

// NewLogSender returns a LogSender that prefixes tokens with baseURL. revealURL must be false
// in production: the URL carries a live single-use credential.
func NewLogSender(logger *zap.Logger, baseURL string, revealURL bool) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger, baseURL: baseURL, revealURL: revealURL}
}

// LinkURL returns the URL delivered for token.
func (s *LogSender) LinkURL(token string) string {
	if s.baseURL == "" {
		return token
	}
	sep := "?token="
	if strings.Contains(s.baseURL, "?") {
		sep = "&token="
	}
	return s.baseURL + sep + token
}

func (s *LogSender) SendLoginLink(ctx context.Context, email, token string) error {
	s.logger.Info("login link issued", zap.String("link", security.Fingerprint(token)))
	if s.revealURL {
		s.logger.Debug("login link url", zap.String("email", email), zap.String("url", s.LinkURL(token)))
	}
	return nil
}
