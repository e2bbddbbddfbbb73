package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kkkcccliang/wecom-chatgpt-app/internal/bot"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/store"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/wecom"
)

// replayTTL bounds how long a processed (timestamp, nonce) pair is
// remembered. The platform retries within seconds, not hours.
const replayTTL = 10 * time.Minute

// Messenger is the outbound delivery surface the webhook needs.
type Messenger interface {
	SendText(ctx context.Context, toUser, text string) error
	SendImageURL(ctx context.Context, toUser, assetURL string) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	wecom          *wecom.Service
	sender         Messenger
	dispatcher     *bot.Dispatcher
	replay         *store.ReplayGuard // nil disables the replay check
	logger         zerolog.Logger
	processTimeout time.Duration
}

// NewHandler creates a Handler with the given collaborators.
func NewHandler(svc *wecom.Service, sender Messenger, dispatcher *bot.Dispatcher, replay *store.ReplayGuard, processTimeout time.Duration, logger zerolog.Logger) *Handler {
	if processTimeout <= 0 {
		processTimeout = 60 * time.Second
	}
	return &Handler{
		wecom:          svc,
		sender:         sender,
		dispatcher:     dispatcher,
		replay:         replay,
		logger:         logger.With().Str("component", "handlers").Logger(),
		processTimeout: processTimeout,
	}
}
