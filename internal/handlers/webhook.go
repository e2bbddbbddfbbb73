package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/kkkcccliang/wecom-chatgpt-app/internal/metrics"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/models"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/wecom"
)

const (
	invalidRequestBody = "Invalid request"
	ackBody            = "ok"

	unsupportedTypeReply = "暂时只支持文本消息"
)

// Verify handles the endpoint verification handshake. The platform calls
// it once when the webhook URL is configured and expects the decrypted
// echostr back. Failures still answer 200 with a generic body; anything
// else is treated as a configuration error by the platform.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sig := q.Get("msg_signature")
	timestamp := q.Get("timestamp")
	nonce := q.Get("nonce")
	echostr := q.Get("echostr")

	if sig == "" || timestamp == "" || nonce == "" || echostr == "" {
		h.logger.Warn().Msg("verification handshake missing parameters")
		io.WriteString(w, invalidRequestBody)
		return
	}

	plain, err := h.wecom.VerifyURL(sig, timestamp, nonce, echostr)
	if err != nil {
		h.logger.Error().Err(err).Msg("url verification failed")
		w.WriteHeader(http.StatusOK)
		return
	}
	io.WriteString(w, plain)
}

// Receive handles message delivery. The envelope is authenticated and
// decrypted synchronously, then acknowledged immediately; the reply is
// produced and pushed asynchronously so the platform does not redeliver
// while the chat backend is thinking.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sig := q.Get("msg_signature")
	timestamp := q.Get("timestamp")
	nonce := q.Get("nonce")

	if sig == "" || timestamp == "" || nonce == "" {
		h.logger.Warn().Msg("message delivery missing parameters")
		io.WriteString(w, invalidRequestBody)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read delivery body")
		io.WriteString(w, invalidRequestBody)
		return
	}

	if h.replay.Seen(r.Context(), timestamp, nonce) {
		metrics.ReplaysBlocked.Inc()
		h.logger.Warn().Str("nonce", nonce).Msg("duplicate delivery dropped")
		io.WriteString(w, ackBody)
		return
	}

	msg, err := h.wecom.DecryptMessage(body, sig, timestamp, nonce)
	if err != nil {
		// Authentication and decryption detail stays in the logs; the
		// platform only ever sees a generic response.
		h.logger.Error().Err(err).Msg("message decryption failed")
		w.WriteHeader(http.StatusOK)
		return
	}

	h.replay.Mark(r.Context(), timestamp, nonce, replayTTL)
	metrics.MessagesReceived.WithLabelValues(string(msg.MsgType)).Inc()
	h.logger.Debug().
		Str("from_user", msg.FromUser).
		Str("msg_type", string(msg.MsgType)).
		Str("msg_id", msg.MsgID).
		Msg("message received")

	go h.process(msg)
	io.WriteString(w, ackBody)
}

// process produces and delivers the reply for a decrypted message on its
// own timeout, detached from the already-acknowledged webhook request.
func (h *Handler) process(msg models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), h.processTimeout)
	defer cancel()

	if msg.MsgType != models.MessageTypeText {
		if err := h.sender.SendText(ctx, msg.FromUser, unsupportedTypeReply); err != nil {
			h.logger.Error().Err(err).Str("to_user", msg.FromUser).Msg("notice delivery failed")
		}
		return
	}

	reply := h.dispatcher.Dispatch(ctx, msg.FromUser, msg.Content)
	switch {
	case reply.ImageURL != "":
		if err := h.sender.SendImageURL(ctx, msg.FromUser, reply.ImageURL); err != nil {
			h.logger.Error().Err(err).Str("to_user", msg.FromUser).Msg("image delivery failed")
		}
	case reply.Text != "":
		if err := h.sender.SendText(ctx, msg.FromUser, reply.Text); err != nil {
			var partial *wecom.PartialSendError
			if errors.As(err, &partial) {
				h.logger.Error().Err(err).
					Str("to_user", msg.FromUser).
					Int("sent", partial.Sent).
					Int("total", partial.Total).
					Msg("reply partially delivered")
				return
			}
			h.logger.Error().Err(err).Str("to_user", msg.FromUser).Msg("reply delivery failed")
		}
	}
}
