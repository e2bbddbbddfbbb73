// Package bot classifies decoded message text into commands or plain
// chat and produces the reply.
package bot

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kkkcccliang/wecom-chatgpt-app/internal/metrics"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/session"
)

// ChatClient produces a completion for an ordered message list.
type ChatClient interface {
	ChatCompletion(ctx context.Context, messages []session.Message) (string, error)
}

// ImageClient generates an image and returns its URL.
type ImageClient interface {
	ImageGeneration(ctx context.Context, prompt string) (string, error)
}

// Reply is the dispatch result: either plain text to push, or an image
// URL for the sender to upload and deliver.
type Reply struct {
	Text     string
	ImageURL string
}

const helpText = `支持的命令:
/help 显示帮助
/clear 清空当前会话
/prompt <内容> 设置系统提示词
/img <描述> 生成图片
其他内容将作为对话发送给 AI`

const (
	clearedReply   = "会话已清空"
	promptSetReply = "提示词已设置"
	chatFailReply  = "请求出错"
	imageFailReply = "Generate image failed"
)

// Dispatcher routes an incoming message to the correct action. It is
// stateless between invocations apart from the session store it mutates.
type Dispatcher struct {
	sessions *session.Store
	chat     ChatClient
	images   ImageClient
	logger   zerolog.Logger
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(sessions *session.Store, chat ChatClient, images ImageClient, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		chat:     chat,
		images:   images,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch classifies text in priority order, first match wins. Prefix
// commands require the literal command plus one separating space; a bare
// "/prompt" or "/img" is plain chat.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, text string) Reply {
	switch {
	case text == "/help":
		metrics.CommandsDispatched.WithLabelValues("help").Inc()
		return Reply{Text: helpText}

	case text == "/clear":
		metrics.CommandsDispatched.WithLabelValues("clear").Inc()
		d.sessions.ClearHistory(userID)
		return Reply{Text: clearedReply}

	case strings.HasPrefix(text, "/img ") || strings.HasPrefix(text, "/image "):
		metrics.CommandsDispatched.WithLabelValues("image").Inc()
		_, prompt, _ := strings.Cut(text, " ")
		return d.generateImage(ctx, userID, strings.TrimSpace(prompt))

	case strings.HasPrefix(text, "/prompt "):
		metrics.CommandsDispatched.WithLabelValues("prompt").Inc()
		d.sessions.SetPrompt(userID, strings.TrimSpace(strings.TrimPrefix(text, "/prompt ")))
		return Reply{Text: promptSetReply}

	default:
		metrics.CommandsDispatched.WithLabelValues("chat").Inc()
		return d.complete(ctx, userID, text)
	}
}

func (d *Dispatcher) complete(ctx context.Context, userID, text string) Reply {
	messages := d.sessions.AppendUserTurn(userID, text)
	reply, err := d.chat.ChatCompletion(ctx, messages)
	if err != nil {
		d.logger.Error().Err(err).Str("user", userID).Msg("chat completion failed")
		return Reply{Text: chatFailReply}
	}
	d.sessions.AppendAssistantTurn(userID, reply)
	return Reply{Text: reply}
}

func (d *Dispatcher) generateImage(ctx context.Context, userID, prompt string) Reply {
	url, err := d.images.ImageGeneration(ctx, prompt)
	if err != nil {
		d.logger.Error().Err(err).Str("user", userID).Msg("image generation failed")
		return Reply{Text: imageFailReply}
	}
	return Reply{ImageURL: url}
}
