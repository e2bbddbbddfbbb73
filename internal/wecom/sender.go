package wecom

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/kkkcccliang/wecom-chatgpt-app/internal/metrics"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/models"
)

// Pusher is the outbound transport surface the sender needs.
type Pusher interface {
	Send(ctx context.Context, token string, payload any) error
	UploadMedia(ctx context.Context, token, filename string, data []byte) (string, error)
	Download(ctx context.Context, assetURL string) ([]byte, error)
}

// PartialSendError reports a failure partway through a chunked delivery:
// the user has already received Sent of Total chunks.
type PartialSendError struct {
	Sent  int
	Total int
	Err   error
}

func (e *PartialSendError) Error() string {
	return fmt.Sprintf("send failed after %d of %d chunks: %v", e.Sent, e.Total, e.Err)
}

func (e *PartialSendError) Unwrap() error { return e.Err }

// Sender delivers replies through the platform push API, chunking long
// texts to fit the provider limit.
type Sender struct {
	push     Pusher
	tokens   *TokenCache
	agentID  string
	maxChars int
	logger   zerolog.Logger
}

// NewSender creates a Sender. maxChars falls back to 1000, below the
// platform's 2048-byte content cap even for wide runes.
func NewSender(push Pusher, tokens *TokenCache, agentID string, maxChars int, logger zerolog.Logger) *Sender {
	if maxChars <= 0 {
		maxChars = 1000
	}
	return &Sender{
		push:     push,
		tokens:   tokens,
		agentID:  agentID,
		maxChars: maxChars,
		logger:   logger.With().Str("component", "sender").Logger(),
	}
}

// Chunk splits text into ordered segments of at most max runes.
func Chunk(text string, max int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+max-1)/max)
	for start := 0; start < len(runes); start += max {
		end := start + max
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// SendText chunks a reply and delivers every chunk in order, reusing one
// fetched token across the batch. A failure mid-batch stops delivery and
// is reported as a PartialSendError so the caller knows the user saw a
// partial reply.
func (s *Sender) SendText(ctx context.Context, toUser, text string) error {
	chunks := Chunk(text, s.maxChars)
	if len(chunks) == 0 {
		return nil
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return err
	}

	batch := ulid.Make().String()
	retried := false
	for i := 0; i < len(chunks); i++ {
		payload := models.NewTextPush(toUser, s.agentID, chunks[i])
		err := s.push.Send(ctx, token, payload)
		if errors.Is(err, ErrTokenExpired) && !retried {
			// One bounded retry for the whole batch with a fresh token.
			retried = true
			s.tokens.Invalidate()
			if token, err = s.tokens.Token(ctx); err != nil {
				return s.batchErr(i, len(chunks), err)
			}
			i--
			continue
		}
		if err != nil {
			return s.batchErr(i, len(chunks), err)
		}
		metrics.ChunksSent.Inc()
	}

	metrics.RepliesSent.WithLabelValues("text").Inc()
	s.logger.Debug().Str("batch", batch).Str("to_user", toUser).Int("chunks", len(chunks)).Msg("reply delivered")
	return nil
}

// SendImageURL downloads a generated asset, uploads it as temporary media
// and pushes an image message referencing the resulting media id.
func (s *Sender) SendImageURL(ctx context.Context, toUser, assetURL string) error {
	data, err := s.push.Download(ctx, assetURL)
	if err != nil {
		return err
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return err
	}

	mediaID, err := s.push.UploadMedia(ctx, token, imageFilename(assetURL), data)
	if err != nil {
		return err
	}
	if err := s.push.Send(ctx, token, models.NewImagePush(toUser, s.agentID, mediaID)); err != nil {
		return err
	}

	metrics.RepliesSent.WithLabelValues("image").Inc()
	s.logger.Debug().Str("to_user", toUser).Str("media_id", mediaID).Msg("image delivered")
	return nil
}

func (s *Sender) batchErr(sent, total int, err error) error {
	if sent > 0 {
		return &PartialSendError{Sent: sent, Total: total, Err: err}
	}
	return err
}

func imageFilename(assetURL string) string {
	name := path.Base(assetURL)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		return "image.png"
	}
	return name
}
