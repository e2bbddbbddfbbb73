package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kkkcccliang/wecom-chatgpt-app/internal/session"
)

type fakeChat struct {
	calls        int
	lastMessages []session.Message
	reply        string
	err          error
}

func (f *fakeChat) ChatCompletion(ctx context.Context, messages []session.Message) (string, error) {
	f.calls++
	f.lastMessages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeImage struct {
	calls      int
	lastPrompt string
	url        string
	err        error
}

func (f *fakeImage) ImageGeneration(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func newTestDispatcher(chat *fakeChat, image *fakeImage) (*Dispatcher, *session.Store) {
	sessions := session.NewStore(20, 0)
	return NewDispatcher(sessions, chat, image, zerolog.Nop()), sessions
}

func TestDispatchHelp(t *testing.T) {
	chat := &fakeChat{reply: "should not be called"}
	d, sessions := newTestDispatcher(chat, &fakeImage{})

	reply := d.Dispatch(context.Background(), "u1", "/help")
	if reply.Text != helpText {
		t.Fatalf("expected usage text, got %q", reply.Text)
	}
	if chat.calls != 0 {
		t.Fatal("/help must not call the chat collaborator")
	}
	if msgs := sessions.Messages("u1"); len(msgs) != 0 {
		t.Fatalf("/help must not mutate the session, got %d messages", len(msgs))
	}
}

func TestDispatchClear(t *testing.T) {
	chat := &fakeChat{reply: "pong"}
	d, sessions := newTestDispatcher(chat, &fakeImage{})
	sessions.SetPrompt("u1", "You are a pirate.")
	sessions.AppendUserTurn("u1", "hello")
	sessions.AppendAssistantTurn("u1", "ahoy")

	reply := d.Dispatch(context.Background(), "u1", "/clear")
	if reply.Text != clearedReply {
		t.Fatalf("expected confirmation, got %q", reply.Text)
	}

	// History is gone but the prompt leads the next request.
	d.Dispatch(context.Background(), "u1", "where is the treasure")
	if len(chat.lastMessages) != 2 {
		t.Fatalf("expected prompt + new turn, got %d messages", len(chat.lastMessages))
	}
	if chat.lastMessages[0].Role != session.RoleSystem || chat.lastMessages[0].Content != "You are a pirate." {
		t.Fatalf("prompt should survive /clear, got %+v", chat.lastMessages[0])
	}
}

func TestDispatchSetPrompt(t *testing.T) {
	chat := &fakeChat{reply: "Arr!"}
	d, _ := newTestDispatcher(chat, &fakeImage{})

	reply := d.Dispatch(context.Background(), "u1", "/prompt You are a pirate.")
	if reply.Text != promptSetReply {
		t.Fatalf("expected confirmation, got %q", reply.Text)
	}
	if chat.calls != 0 {
		t.Fatal("/prompt must not call the chat collaborator")
	}

	d.Dispatch(context.Background(), "u1", "Hello")
	if len(chat.lastMessages) == 0 {
		t.Fatal("expected a chat call")
	}
	lead := chat.lastMessages[0]
	if lead.Role != session.RoleSystem || lead.Content != "You are a pirate." {
		t.Fatalf("expected custom prompt as leading system turn, got %+v", lead)
	}
}

func TestDispatchBareCommandsArePlainChat(t *testing.T) {
	for _, text := range []string{"/prompt", "/img", "/image"} {
		t.Run(text, func(t *testing.T) {
			chat := &fakeChat{reply: "pong"}
			image := &fakeImage{url: "https://example.com/x.png"}
			d, _ := newTestDispatcher(chat, image)

			reply := d.Dispatch(context.Background(), "u1", text)
			if chat.calls != 1 {
				t.Fatalf("bare %q should be plain chat, chat calls = %d", text, chat.calls)
			}
			if image.calls != 0 {
				t.Fatalf("bare %q should not trigger image generation", text)
			}
			if reply.Text != "pong" {
				t.Fatalf("got %q", reply.Text)
			}
		})
	}
}

func TestDispatchImage(t *testing.T) {
	for _, text := range []string{"/img a cat in space", "/image a cat in space"} {
		t.Run(text, func(t *testing.T) {
			chat := &fakeChat{reply: "pong"}
			image := &fakeImage{url: "https://img.example.com/cat.png"}
			d, _ := newTestDispatcher(chat, image)

			reply := d.Dispatch(context.Background(), "u1", text)
			if image.calls != 1 {
				t.Fatalf("expected one image call, got %d", image.calls)
			}
			if image.lastPrompt != "a cat in space" {
				t.Fatalf("expected remainder as prompt, got %q", image.lastPrompt)
			}
			if reply.ImageURL != "https://img.example.com/cat.png" {
				t.Fatalf("expected image directive, got %+v", reply)
			}
			if chat.calls != 0 {
				t.Fatal("image command must not call the chat collaborator")
			}
		})
	}
}

func TestDispatchImageFailure(t *testing.T) {
	image := &fakeImage{err: errors.New("quota exceeded")}
	d, _ := newTestDispatcher(&fakeChat{}, image)

	reply := d.Dispatch(context.Background(), "u1", "/img a cat")
	if reply.Text != imageFailReply {
		t.Fatalf("expected failure text, got %q", reply.Text)
	}
	if reply.ImageURL != "" {
		t.Fatal("failed generation must not produce an image directive")
	}
}

func TestDispatchPlainChat(t *testing.T) {
	chat := &fakeChat{reply: "I am fine."}
	d, sessions := newTestDispatcher(chat, &fakeImage{})

	reply := d.Dispatch(context.Background(), "u1", "How are you?")
	if reply.Text != "I am fine." {
		t.Fatalf("got %q", reply.Text)
	}

	msgs := sessions.Messages("u1")
	if len(msgs) != 2 {
		t.Fatalf("expected user + assistant turns recorded, got %d", len(msgs))
	}
	if msgs[1].Role != session.RoleAssistant || msgs[1].Content != "I am fine." {
		t.Fatalf("assistant turn not recorded: %+v", msgs[1])
	}
}

func TestDispatchChatFailure(t *testing.T) {
	chat := &fakeChat{err: errors.New("backend down")}
	d, sessions := newTestDispatcher(chat, &fakeImage{})

	reply := d.Dispatch(context.Background(), "u1", "Hello")
	if reply.Text != chatFailReply {
		t.Fatalf("expected failure text, got %q", reply.Text)
	}

	msgs := sessions.Messages("u1")
	if len(msgs) != 1 || msgs[0].Role != session.RoleUser {
		t.Fatalf("failed completion must not record an assistant turn: %+v", msgs)
	}
}

func TestDispatchPreservesUnicode(t *testing.T) {
	chat := &fakeChat{reply: "回复"}
	d, _ := newTestDispatcher(chat, &fakeImage{})

	const text = "你好，世界 🌍 <&>"
	d.Dispatch(context.Background(), "u1", text)
	if len(chat.lastMessages) != 1 || chat.lastMessages[0].Content != text {
		t.Fatalf("content must pass through untouched, got %+v", chat.lastMessages)
	}
}
