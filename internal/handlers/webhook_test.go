package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kkkcccliang/wecom-chatgpt-app/internal/bot"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/session"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/wecom"
)

const (
	testToken  = "callback-token"
	testCorpID = "wx5f2a1b3c4d5e"
)

func testEncodingKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)[:43]
}

type fakeChat struct {
	reply string
}

func (f *fakeChat) ChatCompletion(ctx context.Context, messages []session.Message) (string, error) {
	return f.reply, nil
}

type fakeImage struct{}

func (f *fakeImage) ImageGeneration(ctx context.Context, prompt string) (string, error) {
	return "https://img.example.com/out.png", nil
}

type sentMessage struct {
	kind   string
	toUser string
	body   string
}

type fakeMessenger struct {
	ch chan sentMessage
}

func (f *fakeMessenger) SendText(ctx context.Context, toUser, text string) error {
	f.ch <- sentMessage{kind: "text", toUser: toUser, body: text}
	return nil
}

func (f *fakeMessenger) SendImageURL(ctx context.Context, toUser, assetURL string) error {
	f.ch <- sentMessage{kind: "image", toUser: toUser, body: assetURL}
	return nil
}

func newTestHandler(t *testing.T, chatReply string) (*Handler, *fakeMessenger) {
	t.Helper()
	svc, err := wecom.NewService(testToken, testEncodingKey(t), testCorpID, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	sessions := session.NewStore(20, 0)
	dispatcher := bot.NewDispatcher(sessions, &fakeChat{reply: chatReply}, &fakeImage{}, zerolog.Nop())
	messenger := &fakeMessenger{ch: make(chan sentMessage, 8)}
	h := NewHandler(svc, messenger, dispatcher, nil, 5*time.Second, zerolog.Nop())
	return h, messenger
}

func awaitMessage(t *testing.T, m *fakeMessenger) sentMessage {
	t.Helper()
	select {
	case msg := <-m.ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound message")
		return sentMessage{}
	}
}

// deliveryRequest builds a signed POST request the way the platform would.
func deliveryRequest(t *testing.T, corpID, innerXML string) *http.Request {
	t.Helper()
	c, err := wecom.NewCipher(testEncodingKey(t), corpID)
	if err != nil {
		t.Fatal(err)
	}
	ciphertext, err := c.Encrypt(innerXML)
	if err != nil {
		t.Fatal(err)
	}
	sig := wecom.Signature(testToken, "1409659589", "n1", ciphertext)

	body := fmt.Sprintf("<xml><Encrypt><![CDATA[%s]]></Encrypt></xml>", ciphertext)
	target := "/wecom?" + url.Values{
		"msg_signature": {sig},
		"timestamp":     {"1409659589"},
		"nonce":         {"n1"},
	}.Encode()
	return httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
}

func innerTextXML(content string) string {
	return fmt.Sprintf(`<xml><ToUserName><![CDATA[%s]]></ToUserName><FromUserName><![CDATA[ZhangSan]]></FromUserName><CreateTime>1348831860</CreateTime><MsgType><![CDATA[text]]></MsgType><Content><![CDATA[%s]]></Content><MsgId>42</MsgId><AgentID>1000002</AgentID></xml>`, testCorpID, content)
}

func TestVerifyMissingParams(t *testing.T) {
	h, _ := newTestHandler(t, "pong")

	req := httptest.NewRequest(http.MethodGet, "/wecom?timestamp=1&nonce=2", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != invalidRequestBody {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestVerifyHandshake(t *testing.T) {
	h, _ := newTestHandler(t, "pong")

	c, err := wecom.NewCipher(testEncodingKey(t), testCorpID)
	if err != nil {
		t.Fatal(err)
	}
	echostr, err := c.Encrypt("1616140317555161061")
	if err != nil {
		t.Fatal(err)
	}
	sig := wecom.Signature(testToken, "1409659589", "n1", echostr)

	target := "/wecom?" + url.Values{
		"msg_signature": {sig},
		"timestamp":     {"1409659589"},
		"nonce":         {"n1"},
		"echostr":       {echostr},
	}.Encode()
	rec := httptest.NewRecorder()
	h.Verify(rec, httptest.NewRequest(http.MethodGet, target, nil))

	if rec.Body.String() != "1616140317555161061" {
		t.Fatalf("expected decrypted echostr, got %q", rec.Body.String())
	}
}

func TestVerifyBadSignature(t *testing.T) {
	h, _ := newTestHandler(t, "pong")

	target := "/wecom?msg_signature=bad&timestamp=1&nonce=2&echostr=abc"
	rec := httptest.NewRecorder()
	h.Verify(rec, httptest.NewRequest(http.MethodGet, target, nil))

	// Still 200, but nothing internal leaks.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); body != "" {
		t.Fatalf("body should be empty, got %q", body)
	}
}

func TestReceiveMissingParams(t *testing.T) {
	h, _ := newTestHandler(t, "pong")

	req := httptest.NewRequest(http.MethodPost, "/wecom?timestamp=1&nonce=2", strings.NewReader("<xml/>"))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	if rec.Body.String() != invalidRequestBody {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestReceiveTextMessage(t *testing.T) {
	h, messenger := newTestHandler(t, "pong")

	rec := httptest.NewRecorder()
	h.Receive(rec, deliveryRequest(t, testCorpID, innerTextXML("How are you?")))

	// Prompt acknowledgment, reply delivered asynchronously.
	if rec.Body.String() != ackBody {
		t.Fatalf("expected immediate ack, got %q", rec.Body.String())
	}

	msg := awaitMessage(t, messenger)
	if msg.kind != "text" || msg.toUser != "ZhangSan" || msg.body != "pong" {
		t.Fatalf("unexpected outbound message: %+v", msg)
	}
}

func TestReceiveImageCommand(t *testing.T) {
	h, messenger := newTestHandler(t, "pong")

	rec := httptest.NewRecorder()
	h.Receive(rec, deliveryRequest(t, testCorpID, innerTextXML("/img a cat")))

	if rec.Body.String() != ackBody {
		t.Fatalf("expected immediate ack, got %q", rec.Body.String())
	}
	msg := awaitMessage(t, messenger)
	if msg.kind != "image" || msg.body != "https://img.example.com/out.png" {
		t.Fatalf("unexpected outbound message: %+v", msg)
	}
}

func TestReceiveBadSignature(t *testing.T) {
	h, messenger := newTestHandler(t, "pong")

	body := "<xml><Encrypt><![CDATA[@@@garbage@@@]]></Encrypt></xml>"
	target := "/wecom?msg_signature=bad&timestamp=1409659589&nonce=n1"
	rec := httptest.NewRecorder()
	h.Receive(rec, httptest.NewRequest(http.MethodPost, target, strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); body != "" {
		t.Fatalf("rejection must be generic, got %q", body)
	}

	// No processing happens for a rejected delivery.
	select {
	case msg := <-messenger.ch:
		t.Fatalf("unexpected outbound message: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReceiveNonTextMessage(t *testing.T) {
	h, messenger := newTestHandler(t, "pong")

	inner := fmt.Sprintf(`<xml><ToUserName><![CDATA[%s]]></ToUserName><FromUserName><![CDATA[ZhangSan]]></FromUserName><CreateTime>1348831860</CreateTime><MsgType><![CDATA[voice]]></MsgType><MsgId>43</MsgId><AgentID>1000002</AgentID></xml>`, testCorpID)
	rec := httptest.NewRecorder()
	h.Receive(rec, deliveryRequest(t, testCorpID, inner))

	if rec.Body.String() != ackBody {
		t.Fatalf("expected ack, got %q", rec.Body.String())
	}
	msg := awaitMessage(t, messenger)
	if msg.kind != "text" || msg.body != unsupportedTypeReply {
		t.Fatalf("expected unsupported-type notice, got %+v", msg)
	}
}
