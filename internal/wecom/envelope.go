package wecom

import (
	"encoding/xml"
	"fmt"

	"github.com/kkkcccliang/wecom-chatgpt-app/internal/models"
)

// cdata wraps a string so that encoding/xml emits it as a CDATA section.
type cdata struct {
	Text string `xml:",cdata"`
}

// outerEnvelope is the outbound passive-reply envelope. Element names and
// their order are fixed by the platform schema.
type outerEnvelope struct {
	XMLName      xml.Name `xml:"xml"`
	Encrypt      cdata    `xml:"Encrypt"`
	MsgSignature cdata    `xml:"MsgSignature"`
	TimeStamp    string   `xml:"TimeStamp"`
	Nonce        cdata    `xml:"Nonce"`
}

// innerMessage mirrors the decrypted message XML. ToUserName carries the
// corp id on inbound messages.
type innerMessage struct {
	ToUserName   string `xml:"ToUserName"`
	FromUserName string `xml:"FromUserName"`
	CreateTime   int64  `xml:"CreateTime"`
	MsgType      string `xml:"MsgType"`
	Content      string `xml:"Content"`
	MsgID        string `xml:"MsgId"`
	AgentID      string `xml:"AgentID"`
}

// ParseOuterEnvelope extracts the Encrypt field from an inbound webhook
// body.
func ParseOuterEnvelope(body []byte) (string, error) {
	var env struct {
		Encrypt string `xml:"Encrypt"`
	}
	if err := xml.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Encrypt == "" {
		return "", fmt.Errorf("%w: missing Encrypt element", ErrMalformedEnvelope)
	}
	return env.Encrypt, nil
}

// BuildOuterEnvelope serializes a passive-reply envelope. The output is
// always well-formed XML.
func BuildOuterEnvelope(ciphertext, signature, timestamp, nonce string) (string, error) {
	out, err := xml.Marshal(outerEnvelope{
		Encrypt:      cdata{ciphertext},
		MsgSignature: cdata{signature},
		TimeStamp:    timestamp,
		Nonce:        cdata{nonce},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return string(out), nil
}

// ParseMessage decodes the inner message XML produced by Decrypt.
func ParseMessage(plaintext string) (models.Message, error) {
	var m innerMessage
	if err := xml.Unmarshal([]byte(plaintext), &m); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return models.Message{
		FromUser:   m.FromUserName,
		CorpID:     m.ToUserName,
		CreateTime: m.CreateTime,
		MsgType:    models.MessageType(m.MsgType),
		Content:    m.Content,
		MsgID:      m.MsgID,
		AgentID:    m.AgentID,
	}, nil
}
