package models

// MessageType identifies the type of an inbound WeCom message.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeVideo    MessageType = "video"
	MessageTypeLocation MessageType = "location"
	MessageTypeLink     MessageType = "link"
)

// Message is a decrypted inbound application message. It is only produced
// after both the envelope signature and the embedded corp id check pass.
type Message struct {
	FromUser   string
	CorpID     string
	CreateTime int64
	MsgType    MessageType
	Content    string
	MsgID      string
	AgentID    string
}
