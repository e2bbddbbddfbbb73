package models

// TextPush is the JSON body for a text message push.
// Field names are part of the WeCom send API contract.
type TextPush struct {
	ToUser  string      `json:"touser"`
	MsgType string      `json:"msgtype"`
	AgentID string      `json:"agentid"`
	Text    TextContent `json:"text"`
}

// TextContent carries the text body of a push message.
type TextContent struct {
	Content string `json:"content"`
}

// ImagePush is the JSON body for an image message push.
type ImagePush struct {
	ToUser  string       `json:"touser"`
	MsgType string       `json:"msgtype"`
	AgentID string       `json:"agentid"`
	Image   ImageContent `json:"image"`
}

// ImageContent references a previously uploaded media asset.
type ImageContent struct {
	MediaID string `json:"media_id"`
}

// NewTextPush builds a text push payload for a user.
func NewTextPush(toUser, agentID, content string) TextPush {
	return TextPush{
		ToUser:  toUser,
		MsgType: "text",
		AgentID: agentID,
		Text:    TextContent{Content: content},
	}
}

// NewImagePush builds an image push payload for a user.
func NewImagePush(toUser, agentID, mediaID string) ImagePush {
	return ImagePush{
		ToUser:  toUser,
		MsgType: "image",
		AgentID: agentID,
		Image:   ImageContent{MediaID: mediaID},
	}
}
