package domain

import "errors"

var ErrInvalidChatType = errors.New("invalid chat type")

type ChatType string

const (
	ChatText  ChatType = "text"
	ChatImage ChatType = "image"
	ChatFile  ChatType = "file"
)

func ParseChatType(s string) (ChatType, error) {
	switch ChatType(s) {
	case ChatText, ChatImage, ChatFile:
		return ChatType(s), nil
	}
	return "", ErrInvalidChatType
}

// ChatEnvelope is relayed untouched. Content is opaque to the server; it is
// encrypted and decrypted by the clients.
type ChatEnvelope struct {
	Sender  string   `json:"sender"`
	Type    ChatType `json:"type"`
	Content string   `json:"content"`
}
