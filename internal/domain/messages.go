package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidPayload = errors.New("invalid payload")

type MessageType string

// client -> server
const (
	MsgJoin    MessageType = "join"
	MsgLeave   MessageType = "leave"
	MsgSignal  MessageType = "signal"
	MsgChat    MessageType = "chat"
	MsgEndCall MessageType = "end-call"
	MsgPing    MessageType = "ping"
)

// server -> client
const (
	EvtConnected           MessageType = "connected"
	EvtUserJoined          MessageType = "user-joined"
	EvtExistingUsers       MessageType = "existing-users"
	EvtParticipantsUpdated MessageType = "participants-updated"
	EvtReceiveSignal       MessageType = "receive-signal"
	EvtReceiveChat         MessageType = "receive-chat"
	EvtCallEnded           MessageType = "call-ended"
	EvtPong                MessageType = "pong"
	EvtError               MessageType = "error"
)

// ClientMessage is one frame sent by a client. Only the fields relevant to
// Type are set.
type ClientMessage struct {
	Type        MessageType     `json:"type"`
	RoomID      RoomID          `json:"roomId,omitempty"`
	DisplayName string          `json:"displayName,omitempty"`
	Role        Role            `json:"role,omitempty"`
	SenderID    ConnID          `json:"senderId,omitempty"`
	Signal      json.RawMessage `json:"signal,omitempty"`
	Sender      string          `json:"sender,omitempty"`
	ChatType    ChatType        `json:"chatType,omitempty"`
	Content     string          `json:"content,omitempty"`
}

// ServerEvent is one frame sent by the server.
type ServerEvent struct {
	Type         MessageType     `json:"type"`
	ConnectionID ConnID          `json:"connectionId,omitempty"`
	DisplayName  string          `json:"displayName,omitempty"`
	Users        []RosterEntry   `json:"users,omitempty"`
	SenderID     ConnID          `json:"senderId,omitempty"`
	Signal       json.RawMessage `json:"signal,omitempty"`
	Message      *ChatEnvelope   `json:"message,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// MarshalJSON always writes users on roster events, as [] when nobody is
// listed. Other events leave it out.
func (e ServerEvent) MarshalJSON() ([]byte, error) {
	type plain ServerEvent
	if e.Type != EvtExistingUsers && e.Type != EvtParticipantsUpdated {
		return json.Marshal(plain(e))
	}
	users := e.Users
	if users == nil {
		users = []RosterEntry{}
	}
	return json.Marshal(struct {
		plain
		Users []RosterEntry `json:"users"`
	}{plain(e), users})
}

func EventConnected(id ConnID) ServerEvent {
	return ServerEvent{Type: EvtConnected, ConnectionID: id}
}

func EventUserJoined(e RosterEntry) ServerEvent {
	return ServerEvent{Type: EvtUserJoined, ConnectionID: e.ConnectionID, DisplayName: e.DisplayName}
}

func EventExistingUsers(users []RosterEntry) ServerEvent {
	return ServerEvent{Type: EvtExistingUsers, Users: users}
}

func EventParticipantsUpdated(users []RosterEntry) ServerEvent {
	return ServerEvent{Type: EvtParticipantsUpdated, Users: users}
}

func EventReceiveSignal(sender ConnID, signal json.RawMessage) ServerEvent {
	return ServerEvent{Type: EvtReceiveSignal, SenderID: sender, Signal: signal}
}

func EventReceiveChat(msg ChatEnvelope) ServerEvent {
	return ServerEvent{Type: EvtReceiveChat, Message: &msg}
}

func EventCallEnded() ServerEvent { return ServerEvent{Type: EvtCallEnded} }

func EventPong() ServerEvent { return ServerEvent{Type: EvtPong} }

func EventError(msg string) ServerEvent { return ServerEvent{Type: EvtError, Error: msg} }

var validate = validator.New(validator.WithRequiredStructEnabled())

type JoinRequest struct {
	RoomID      RoomID `validate:"required,max=128"`
	DisplayName string `validate:"required,max=64"`
	Role        Role   `validate:"required,oneof=doctor patient"`
}

func (r JoinRequest) Validate() error {
	switch {
	case r.RoomID == "":
		return ErrRoomIDEmpty
	case r.DisplayName == "":
		return ErrDisplayNameEmpty
	case len(r.DisplayName) > MaxDisplayNameLen:
		return ErrDisplayNameTooLong
	}
	if _, err := ParseRole(string(r.Role)); err != nil {
		return err
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

type ChatRequest struct {
	RoomID  RoomID `validate:"required,max=128"`
	Message ChatEnvelope
}

type chatFields struct {
	Sender  string   `validate:"required,max=64"`
	Type    ChatType `validate:"required,oneof=text image file"`
	Content string   `validate:"required"`
}

func (r ChatRequest) Validate() error {
	if r.RoomID == "" {
		return ErrRoomIDEmpty
	}
	if _, err := ParseChatType(string(r.Message.Type)); err != nil {
		return err
	}
	f := chatFields{Sender: r.Message.Sender, Type: r.Message.Type, Content: r.Message.Content}
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Var(string(r.RoomID), "max=128"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func (m ClientMessage) JoinRequest() JoinRequest {
	return JoinRequest{RoomID: m.RoomID, DisplayName: m.DisplayName, Role: m.Role}
}

func (m ClientMessage) ChatRequest() ChatRequest {
	return ChatRequest{
		RoomID:  m.RoomID,
		Message: ChatEnvelope{Sender: m.Sender, Type: m.ChatType, Content: m.Content},
	}
}
