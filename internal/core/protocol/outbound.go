package protocol

import (
	"encoding/json"
	"time"

	"roomrelay/internal/core/domain"
	apperrors "roomrelay/pkg/errors"
	"roomrelay/pkg/utils"
)

type WelcomeFrame struct {
	Type            Type          `json:"type"`
	User            domain.UserID `json:"user"`
	TS              int64         `json:"ts"`
	ProtocolVersion int           `json:"protocolVersion"`
}

type JoinedFrame struct {
	Type Type          `json:"type"`
	Room domain.RoomID `json:"room"`
}

type ErrorFrame struct {
	Type    Type                `json:"type"`
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message,omitempty"`
}

type ChatFrame struct {
	Type Type          `json:"type"`
	From domain.UserID `json:"from"`
	Text string        `json:"text"`
	TS   int64         `json:"ts"`
}

func Welcome(user domain.UserID, now time.Time) []byte {
	return mustEncode(WelcomeFrame{Type: TypeWelcome, User: user, TS: utils.UnixMillis(now), ProtocolVersion: Version})
}

func Joined(room domain.RoomID) []byte {
	return mustEncode(JoinedFrame{Type: TypeJoined, Room: room})
}

// Error builds an error frame. Non-AppErrors are reported as INTERNAL_ERROR
// without leaking their text.
func Error(err error) []byte {
	frame := ErrorFrame{Type: TypeError, Code: apperrors.ErrCodeInternal}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		frame.Code = appErr.Code
		frame.Message = appErr.Message
	}
	return mustEncode(frame)
}

func ErrorCode(code apperrors.ErrorCode) []byte {
	return mustEncode(ErrorFrame{Type: TypeError, Code: code})
}

func Chat(from domain.UserID, text string, now time.Time) []byte {
	return mustEncode(ChatFrame{Type: TypeChat, From: from, Text: text, TS: utils.UnixMillis(now)})
}

// mustEncode panics on marshal failure; every frame above is made of strings and integers.
func mustEncode(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
