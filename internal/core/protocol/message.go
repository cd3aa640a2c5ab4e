// Package protocol defines the relay's JSON wire format: inbound envelopes
// are parsed into a closed set of message variants, outbound frames are
// built by the constructors in outbound.go.
package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"roomrelay/internal/core/domain"
	apperrors "roomrelay/pkg/errors"
	"roomrelay/pkg/validation"

	"github.com/go-playground/validator/v10"
)

// Version is the protocol version spoken by this server.
const Version = 1

type Type string

const (
	TypeJoin    Type = "join"
	TypeSignal  Type = "signal"
	TypeChat    Type = "chat"
	TypeWelcome Type = "welcome"
	TypeJoined  Type = "joined"
	TypeError   Type = "error"
)

// Message is one of *JoinMessage, *SignalMessage or *ChatMessage.
type Message interface {
	Type() Type
	RoomID() domain.RoomID
	// Version returns the declared protocol version, if any.
	Version() (int, bool)
}

type Header struct {
	Room            domain.RoomID
	ProtocolVersion *int
}

func (h Header) RoomID() domain.RoomID { return h.Room }

func (h Header) Version() (int, bool) {
	if h.ProtocolVersion == nil {
		return 0, false
	}
	return *h.ProtocolVersion, true
}

type JoinMessage struct {
	Header
}

func (*JoinMessage) Type() Type { return TypeJoin }

// SignalMessage carries an opaque negotiation payload. Raw holds the exact
// bytes received so the payload can be relayed unmodified.
type SignalMessage struct {
	Header
	Description json.RawMessage
	Candidate   json.RawMessage
	Raw         []byte
}

func (*SignalMessage) Type() Type { return TypeSignal }

// Empty reports whether the signal carries neither a description nor a candidate.
func (m *SignalMessage) Empty() bool {
	return len(m.Description) == 0 && len(m.Candidate) == 0
}

type ChatMessage struct {
	Header
	Text string
}

func (*ChatMessage) Type() Type { return TypeChat }

type envelope struct {
	Type            string          `json:"type" validate:"required,oneof=join signal chat"`
	Room            string          `json:"room" validate:"required,roomid"`
	ProtocolVersion *int            `json:"protocolVersion"`
	Description     json.RawMessage `json:"description" validate:"omitempty,jsonobject"`
	Candidate       json.RawMessage `json:"candidate" validate:"omitempty,jsonobject"`
	Text            *string         `json:"text"`
}

var allowedFields = map[string]struct{}{
	"type":            {},
	"room":            {},
	"protocolVersion": {},
	"description":     {},
	"candidate":       {},
	"text":            {},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return validation.ValidateRoomID(fl.Field().String()) == nil
	}); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("jsonobject", func(fl validator.FieldLevel) bool {
		return isJSONObject(fl.Field().Bytes())
	}); err != nil {
		panic(err)
	}
	return v
}

func isJSONObject(raw []byte) bool {
	s := strings.TrimLeft(string(raw), " \t\r\n")
	return strings.HasPrefix(s, "{")
}

// Parse validates raw and returns the matching message variant. Errors are
// *apperrors.AppError with code INVALID_JSON or INVALID_FORMAT.
func Parse(raw []byte) (Message, error) {
	if !json.Valid(raw) {
		return nil, apperrors.NewInvalidJSONError(nil)
	}

	// Field names are matched exactly; encoding/json alone would accept "Type".
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apperrors.NewInvalidFormatError(fmt.Errorf("message must be an object: %w", err))
	}
	for name := range fields {
		if _, ok := allowedFields[name]; !ok {
			return nil, apperrors.NewInvalidFormatError(fmt.Errorf("unknown field %q", name)).
				WithContext("field", name)
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.NewInvalidFormatError(err)
	}
	if err := validate.Struct(&env); err != nil {
		return nil, apperrors.NewInvalidFormatError(err)
	}

	header := Header{Room: domain.RoomID(env.Room), ProtocolVersion: env.ProtocolVersion}

	switch Type(env.Type) {
	case TypeJoin:
		return &JoinMessage{Header: header}, nil
	case TypeSignal:
		return &SignalMessage{
			Header:      header,
			Description: env.Description,
			Candidate:   env.Candidate,
			Raw:         raw,
		}, nil
	case TypeChat:
		msg := &ChatMessage{Header: header}
		if env.Text != nil {
			msg.Text = *env.Text
		}
		return msg, nil
	default:
		// unreachable: oneof already rejected it
		return nil, apperrors.NewInvalidFormatError(fmt.Errorf("unknown type %q", env.Type))
	}
}

// CheckVersion rejects messages declaring a protocol version other than
// Version. Messages without a version are compatible.
func CheckVersion(msg Message) error {
	if v, ok := msg.Version(); ok && v != Version {
		return apperrors.NewUnsupportedProtocolError(v, Version)
	}
	return nil
}
