package services

import (
	"context"
	"errors"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
	"roomrelay/internal/core/protocol"
	apperrors "roomrelay/pkg/errors"
	rlog "roomrelay/pkg/logger"
	"roomrelay/pkg/tracing"
	"roomrelay/pkg/utils"

	"go.uber.org/zap"
)

const (
	DefaultRateLimit     = 100
	DefaultMaxChatLength = 1000
)

// DispatcherService validates inbound frames and routes them to the room
// registry. Replies and errors go to the originating connection only.
type DispatcherService struct {
	rooms         ports.RoomRegistry
	stats         ports.StatsRecorder
	observer      ports.DispatchObserver
	rateLimit     int64
	maxChatLength int
	now           func() time.Time
	logger        *rlog.ContextLogger
}

func NewDispatcherService(
	rooms ports.RoomRegistry,
	stats ports.StatsRecorder,
	rateLimit int,
	maxChatLength int,
	logger *zap.SugaredLogger,
) *DispatcherService {
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	if maxChatLength <= 0 {
		maxChatLength = DefaultMaxChatLength
	}
	observer, _ := stats.(ports.DispatchObserver)
	return &DispatcherService{
		rooms:         rooms,
		stats:         stats,
		observer:      observer,
		rateLimit:     int64(rateLimit),
		maxChatLength: maxChatLength,
		now:           time.Now,
		logger:        rlog.NewContextLogger(logger.Desugar()),
	}
}

// Dispatch handles one raw inbound payload. The returned error has already
// been reported to conn; it is returned for logging and tests.
func (d *DispatcherService) Dispatch(ctx context.Context, conn *domain.Connection, raw []byte) error {
	ctx, span := tracing.TraceWebSocketMessage(ctx, string(conn.ID), string(conn.User))
	defer span.End()
	ctx = rlog.WithConnection(ctx, string(conn.ID), string(conn.User))

	start := time.Now()
	messageType := "invalid"
	defer func() {
		if d.observer != nil {
			d.observer.ObserveDispatch(messageType, time.Since(start))
		}
	}()

	d.stats.Record(domain.StatMessagesReceived, "", 1)

	if count := conn.CountMessage(); count > d.rateLimit {
		return d.reject(ctx, conn, apperrors.NewRateLimitError().WithContext("count", count))
	}

	msg, err := protocol.Parse(raw)
	if err != nil {
		return d.reject(ctx, conn, err)
	}
	messageType = string(msg.Type())
	ctx = rlog.WithRoom(ctx, string(msg.RoomID()))
	tracing.AddSpanAttributes(ctx,
		tracing.MessageTypeKey.String(messageType),
		tracing.RoomKey.String(string(msg.RoomID())),
	)

	if err := protocol.CheckVersion(msg); err != nil {
		return d.reject(ctx, conn, err)
	}

	d.rooms.Touch(msg.RoomID())

	switch m := msg.(type) {
	case *protocol.JoinMessage:
		return d.handleJoin(ctx, conn, m)
	case *protocol.SignalMessage:
		d.handleSignal(ctx, conn, m)
	case *protocol.ChatMessage:
		d.handleChat(ctx, conn, m)
	}
	return nil
}

func (d *DispatcherService) handleJoin(ctx context.Context, conn *domain.Connection, msg *protocol.JoinMessage) error {
	if err := d.rooms.Join(msg.Room, conn); err != nil {
		switch {
		case errors.Is(err, domain.ErrRoomFull):
			return d.reject(ctx, conn, apperrors.NewRoomFullError(err).WithContext("room", msg.Room))
		case errors.Is(err, domain.ErrShuttingDown):
			return d.reject(ctx, conn, apperrors.NewServiceUnavailableError(err.Error()))
		default:
			return d.reject(ctx, conn, apperrors.NewInvalidFormatError(err))
		}
	}

	conn.Send(protocol.Joined(msg.Room))
	d.logger.Sugar(ctx).Debugw("joined room", "members", d.rooms.MemberCount(msg.Room))
	return nil
}

func (d *DispatcherService) handleSignal(ctx context.Context, conn *domain.Connection, msg *protocol.SignalMessage) {
	kind := protocol.ClassifySignal(msg)
	if kind == protocol.SignalEmpty {
		return
	}

	delivered := d.rooms.Broadcast(msg.Room, conn, msg.Raw)
	d.stats.Record(domain.StatSignalsRelayed, string(kind), 1)
	tracing.AddSpanAttributes(ctx, tracing.DeliveriesKey.Int(delivered))
}

func (d *DispatcherService) handleChat(ctx context.Context, conn *domain.Connection, msg *protocol.ChatMessage) {
	text := utils.TruncateRunes(msg.Text, d.maxChatLength)
	delivered := d.rooms.Broadcast(msg.Room, conn, protocol.Chat(conn.User, text, d.now()))
	d.stats.Record(domain.StatChatsRelayed, "", 1)
	tracing.AddSpanAttributes(ctx, tracing.DeliveriesKey.Int(delivered))
}

func (d *DispatcherService) reject(ctx context.Context, conn *domain.Connection, err error) error {
	code := apperrors.CodeOf(err)
	conn.Send(protocol.Error(err))

	d.stats.Record(domain.StatMessagesRejected, string(code), 1)
	tracing.AddSpanAttributes(ctx, tracing.ErrorCodeKey.String(string(code)))
	tracing.RecordError(ctx, err)

	d.logger.Sugar(ctx).Debugw("message rejected",
		"code", code,
		"error", err,
	)
	return err
}
