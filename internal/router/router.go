package router

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fdp/internal/session"
	"fdp/pkg/interfaces"
	"fdp/pkg/types"
)

// Router decodes inbound protocol frames, applies them to the session
// manager and delivers the resulting frames. It must be driven from a
// single goroutine (the hub loop) so warnings go out in event order.
type Router struct {
	manager *session.Manager
	sender  interfaces.Sender
	limiter *RateLimiter
	logger  *zap.Logger
}

// NewRouter creates a protocol router. A nil limiter disables rate limiting.
func NewRouter(manager *session.Manager, sender interfaces.Sender, limiter *RateLimiter, logger *zap.Logger) *Router {
	if limiter == nil {
		limiter = NewRateLimiter(0, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		manager: manager,
		sender:  sender,
		limiter: limiter,
		logger:  logger,
	}
}

// HandleMessage processes one text frame from a connection. Bad input is
// answered with an error frame and never closes the connection.
func (r *Router) HandleMessage(connectionID string, data []byte) {
	if !r.limiter.Allow(connectionID) {
		r.sendError(connectionID, types.ErrorCodeRateLimited, ErrRateLimitExceeded.Error())
		return
	}

	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		r.logger.Debug("malformed frame", zap.String("connection_id", connectionID), zap.Error(err))
		r.sendError(connectionID, types.ErrorCodeInvalidJSON, ErrMalformedFrame.Error())
		return
	}

	if !types.IsInboundType(env.Type) {
		r.logger.Debug("unknown message type", zap.String("connection_id", connectionID), zap.String("type", env.Type))
		r.sendError(connectionID, types.ErrorCodeUnknownType, fmt.Sprintf("%s: %q", ErrUnknownMessageType, env.Type))
		return
	}

	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		r.sendError(connectionID, types.ErrorCodeInvalidPayload, ErrMissingPayload.Error())
		return
	}

	var err error
	switch env.Type {
	case types.MessageTypeRegister:
		err = r.handleRegister(connectionID, env.Payload)
	case types.MessageTypeDeregister:
		err = r.handleDeregister(connectionID, env.Payload)
	case types.MessageTypeHeartbeat:
		err = r.handleHeartbeat(connectionID, env.Payload)
	case types.MessageTypeFocus:
		err = r.handleFocus(connectionID, env.Payload)
	}
	if err != nil {
		r.logger.Debug("invalid payload",
			zap.String("connection_id", connectionID),
			zap.String("type", env.Type),
			zap.Error(err))
		r.sendError(connectionID, types.ErrorCodeInvalidPayload, err.Error())
	}
}

// ConnectionClosed deregisters whatever window the connection owned.
func (r *Router) ConnectionClosed(connectionID string) {
	r.limiter.Remove(connectionID)
	r.deliver(r.manager.HandleConnectionClose(connectionID).Broadcasts)
}

// Sweep removes stale registrations and delivers the recomputed warnings.
func (r *Router) Sweep() session.CleanupResult {
	result := r.manager.Cleanup()
	r.deliver(result.Broadcasts)
	r.limiter.Cleanup()
	return result
}

func (r *Router) handleRegister(connectionID string, raw json.RawMessage) error {
	var p types.RegisterPayload
	if err := decode(raw, &p); err != nil {
		return err
	}

	reg := types.Registration{
		ConnectionID:      connectionID,
		UserID:            p.UserID,
		WindowID:          p.WindowID,
		CaseID:            p.CaseID,
		PatientIdentifier: p.PatientIdentifier,
		ViewerType:        p.ViewerType,
		OpenedAt:          types.MillisToTime(p.OpenedAt),
	}
	result, err := r.manager.Register(reg)
	if errors.Is(err, session.ErrConnectionLimitExceeded) {
		r.sendError(connectionID, types.ErrorCodeConnectionLimitExceeded, err.Error())
		return nil
	}
	if err != nil {
		return err
	}

	r.send(connectionID, types.NewAck(types.AckPayload{
		UserID:            p.UserID,
		WindowID:          p.WindowID,
		CaseID:            p.CaseID,
		PatientIdentifier: p.PatientIdentifier,
		ViewerType:        p.ViewerType,
		OpenedAt:          types.TimeToMillis(result.Registration.OpenedAt),
		Registered:        types.Bool(true),
	}))
	r.deliver(result.Broadcasts)
	return nil
}

func (r *Router) handleDeregister(connectionID string, raw json.RawMessage) error {
	var p types.DeregisterPayload
	if err := decode(raw, &p); err != nil {
		return err
	}

	result := r.manager.Deregister(connectionID, p.WindowID)
	r.send(connectionID, types.NewAck(types.AckPayload{
		WindowID:     p.WindowID,
		Deregistered: types.Bool(result.Registration != nil),
	}))
	r.deliver(result.Broadcasts)
	return nil
}

func (r *Router) handleHeartbeat(connectionID string, raw json.RawMessage) error {
	var p types.HeartbeatPayload
	if err := decode(raw, &p); err != nil {
		return err
	}

	ok := r.manager.Heartbeat(connectionID, p.WindowID)
	r.send(connectionID, types.NewAck(types.AckPayload{
		WindowID:  p.WindowID,
		FocusedAt: p.FocusedAt,
		Heartbeat: types.Bool(ok),
	}))
	return nil
}

func (r *Router) handleFocus(connectionID string, raw json.RawMessage) error {
	var p types.FocusPayload
	if err := decode(raw, &p); err != nil {
		return err
	}

	var result session.Result
	if userID, ok := r.manager.ResolveUser(connectionID); ok {
		result = r.manager.HandleFocusChange(userID, p.WindowID, p.CaseID)
	}
	r.send(connectionID, types.NewAck(types.AckPayload{
		WindowID: p.WindowID,
		CaseID:   p.CaseID,
		Focused:  types.Bool(result.Registration != nil),
	}))
	r.deliver(result.Broadcasts)
	return nil
}

type validator interface {
	Validate() error
}

func decode(raw json.RawMessage, v validator) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return v.Validate()
}

func (r *Router) deliver(broadcasts []session.Broadcast) {
	for _, b := range broadcasts {
		var msg *types.OutboundMessage
		switch {
		case b.Warning != nil:
			msg = types.NewWarning(*b.Warning)
		default:
			msg = types.NewSync(b.Sync)
		}
		for _, id := range b.ConnectionIDs {
			r.send(id, msg)
		}
	}
}

func (r *Router) send(connectionID string, msg *types.OutboundMessage) {
	if err := r.sender.Send(connectionID, msg); err != nil {
		r.logger.Debug("frame not delivered",
			zap.String("connection_id", connectionID),
			zap.String("type", msg.Type),
			zap.Error(err))
	}
}

func (r *Router) sendError(connectionID, code, message string) {
	r.send(connectionID, types.NewError(code, message))
}
