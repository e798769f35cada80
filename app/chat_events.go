package oneday

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/putto11262002/oneday/core"
)

const (
	RegisterUserEvent = "register_user"
	RequestMatchEvent = "request_match"
	CancelMatchEvent  = "cancel_match"
	JoinRoomEvent     = "join_room"
	LeaveRoomEvent    = "leave_room"
	SendMessageEvent  = "send_message"
	TypingEvent       = "typing"

	RegisteredEvent        = "registered"
	MatchFoundEvent        = "match_found"
	MatchErrorEvent        = "match_error"
	UserJoinedEvent        = "user_joined"
	UserLeftEvent          = "user_left"
	ReceiveMessageEvent    = "receive_message"
	PreviousMessagesEvent  = "previous_messages"
	UserTypingEvent        = "user_typing"
	LeaveRoomCompleteEvent = "leave_room_complete"
	MidnightWarningEvent   = "midnight_warning"
	MidnightResetEvent     = "midnight_reset"
)

// match_error codes surfaced to the client.
const (
	DuplicateRequestCode = "DUPLICATE_REQUEST"
	MaxRoomsExceededCode = "MAX_ROOMS_EXCEEDED"
	NotRegisteredCode    = "NOT_REGISTERED"
)

type RegisterUserPayload struct {
	UserID   string `json:"userId" validate:"required"`
	Nickname string `json:"nickname"`
	Mood     string `json:"mood"`
}

type RegisteredPayload struct {
	UserID      string    `json:"userId"`
	Nickname    string    `json:"nickname"`
	Mood        string    `json:"mood"`
	ConnectedAt time.Time `json:"connectedAt"`
}

type RequestMatchPayload struct {
	UserID    string   `json:"userId" validate:"required"`
	Nickname  string   `json:"nickname"`
	Interests []string `json:"interests"`
	Mood      string   `json:"mood"`
}

type MatchFoundPayload struct {
	RoomID          string    `json:"roomId"`
	PartnerUserID   string    `json:"partnerUserId"`
	PartnerNickname string    `json:"partnerNickname"`
	PartnerMood     string    `json:"partnerMood"`
	MatchedAt       time.Time `json:"matchedAt"`
}

type MatchErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type UserJoinedPayload struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

type UserLeftPayload struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

type PreviousMessagesPayload struct {
	RoomID   string         `json:"roomId"`
	Messages []core.Message `json:"messages"`
}

type LeaveRoomCompletePayload struct {
	RoomID  string `json:"roomId"`
	Success bool   `json:"success"`
}

type SendMessagePayload struct {
	RoomID    string    `json:"roomId" validate:"required"`
	Message   string    `json:"message" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	IsTyping bool   `json:"isTyping"`
}

type UserTypingPayload struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	IsTyping bool   `json:"isTyping"`
}

type MidnightWarningPayload struct {
	Message string    `json:"message"`
	ResetAt time.Time `json:"resetAt"`
}

type MidnightResetPayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func decodePayload(e *core.Event, v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Type, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", e.Type, err)
	}
	return nil
}

func (app *App) RegisterUserHandler(ctx context.Context, e *core.Event) error {
	var payload RegisterUserPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	if payload.Nickname == "" {
		payload.Nickname = core.GenerateNickname()
	}

	session, err := app.chatService.Register(ctx, e.ConnID, core.RegisterInput{
		UserID:   payload.UserID,
		Nickname: payload.Nickname,
		Mood:     payload.Mood,
	})
	if err != nil {
		return fmt.Errorf("Register: %w", err)
	}

	return app.eventRouter.EmitTo(RegisteredEvent, RegisteredPayload{
		UserID:      session.UserID,
		Nickname:    session.Nickname,
		Mood:        session.Mood,
		ConnectedAt: session.ConnectedAt,
	}, e.ConnID)
}

func (app *App) RequestMatchHandler(ctx context.Context, e *core.Event) error {
	var payload RequestMatchPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	if payload.Nickname == "" {
		payload.Nickname = core.GenerateNickname()
	}

	result, err := app.chatService.RequestMatch(ctx, e.ConnID, core.MatchRequestInput{
		UserID:    payload.UserID,
		Nickname:  payload.Nickname,
		Interests: payload.Interests,
		Mood:      payload.Mood,
	})
	if err != nil {
		if code, ok := matchErrorCode(err); ok {
			return app.eventRouter.EmitTo(MatchErrorEvent, MatchErrorPayload{
				Code:    code,
				Message: err.Error(),
			}, e.ConnID)
		}
		return fmt.Errorf("RequestMatch: %w", err)
	}

	// nil result means the user stays waiting until a later request
	// pairs with it
	if result == nil {
		return nil
	}

	app.metrics.MatchesTotal.Inc()

	if err := app.eventRouter.EmitTo(MatchFoundEvent, MatchFoundPayload{
		RoomID:          result.RoomID,
		PartnerUserID:   result.Partner.UserID,
		PartnerNickname: result.Partner.Nickname,
		PartnerMood:     result.Partner.Mood,
		MatchedAt:       result.MatchedAt,
	}, result.Requester.ConnID); err != nil {
		return err
	}

	return app.eventRouter.EmitTo(MatchFoundEvent, MatchFoundPayload{
		RoomID:          result.RoomID,
		PartnerUserID:   result.Requester.UserID,
		PartnerNickname: result.Requester.Nickname,
		PartnerMood:     result.Requester.Mood,
		MatchedAt:       result.MatchedAt,
	}, result.Partner.ConnID)
}

// matchErrorCode maps client protocol errors to match_error codes.
// Anything else is a server fault and propagates to the router's error
// log instead.
func matchErrorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, core.ErrDuplicateRequest):
		return DuplicateRequestCode, true
	case errors.Is(err, core.ErrMaxRoomsExceeded):
		return MaxRoomsExceededCode, true
	case errors.Is(err, core.ErrNotRegistered):
		return NotRegisteredCode, true
	default:
		return "", false
	}
}

func (app *App) CancelMatchHandler(_ context.Context, e *core.Event) error {
	app.chatService.CancelMatch(e.ConnID)
	return nil
}

func (app *App) JoinRoomHandler(ctx context.Context, e *core.Event) error {
	var payload RoomPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	result, err := app.chatService.JoinRoom(ctx, e.ConnID, payload.RoomID)
	if err != nil {
		return fmt.Errorf("JoinRoom: %w", err)
	}

	if err := app.eventRouter.EmitTo(PreviousMessagesEvent, PreviousMessagesPayload{
		RoomID:   result.RoomID,
		Messages: result.Messages,
	}, e.ConnID); err != nil {
		return err
	}

	return app.eventRouter.EmitTo(UserJoinedEvent, UserJoinedPayload{
		UserID:   result.Member.UserID,
		Nickname: result.Member.Nickname,
	}, connIDs(result.Others)...)
}

func (app *App) LeaveRoomHandler(ctx context.Context, e *core.Event) error {
	var payload RoomPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	result, err := app.chatService.LeaveRoom(ctx, e.ConnID, payload.RoomID)
	if err != nil {
		if emitErr := app.eventRouter.EmitTo(LeaveRoomCompleteEvent, LeaveRoomCompletePayload{
			RoomID:  payload.RoomID,
			Success: false,
		}, e.ConnID); emitErr != nil {
			return emitErr
		}
		return fmt.Errorf("LeaveRoom: %w", err)
	}

	if err := app.eventRouter.EmitTo(LeaveRoomCompleteEvent, LeaveRoomCompletePayload{
		RoomID:  result.RoomID,
		Success: true,
	}, e.ConnID); err != nil {
		return err
	}

	return app.eventRouter.EmitTo(UserLeftEvent, UserLeftPayload{
		UserID:   result.Member.UserID,
		Nickname: result.Member.Nickname,
	}, connIDs(result.Others)...)
}

func (app *App) SendMessageHandler(ctx context.Context, e *core.Event) error {
	var payload SendMessagePayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	result, err := app.chatService.SendMessage(ctx, e.ConnID, payload.RoomID, payload.Message)
	if err != nil {
		// a stray send must not take down the relay or the sender's other
		// rooms; drop it and keep serving
		if errors.Is(err, core.ErrInvalidRoom) || errors.Is(err, core.ErrNotRegistered) {
			app.logger.Warn("dropping message for room the sender is not in",
				slog.Int("connection", e.ConnID), slog.String("room", payload.RoomID))
			return nil
		}
		return fmt.Errorf("SendMessage: %w", err)
	}

	app.metrics.MessagesRelayedTotal.Inc()

	return app.eventRouter.EmitTo(ReceiveMessageEvent, result.Message, result.Receivers...)
}

func (app *App) TypingHandler(_ context.Context, e *core.Event) error {
	var payload TypingPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}

	result, err := app.chatService.Typing(e.ConnID, payload.RoomID, payload.IsTyping)
	if err != nil {
		if errors.Is(err, core.ErrInvalidRoom) || errors.Is(err, core.ErrNotRegistered) {
			app.logger.Warn("dropping typing signal for room the sender is not in",
				slog.Int("connection", e.ConnID), slog.String("room", payload.RoomID))
			return nil
		}
		return fmt.Errorf("Typing: %w", err)
	}

	return app.eventRouter.EmitTo(UserTypingEvent, UserTypingPayload{
		UserID:   result.UserID,
		Nickname: result.Nickname,
		IsTyping: result.Typing,
	}, result.Receivers...)
}

func connIDs(members []core.RoomMember) []int {
	ids := make([]int, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ConnID)
	}
	return ids
}
