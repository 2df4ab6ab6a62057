// Package handler exposes message capture over Connect RPC and the Telegram
// webhook.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/quick-capture/internal/domain/capture/parser"
	"github.com/FACorreiaa/quick-capture/internal/domain/capture/repository"
	"github.com/FACorreiaa/quick-capture/internal/domain/capture/service"
	"github.com/FACorreiaa/quick-capture/internal/domain/common"
	"github.com/FACorreiaa/quick-capture/pkg/interceptors"
	"github.com/FACorreiaa/quick-capture/pkg/rpc"
)

// CaptureServiceName is the fully-qualified Connect service name.
const CaptureServiceName = "capture.v1.CaptureService"

var (
	ParseMessageProcedure       = rpc.Procedure(CaptureServiceName, "ParseMessage")
	CaptureMessageProcedure     = rpc.Procedure(CaptureServiceName, "CaptureMessage")
	ListRecentMessagesProcedure = rpc.Procedure(CaptureServiceName, "ListRecentMessages")
)

type ParseMessageRequest struct {
	Text string `json:"text"`
}

type ParseMessageResponse struct {
	Message parser.ParsedMessage `json:"message"`
}

type CaptureMessageRequest struct {
	Text string `json:"text"`
	// ChatID is echoed into storage for clients that mirror a chat.
	ChatID int64 `json:"chat_id,omitempty"`
}

type CaptureMessageResponse struct {
	Message *MessageView `json:"message"`
	// Stored is false for commands, which are never persisted.
	Stored bool   `json:"stored"`
	Reply  string `json:"reply"`
}

type ListRecentMessagesRequest struct {
	Limit int `json:"limit,omitempty"`
}

type ListRecentMessagesResponse struct {
	Messages []*MessageView `json:"messages"`
}

// MessageView is the wire form of a stored message.
type MessageView struct {
	ID          string              `json:"id,omitempty"`
	RawMessage  string              `json:"raw_message"`
	Kind        parser.Kind         `json:"kind"`
	Amount      decimal.NullDecimal `json:"amount"`
	Currency    string              `json:"currency"`
	Description *string             `json:"description"`
	IsIncome    parser.Tristate     `json:"is_income"`
	Confidence  parser.Confidence   `json:"confidence"`
	Processed   bool                `json:"processed"`
	CreatedAt   *time.Time          `json:"created_at,omitempty"`
}

func toMessageView(m *repository.PendingMessage) *MessageView {
	v := &MessageView{
		RawMessage:  m.RawMessage,
		Kind:        m.Kind,
		Amount:      m.Amount,
		Currency:    m.Currency,
		Description: m.Description,
		IsIncome:    m.IsIncome,
		Confidence:  m.Confidence,
		Processed:   m.Processed,
	}
	if !m.CreatedAt.IsZero() {
		v.ID = m.ID.String()
		created := m.CreatedAt
		v.CreatedAt = &created
	}
	return v
}

// CaptureHandler implements the CaptureService Connect handlers.
type CaptureHandler struct {
	svc service.CaptureService
}

// NewCaptureHandler constructs a new handler.
func NewCaptureHandler(svc service.CaptureService) *CaptureHandler {
	return &CaptureHandler{svc: svc}
}

// ParseMessage parses text without storing it.
func (h *CaptureHandler) ParseMessage(
	ctx context.Context,
	req *connect.Request[ParseMessageRequest],
) (*connect.Response[ParseMessageResponse], error) {
	if err := h.svc.Validate(req.Msg.Text); err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&ParseMessageResponse{
		Message: h.svc.Parse(ctx, req.Msg.Text),
	}), nil
}

// CaptureMessage parses and stores text for the authenticated user.
func (h *CaptureHandler) CaptureMessage(
	ctx context.Context,
	req *connect.Request[CaptureMessageRequest],
) (*connect.Response[CaptureMessageResponse], error) {
	claims, ok := interceptors.ClaimsFromContext(ctx)
	if !ok || claims.UserID == 0 {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	if err := h.svc.Validate(req.Msg.Text); err != nil {
		return nil, rpc.ToConnectError(err)
	}

	sender := common.Sender{
		UserID:   claims.UserID,
		Username: claims.Username,
		ChatID:   req.Msg.ChatID,
	}
	msg, err := h.svc.Capture(ctx, sender, req.Msg.Text)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}

	return connect.NewResponse(&CaptureMessageResponse{
		Message: toMessageView(msg),
		Stored:  msg.Kind != parser.KindCommand,
		Reply:   FormatReply(msg),
	}), nil
}

// ListRecentMessages returns the authenticated user's latest messages.
func (h *CaptureHandler) ListRecentMessages(
	ctx context.Context,
	req *connect.Request[ListRecentMessagesRequest],
) (*connect.Response[ListRecentMessagesResponse], error) {
	userID, err := interceptors.UserIDFromContext(ctx)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}
	if req.Msg.Limit < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("limit must not be negative"))
	}

	msgs, err := h.svc.RecentMessages(ctx, userID, req.Msg.Limit)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}

	views := make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, toMessageView(m))
	}
	return connect.NewResponse(&ListRecentMessagesResponse{Messages: views}), nil
}

// NewCaptureServiceHandler builds the HTTP handler for every CaptureService
// procedure. The returned path is the mount point.
func NewCaptureServiceHandler(h *CaptureHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = rpc.HandlerOptions(opts...)

	mux := http.NewServeMux()
	mux.Handle(ParseMessageProcedure, connect.NewUnaryHandler(ParseMessageProcedure, h.ParseMessage, opts...))
	mux.Handle(CaptureMessageProcedure, connect.NewUnaryHandler(CaptureMessageProcedure, h.CaptureMessage, opts...))
	mux.Handle(ListRecentMessagesProcedure, connect.NewUnaryHandler(ListRecentMessagesProcedure, h.ListRecentMessages, opts...))
	return "/" + CaptureServiceName + "/", mux
}
