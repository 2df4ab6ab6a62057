// Package handler implements the LedgerService Connect RPC handlers.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/quick-capture/internal/domain/ledger/repository"
	"github.com/FACorreiaa/quick-capture/internal/domain/ledger/service"
	"github.com/FACorreiaa/quick-capture/pkg/rpc"
)

const LedgerServiceName = "ledger.v1.LedgerService"

// MaxRecentDays bounds ListRecentTransactions.
const MaxRecentDays = 366

var (
	GetStatsProcedure               = rpc.Procedure(LedgerServiceName, "GetStats")
	ListRecentTransactionsProcedure = rpc.Procedure(LedgerServiceName, "ListRecentTransactions")
	ProcessPendingProcedure         = rpc.Procedure(LedgerServiceName, "ProcessPending")
	GetSummaryProcedure             = rpc.Procedure(LedgerServiceName, "GetSummary")
	CompareWeeksProcedure           = rpc.Procedure(LedgerServiceName, "CompareWeeks")
	ExportTaxRecordsProcedure       = rpc.Procedure(LedgerServiceName, "ExportTaxRecords")
	AskProcedure                    = rpc.Procedure(LedgerServiceName, "Ask")
)

type GetStatsRequest struct{}

type GetStatsResponse struct {
	Stats *repository.Stats `json:"stats"`
}

type ListRecentTransactionsRequest struct {
	// Days defaults to 7.
	Days int `json:"days,omitempty"`
}

type ListRecentTransactionsResponse struct {
	Transactions []*TransactionView `json:"transactions"`
}

type ProcessPendingRequest struct{}

type ProcessPendingResponse struct {
	Result *service.ProcessResult `json:"result"`
}

type GetSummaryRequest struct {
	Period service.PeriodRequest `json:"period"`
}

type GetSummaryResponse struct {
	Summary *service.PeriodSummary `json:"summary"`
	Text    string                 `json:"text"`
}

type CompareWeeksRequest struct {
	// Weeks defaults to 4.
	Weeks int `json:"weeks,omitempty"`
}

type CompareWeeksResponse struct {
	Comparison *service.WeekComparison `json:"comparison"`
	Text       string                  `json:"text"`
}

type ExportTaxRecordsRequest struct {
	Year int `json:"year"`
}

type ExportTaxRecordsResponse struct {
	Report *service.TaxReport `json:"report"`
	// Text is the plain-text export.
	Text string `json:"text"`
}

type AskRequest struct {
	Question string `json:"question"`
}

type AskResponse struct {
	Answer string `json:"answer"`
}

type TransactionView struct {
	ID          string          `json:"id"`
	MessageID   string          `json:"message_id"`
	UserID      int64           `json:"user_id"`
	Username    string          `json:"username"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	IsIncome    bool            `json:"is_income"`
	RawMessage  string          `json:"raw_message"`
	OccurredAt  time.Time       `json:"occurred_at"`
	ProcessedAt time.Time       `json:"processed_at"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
}

func toTransactionView(tx *repository.Transaction) *TransactionView {
	return &TransactionView{
		ID:          tx.ID.String(),
		MessageID:   tx.MessageID.String(),
		UserID:      tx.UserID,
		Username:    tx.Username,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Description: tx.Description,
		Category:    tx.Category,
		IsIncome:    tx.IsIncome,
		RawMessage:  tx.RawMessage,
		OccurredAt:  tx.OccurredAt,
		ProcessedAt: tx.ProcessedAt,
		UpdatedAt:   tx.UpdatedAt,
	}
}

// LedgerHandler serves statistics and triggers processing.
type LedgerHandler struct {
	svc service.LedgerService
}

func NewLedgerHandler(svc service.LedgerService) *LedgerHandler {
	return &LedgerHandler{svc: svc}
}

// GetStats returns per-currency totals and the category breakdown.
func (h *LedgerHandler) GetStats(
	ctx context.Context,
	_ *connect.Request[GetStatsRequest],
) (*connect.Response[GetStatsResponse], error) {
	stats, err := h.svc.Stats(ctx)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&GetStatsResponse{Stats: stats}), nil
}

// ListRecentTransactions returns transactions from the last Days days.
func (h *LedgerHandler) ListRecentTransactions(
	ctx context.Context,
	req *connect.Request[ListRecentTransactionsRequest],
) (*connect.Response[ListRecentTransactionsResponse], error) {
	if req.Msg.Days < 0 || req.Msg.Days > MaxRecentDays {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("days must be between 0 and 366"))
	}

	txs, err := h.svc.RecentTransactions(ctx, req.Msg.Days)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}

	views := make([]*TransactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, toTransactionView(tx))
	}
	return connect.NewResponse(&ListRecentTransactionsResponse{Transactions: views}), nil
}

// ProcessPending runs one processing batch now.
func (h *LedgerHandler) ProcessPending(
	ctx context.Context,
	_ *connect.Request[ProcessPendingRequest],
) (*connect.Response[ProcessPendingResponse], error) {
	result, err := h.svc.ProcessPending(ctx)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&ProcessPendingResponse{Result: result}), nil
}

// GetSummary reports on a week, month, quarter, year or custom range.
func (h *LedgerHandler) GetSummary(
	ctx context.Context,
	req *connect.Request[GetSummaryRequest],
) (*connect.Response[GetSummaryResponse], error) {
	summary, err := h.svc.Summary(ctx, req.Msg.Period)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&GetSummaryResponse{Summary: summary, Text: summary.Text()}), nil
}

func (h *LedgerHandler) CompareWeeks(
	ctx context.Context,
	req *connect.Request[CompareWeeksRequest],
) (*connect.Response[CompareWeeksResponse], error) {
	comparison, err := h.svc.CompareWeeks(ctx, req.Msg.Weeks)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&CompareWeeksResponse{Comparison: comparison, Text: comparison.Text()}), nil
}

// ExportTaxRecords returns the year's potential deductions, both structured
// and as the text export.
func (h *LedgerHandler) ExportTaxRecords(
	ctx context.Context,
	req *connect.Request[ExportTaxRecordsRequest],
) (*connect.Response[ExportTaxRecordsResponse], error) {
	report, err := h.svc.TaxReport(ctx, req.Msg.Year)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&ExportTaxRecordsResponse{Report: report, Text: report.Text()}), nil
}

// Ask answers a question about recent spending. It is unavailable without
// a configured model.
func (h *LedgerHandler) Ask(
	ctx context.Context,
	req *connect.Request[AskRequest],
) (*connect.Response[AskResponse], error) {
	answer, err := h.svc.Ask(ctx, req.Msg.Question)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&AskResponse{Answer: answer}), nil
}

// NewLedgerServiceHandler builds the HTTP handler for every LedgerService
// procedure.
func NewLedgerServiceHandler(h *LedgerHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = rpc.HandlerOptions(opts...)

	mux := http.NewServeMux()
	mux.Handle(GetStatsProcedure, connect.NewUnaryHandler(GetStatsProcedure, h.GetStats, opts...))
	mux.Handle(ListRecentTransactionsProcedure, connect.NewUnaryHandler(ListRecentTransactionsProcedure, h.ListRecentTransactions, opts...))
	mux.Handle(ProcessPendingProcedure, connect.NewUnaryHandler(ProcessPendingProcedure, h.ProcessPending, opts...))
	mux.Handle(GetSummaryProcedure, connect.NewUnaryHandler(GetSummaryProcedure, h.GetSummary, opts...))
	mux.Handle(CompareWeeksProcedure, connect.NewUnaryHandler(CompareWeeksProcedure, h.CompareWeeks, opts...))
	mux.Handle(ExportTaxRecordsProcedure, connect.NewUnaryHandler(ExportTaxRecordsProcedure, h.ExportTaxRecords, opts...))
	mux.Handle(AskProcedure, connect.NewUnaryHandler(AskProcedure, h.Ask, opts...))
	return "/" + LedgerServiceName + "/", mux
}
