package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/quick-capture/internal/domain/capture/parser"
	captureRepo "github.com/FACorreiaa/quick-capture/internal/domain/capture/repository"
	"github.com/FACorreiaa/quick-capture/internal/domain/common"
	"github.com/FACorreiaa/quick-capture/internal/domain/ledger/repository"
	"github.com/FACorreiaa/quick-capture/pkg/observability"
)

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) SaveMessage(ctx context.Context, msg *captureRepo.PendingMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockMessageRepo) GetMessage(ctx context.Context, id uuid.UUID) (*captureRepo.PendingMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*captureRepo.PendingMessage), args.Error(1)
}

func (m *MockMessageRepo) ListUnprocessed(ctx context.Context, limit int) ([]*captureRepo.PendingMessage, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*captureRepo.PendingMessage), args.Error(1)
}

func (m *MockMessageRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockMessageRepo) ListRecentMessages(ctx context.Context, userID int64, limit int) ([]*captureRepo.PendingMessage, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*captureRepo.PendingMessage), args.Error(1)
}

type MockTransactionRepo struct {
	mock.Mock
}

func (m *MockTransactionRepo) SaveTransaction(ctx context.Context, tx *repository.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *MockTransactionRepo) LatestTransactionForUser(ctx context.Context, userID int64) (*repository.Transaction, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) UpdateTransactionAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal, description *string) error {
	return m.Called(ctx, id, amount, description).Error(0)
}

func (m *MockTransactionRepo) ListRecentTransactions(ctx context.Context, since time.Time) ([]*repository.Transaction, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]*repository.Transaction, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) Stats(ctx context.Context) (*repository.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Stats), args.Error(1)
}

type MockCategorizer struct {
	mock.Mock
}

func (m *MockCategorizer) Categorize(ctx context.Context, description string, amount decimal.Decimal, isIncome bool) (string, error) {
	args := m.Called(ctx, description, amount, isIncome)
	return args.String(0), args.Error(1)
}

func setupProcessorTest(batchSize int) (*Processor, *MockMessageRepo, *MockTransactionRepo, *MockCategorizer) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	messages := new(MockMessageRepo)
	transactions := new(MockTransactionRepo)
	cat := new(MockCategorizer)
	return NewProcessor(messages, transactions, cat, batchSize, logger), messages, transactions, cat
}

func pending(userID int64, text string) *captureRepo.PendingMessage {
	msg := captureRepo.NewPendingMessage(common.Sender{UserID: userID, Username: "ana"}, parser.Parse(text))
	msg.ID = uuid.New()
	msg.CreatedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return msg
}

func decimalEq(s string) any {
	want := decimal.RequireFromString(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

func TestProcessor_ProcessPending_Categorizes(t *testing.T) {
	p, messages, transactions, cat := setupProcessorTest(10)
	ctx := context.Background()

	coffee := pending(42, "Coffee 5 dollars")
	salary := pending(42, "Earned 200 from client")
	bare := pending(42, "spent 40")

	messages.On("ListUnprocessed", mock.Anything, 10).
		Return([]*captureRepo.PendingMessage{coffee, salary, bare}, nil)

	cat.On("Categorize", mock.Anything, "coffee", decimalEq("5"), false).Return("Food & Dining", nil)
	cat.On("Categorize", mock.Anything, "client", decimalEq("200"), true).Return("Income - Freelance", nil)
	cat.On("Categorize", mock.Anything, UnspecifiedDescription, decimalEq("40"), false).Return("Other", nil)

	transactions.On("SaveTransaction", mock.Anything, mock.MatchedBy(func(tx *repository.Transaction) bool {
		return tx.MessageID == coffee.ID && tx.Category == "Food & Dining" && !tx.IsIncome &&
			tx.Currency == "USD" && tx.OccurredAt.Equal(coffee.CreatedAt) && tx.Username == "ana"
	})).Return(nil).Once()
	transactions.On("SaveTransaction", mock.Anything, mock.MatchedBy(func(tx *repository.Transaction) bool {
		return tx.MessageID == salary.ID && tx.IsIncome && tx.Description == "client"
	})).Return(nil).Once()
	transactions.On("SaveTransaction", mock.Anything, mock.MatchedBy(func(tx *repository.Transaction) bool {
		return tx.MessageID == bare.ID && tx.Description == UnspecifiedDescription
	})).Return(nil).Once()

	for _, msg := range []*captureRepo.PendingMessage{coffee, salary, bare} {
		messages.On("MarkProcessed", mock.Anything, msg.ID).Return(nil).Once()
	}

	before := testutil.ToFloat64(observability.ProcessedTotal.WithLabelValues(observability.OutcomeCategorized))

	result, err := p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, &ProcessResult{Total: 3, Categorized: 3}, result)
	assert.Equal(t, before+3, testutil.ToFloat64(observability.ProcessedTotal.WithLabelValues(observability.OutcomeCategorized)))

	messages.AssertExpectations(t)
	transactions.AssertExpectations(t)
	cat.AssertExpectations(t)
}

func TestProcessor_ProcessPending_Correction(t *testing.T) {
	p, messages, transactions, cat := setupProcessorTest(0)
	ctx := context.Background()

	fix := pending(42, "actually 12.50")
	latest := &repository.Transaction{ID: uuid.New(), UserID: 42, Amount: decimal.NewFromInt(5)}

	messages.On("ListUnprocessed", mock.Anything, DefaultBatchSize).Return([]*captureRepo.PendingMessage{fix}, nil)
	transactions.On("LatestTransactionForUser", mock.Anything, int64(42)).Return(latest, nil)
	transactions.On("UpdateTransactionAmount", mock.Anything, latest.ID, decimalEq("12.50"), (*string)(nil)).Return(nil)
	messages.On("MarkProcessed", mock.Anything, fix.ID).Return(nil)

	result, err := p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, &ProcessResult{Total: 1, Corrected: 1}, result)

	cat.AssertNotCalled(t, "Categorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	transactions.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestProcessor_ProcessPending_CorrectionWithDescription(t *testing.T) {
	p, messages, transactions, _ := setupProcessorTest(5)

	fix := pending(42, "actually 15 for lunch")
	latest := &repository.Transaction{ID: uuid.New(), UserID: 42}

	messages.On("ListUnprocessed", mock.Anything, 5).Return([]*captureRepo.PendingMessage{fix}, nil)
	transactions.On("LatestTransactionForUser", mock.Anything, int64(42)).Return(latest, nil)
	transactions.On("UpdateTransactionAmount", mock.Anything, latest.ID, decimalEq("15"),
		mock.MatchedBy(func(d *string) bool { return d != nil && *d == "lunch" })).Return(nil)
	messages.On("MarkProcessed", mock.Anything, fix.ID).Return(nil)

	result, err := p.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Corrected)
	transactions.AssertExpectations(t)
}

func TestProcessor_ProcessPending_CorrectionWithoutTarget(t *testing.T) {
	p, messages, transactions, _ := setupProcessorTest(5)

	fix := pending(7, "actually 12.50")
	messages.On("ListUnprocessed", mock.Anything, 5).Return([]*captureRepo.PendingMessage{fix}, nil)
	transactions.On("LatestTransactionForUser", mock.Anything, int64(7)).Return(nil, common.ErrNotFound)
	messages.On("MarkProcessed", mock.Anything, fix.ID).Return(nil)

	result, err := p.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &ProcessResult{Total: 1, Skipped: 1}, result)
	transactions.AssertNotCalled(t, "UpdateTransactionAmount", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	messages.AssertExpectations(t)
}

func TestProcessor_ProcessPending_FailureLeavesRecordPending(t *testing.T) {
	p, messages, transactions, cat := setupProcessorTest(5)

	first := pending(42, "coffee 3")
	second := pending(42, "lunch 12")

	messages.On("ListUnprocessed", mock.Anything, 5).Return([]*captureRepo.PendingMessage{first, second}, nil)
	cat.On("Categorize", mock.Anything, "coffee", mock.Anything, false).Return("", errors.New("model unavailable"))
	cat.On("Categorize", mock.Anything, "lunch", mock.Anything, false).Return("Food & Dining", nil)
	transactions.On("SaveTransaction", mock.Anything, mock.Anything).Return(nil)
	messages.On("MarkProcessed", mock.Anything, second.ID).Return(nil)

	result, err := p.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &ProcessResult{Total: 2, Categorized: 1, Failed: 1}, result)

	messages.AssertNotCalled(t, "MarkProcessed", mock.Anything, first.ID)
	transactions.AssertNumberOfCalls(t, "SaveTransaction", 1)
}

func TestProcessor_ProcessPending_SaveFailure(t *testing.T) {
	p, messages, transactions, cat := setupProcessorTest(5)

	msg := pending(42, "taxi 9")
	messages.On("ListUnprocessed", mock.Anything, 5).Return([]*captureRepo.PendingMessage{msg}, nil)
	cat.On("Categorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("Transportation", nil)
	transactions.On("SaveTransaction", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	result, err := p.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	messages.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}

func TestProcessor_ProcessPending_ListError(t *testing.T) {
	p, messages, _, _ := setupProcessorTest(5)

	boom := errors.New("connection refused")
	messages.On("ListUnprocessed", mock.Anything, 5).Return(nil, boom)

	_, err := p.ProcessPending(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestProcessor_RecentTransactions(t *testing.T) {
	p, _, transactions, _ := setupProcessorTest(5)
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	want := []*repository.Transaction{{ID: uuid.New()}}
	transactions.On("ListRecentTransactions", mock.Anything, now.AddDate(0, 0, -DefaultRecentDays)).Return(want, nil).Once()
	transactions.On("ListRecentTransactions", mock.Anything, now.AddDate(0, 0, -30)).Return(want, nil).Once()

	got, err := p.RecentTransactions(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = p.RecentTransactions(context.Background(), 30)
	require.NoError(t, err)
	transactions.AssertExpectations(t)
}

func TestProcessor_Stats(t *testing.T) {
	p, _, transactions, _ := setupProcessorTest(5)

	stats := &repository.Stats{Currencies: []repository.CurrencyTotals{{Currency: "USD", ExpenseCount: 2}}}
	transactions.On("Stats", mock.Anything).Return(stats, nil).Once()
	transactions.On("Stats", mock.Anything).Return(nil, errors.New("timeout")).Once()

	got, err := p.Stats(context.Background())
	require.NoError(t, err)
	assert.Same(t, stats, got)

	_, err = p.Stats(context.Background())
	assert.Error(t, err)
}

func TestProcessor_RunStopsOnCancel(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
	}{
		{name: "positive interval", interval: time.Hour},
		{name: "zero interval", interval: 0},
		{name: "negative interval", interval: -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, messages, _, _ := setupProcessorTest(5)
			ctx, cancel := context.WithCancel(context.Background())

			messages.On("ListUnprocessed", mock.Anything, 5).
				Return([]*captureRepo.PendingMessage{}, nil).
				Run(func(mock.Arguments) { cancel() })

			done := make(chan struct{})
			go func() {
				p.Run(ctx, tt.interval)
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not stop after cancellation")
			}
			messages.AssertNumberOfCalls(t, "ListUnprocessed", 1)
		})
	}
}
