package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/quick-capture/internal/domain/capture/parser"
	"github.com/FACorreiaa/quick-capture/internal/domain/capture/repository"
	"github.com/FACorreiaa/quick-capture/internal/domain/common"
	"github.com/FACorreiaa/quick-capture/pkg/observability"
)

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) SaveMessage(ctx context.Context, msg *repository.PendingMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockMessageRepo) GetMessage(ctx context.Context, id uuid.UUID) (*repository.PendingMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PendingMessage), args.Error(1)
}

func (m *MockMessageRepo) ListUnprocessed(ctx context.Context, limit int) ([]*repository.PendingMessage, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.PendingMessage), args.Error(1)
}

func (m *MockMessageRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockMessageRepo) ListRecentMessages(ctx context.Context, userID int64, limit int) ([]*repository.PendingMessage, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.PendingMessage), args.Error(1)
}

func setupCaptureServiceTest() (*CaptureServiceImpl, *MockMessageRepo) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := new(MockMessageRepo)
	return NewCaptureService(parser.New(), repo, 64, logger), repo
}

func TestCaptureService_Validate(t *testing.T) {
	svc, _ := setupCaptureServiceTest()

	assert.NoError(t, svc.Validate("coffee 5"))
	assert.ErrorIs(t, svc.Validate("   "), common.ErrBadRequest)
	assert.ErrorIs(t, svc.Validate(strings.Repeat("a", 65)), common.ErrBadRequest)
	assert.NoError(t, svc.Validate(strings.Repeat("a", 64)))
}

func TestCaptureService_ParseCountsOutcome(t *testing.T) {
	svc, repo := setupCaptureServiceTest()
	counter := observability.MessagesTotal.WithLabelValues("expense", "3")
	before := testutil.ToFloat64(counter)

	msg := svc.Parse(context.Background(), "spent 8.60 on book")

	assert.Equal(t, parser.KindExpense, msg.Kind)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
	repo.AssertNotCalled(t, "SaveMessage", mock.Anything, mock.Anything)
}

func TestCaptureService_Capture(t *testing.T) {
	svc, repo := setupCaptureServiceTest()
	sender := common.Sender{UserID: 42, Username: "ana", ChatID: 7}

	repo.On("SaveMessage", mock.Anything, mock.MatchedBy(func(m *repository.PendingMessage) bool {
		return m.UserID == 42 && m.ChatID == 7 && m.Kind == parser.KindIncome && m.RawMessage == "Earned 200 from client"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*repository.PendingMessage).ID = uuid.New()
	}).Return(nil)

	msg, err := svc.Capture(context.Background(), sender, "Earned 200 from client")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.Equal(t, parser.Yes, msg.IsIncome)
	repo.AssertExpectations(t)
}

func TestCaptureService_CaptureStoresUnclear(t *testing.T) {
	svc, repo := setupCaptureServiceTest()

	repo.On("SaveMessage", mock.Anything, mock.MatchedBy(func(m *repository.PendingMessage) bool {
		return m.Kind == parser.KindUnclear && !m.Amount.Valid
	})).Return(nil)

	_, err := svc.Capture(context.Background(), common.Sender{UserID: 1}, "asdfasdf")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestCaptureService_CaptureSkipsCommands(t *testing.T) {
	svc, repo := setupCaptureServiceTest()

	msg, err := svc.Capture(context.Background(), common.Sender{UserID: 1}, "/stats")
	require.NoError(t, err)
	assert.Equal(t, parser.KindCommand, msg.Kind)
	assert.Equal(t, uuid.Nil, msg.ID)
	repo.AssertNotCalled(t, "SaveMessage", mock.Anything, mock.Anything)
}

func TestCaptureService_CaptureSaveError(t *testing.T) {
	svc, repo := setupCaptureServiceTest()
	boom := errors.New("database is locked")
	repo.On("SaveMessage", mock.Anything, mock.Anything).Return(boom)

	_, err := svc.Capture(context.Background(), common.Sender{UserID: 1}, "coffee 5")
	assert.ErrorIs(t, err, boom)
}

func TestCaptureService_RecentMessagesClampsLimit(t *testing.T) {
	svc, repo := setupCaptureServiceTest()
	want := []*repository.PendingMessage{{RawMessage: "coffee 5"}}

	repo.On("ListRecentMessages", mock.Anything, int64(42), DefaultRecentLimit).Return(want, nil).Once()
	repo.On("ListRecentMessages", mock.Anything, int64(42), MaxRecentLimit).Return(want, nil).Once()
	repo.On("ListRecentMessages", mock.Anything, int64(42), 3).Return(nil, errors.New("boom")).Once()

	got, err := svc.RecentMessages(context.Background(), 42, 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = svc.RecentMessages(context.Background(), 42, 1000)
	require.NoError(t, err)

	_, err = svc.RecentMessages(context.Background(), 42, 3)
	assert.Error(t, err)
	repo.AssertExpectations(t)
}
