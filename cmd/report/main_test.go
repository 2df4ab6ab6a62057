package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgerservice "github.com/FACorreiaa/quick-capture/internal/domain/ledger/service"
)

type fakeLedger struct {
	ledgerservice.LedgerService

	period  ledgerservice.PeriodRequest
	weeks   int
	taxYear int
}

func (f *fakeLedger) Summary(_ context.Context, req ledgerservice.PeriodRequest) (*ledgerservice.PeriodSummary, error) {
	f.period = req
	period, err := req.Resolve(time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, err
	}
	return ledgerservice.Summarize(period, nil), nil
}

func (f *fakeLedger) CompareWeeks(_ context.Context, n int) (*ledgerservice.WeekComparison, error) {
	f.weeks = n
	return &ledgerservice.WeekComparison{}, nil
}

func (f *fakeLedger) TaxReport(_ context.Context, year int) (*ledgerservice.TaxReport, error) {
	f.taxYear = year
	return ledgerservice.BuildTaxReport(year, nil, nil), nil
}

func TestBuild(t *testing.T) {
	svc := &fakeLedger{}

	text, err := build(context.Background(), svc, options{taxYear: 2024, compare: 3})
	require.NoError(t, err)
	assert.Contains(t, text, "TAX RECORDS FOR 2024")
	assert.Equal(t, 2024, svc.taxYear)
	assert.Zero(t, svc.weeks)

	text, err = build(context.Background(), svc, options{compare: 3})
	require.NoError(t, err)
	assert.Contains(t, text, "Weekly trends")
	assert.Equal(t, 3, svc.weeks)

	text, err = build(context.Background(), svc, options{period: ledgerservice.PeriodRequest{Kind: ledgerservice.PeriodQuarter, Quarter: 2}})
	require.NoError(t, err)
	assert.Contains(t, text, "Summary for Q2 2025")
}

func TestParseDates(t *testing.T) {
	opts := options{from: "2025-03-01", to: "2025-03-05"}
	require.NoError(t, opts.parseDates())
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), opts.period.From)
	assert.Equal(t, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), opts.period.To)

	bad := options{from: "03/01/2025"}
	assert.Error(t, bad.parseDates())
}
