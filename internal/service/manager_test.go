package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/Dan9191/plutus/internal/config"
	"github.com/Dan9191/plutus/internal/confidential"
	"github.com/Dan9191/plutus/internal/gateway"
	"github.com/Dan9191/plutus/internal/ledger"
	"github.com/Dan9191/plutus/internal/models"
	"github.com/Dan9191/plutus/internal/records"
	"github.com/Dan9191/plutus/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	dataURL    = "https://provider.test/fetch-data"
	lendingURL = "https://venue.test/request-loan"
)

// MockGateway is a mock implementation of Gateway for testing
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Fetch(ctx context.Context, endpoint, authToken string) (gateway.RawResponse, error) {
	args := m.Called(ctx, endpoint, authToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(gateway.RawResponse), args.Error(1)
}

func (m *MockGateway) Submit(ctx context.Context, endpoint, key string, payload []byte) (gateway.Response, error) {
	args := m.Called(ctx, endpoint, key, payload)
	return args.Get(0).(gateway.Response), args.Error(1)
}

type fixedRate float64

func (f fixedRate) ReferenceRate(context.Context) (float64, error) { return float64(f), nil }

type failingRate struct{ err error }

func (f failingRate) ReferenceRate(context.Context) (float64, error) { return 0, f.err }

type failingStore struct{}

func (failingStore) Put(context.Context, string, string, []byte) error {
	return errors.New("disk full")
}

func (failingStore) Get(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, errors.New("unreachable")
}

func testConfig() *config.Config {
	return &config.Config{AccountID: "acct-1", FinancialDataURL: dataURL, LendingURL: lendingURL}
}

func testSealer(t *testing.T) confidential.Sealer {
	t.Helper()
	s, err := confidential.NewAESSealer(bytes.Repeat([]byte{9}, 32), []byte("mac-key"))
	require.NoError(t, err)
	return s
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestManager(t *testing.T, gw Gateway, store repository.SealedStore) *Manager {
	t.Helper()
	return NewManager(testConfig(), testSealer(t), gw, store, fixedRate(0.21), testLogger())
}

func withSnapshot(t *testing.T, m *Manager, gw *MockGateway, raw string) {
	t.Helper()
	ctx := context.Background()
	gw.On("Fetch", ctx, dataURL, "plaid-token").Return(gateway.RawResponse(raw), nil).Once()
	require.NoError(t, m.FetchFinancialData(ctx, "plaid-token"))
}

func TestViewBankBalance(t *testing.T) {
	gw := new(MockGateway)
	m := newTestManager(t, gw, nil)
	withSnapshot(t, m, gw, `{"credit_history":[],"bank_balance":10000}`)

	balance, err := m.ViewBankBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Current Bank Balance: 10000", balance)
}

func TestViewTransactionSummary(t *testing.T) {
	gw := new(MockGateway)
	m := newTestManager(t, gw, nil)
	withSnapshot(t, m, gw, `{"bank_balance":5000,"credit_history":[
		{"amount":500,"date":1633024000,"description":"Coffee"},
		{"amount":1000,"date":1633110400,"description":"Groceries"}]}`)

	summary, err := m.ViewTransactionSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"Date: 1633024000, Amount: 500, Description: Coffee\nDate: 1633110400, Amount: 1000, Description: Groceries",
		summary)
}

func TestViewsBeforeFetch(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, new(MockGateway), nil)

	_, err := m.ViewBankBalance(ctx)
	assert.ErrorIs(t, err, confidential.ErrNotInitialized)
	_, err = m.ViewTransactionSummary(ctx)
	assert.ErrorIs(t, err, confidential.ErrNotInitialized)
	_, err = m.AnalyzeFinancials(ctx, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, confidential.ErrNotInitialized)
	_, err = m.ViewFinancialStatus(ctx)
	assert.ErrorIs(t, err, confidential.ErrNotInitialized)

	status, err := m.ViewLoanStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, status)
	track, err := m.TrackRepayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, MsgNoRepaymentsDue, track)
}

func TestAnalyzeFinancials(t *testing.T) {
	gw := new(MockGateway)
	m := newTestManager(t, gw, nil)
	withSnapshot(t, m, gw, `{"bank_balance":10000}`)

	tests := []struct {
		amount int64
		want   string
	}{
		{amount: 0, want: MsgAffordable},
		{amount: 9999, want: MsgAffordable},
		{amount: 10000, want: MsgAffordable},
		{amount: 10001, want: MsgInsufficientFunds},
	}
	for _, tt := range tests {
		got, err := m.AnalyzeFinancials(context.Background(), decimal.NewFromInt(tt.amount))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "amount %d", tt.amount)
	}

	_, err := m.AnalyzeFinancials(context.Background(), decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, models.ErrInvalidAmount)
}

func TestFetchFinancialData_Errors(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	m := newTestManager(t, gw, nil)

	gw.On("Fetch", ctx, dataURL, "bad").Return(nil, &gateway.TransportError{Op: "fetch", Endpoint: dataURL, Err: errors.New("401")}).Once()
	err := m.FetchFinancialData(ctx, "bad")
	assert.ErrorIs(t, err, records.ErrTransportFailure)

	gw.On("Fetch", ctx, dataURL, "garbled").Return(gateway.RawResponse(`{"bank_balance":"lots"}`), nil).Once()
	err = m.FetchFinancialData(ctx, "garbled")
	assert.ErrorIs(t, err, records.ErrMalformedPayload)
}

func TestRequestLoan(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	m := newTestManager(t, gw, nil)
	gw.On("Submit", ctx, lendingURL, mock.Anything, mock.Anything).Return(gateway.Response{StatusCode: http.StatusOK}, nil).Once()

	msg, err := m.RequestLoan(ctx, decimal.NewFromInt(2000), 0.05, 30)
	require.NoError(t, err)
	assert.Equal(t, MsgLoanRequested, msg)

	status, err := m.ViewLoanStatus(ctx)
	require.NoError(t, err)
	assert.Contains(t, status, "Loan Amount: 2000")
	assert.Equal(t, "Loan Amount: 2000, Interest Rate: 0.05, Duration: 30 days", status)
	gw.AssertExpectations(t)
}

func TestRequestLoan_RejectedStaysRecorded(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	m := newTestManager(t, gw, nil)
	gw.On("Submit", ctx, lendingURL, mock.Anything, mock.Anything).Return(gateway.Response{StatusCode: http.StatusServiceUnavailable}, nil).Once()

	msg, err := m.RequestLoan(ctx, decimal.NewFromInt(700), 0.1, 14)
	require.NoError(t, err)
	assert.Equal(t, MsgLoanFailed, msg)

	status, err := m.ViewLoanStatus(ctx)
	require.NoError(t, err)
	assert.Contains(t, status, "Loan Amount: 700")
}

func TestRequestLoan_TransportErrorStaysRecorded(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	m := newTestManager(t, gw, nil)
	gw.On("Submit", ctx, lendingURL, mock.Anything, mock.Anything).
		Return(gateway.Response{}, &gateway.TransportError{Op: "submit", Endpoint: lendingURL, Err: errors.New("timeout")}).Once()

	_, err := m.RequestLoan(ctx, decimal.NewFromInt(700), 0.1, 14)
	var te *gateway.TransportError
	require.True(t, errors.As(err, &te))

	status, err := m.ViewLoanStatus(ctx)
	require.NoError(t, err)
	assert.Contains(t, status, "Loan Amount: 700")
}

func TestRequestLoan_ValidationNeverSubmits(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	m := newTestManager(t, gw, nil)

	_, err := m.RequestLoan(ctx, decimal.Zero, 0.05, 30)
	assert.ErrorIs(t, err, ledger.ErrNonPositiveAmount)
	_, err = m.RequestLoan(ctx, decimal.NewFromInt(1), 1.5, 30)
	assert.ErrorIs(t, err, ledger.ErrInvalidRate)
	_, err = m.RequestLoan(ctx, decimal.NewFromInt(1), 0.5, 0)
	assert.ErrorIs(t, err, ledger.ErrNonPositiveDuration)

	gw.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	status, err := m.ViewLoanStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestTrackRepayments(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, new(MockGateway), nil)

	_, err := m.ScheduleRepayment(ctx, decimal.Zero, 1633024000)
	require.NoError(t, err)
	msg, err := m.ScheduleRepayment(ctx, decimal.NewFromInt(2100), 1635616000)
	require.NoError(t, err)
	assert.Equal(t, "Repayment scheduled: 2100 before 1635616000", msg)
	_, err = m.ScheduleRepayment(ctx, decimal.NewFromInt(50), 1634000000)
	require.NoError(t, err)

	track, err := m.TrackRepayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Payment due: 2100 before 1635616000", track)
}

func TestViewFinancialStatus(t *testing.T) {
	ctx := context.Background()
	gw := new(MockGateway)
	m := newTestManager(t, gw, nil)
	withSnapshot(t, m, gw, `{"bank_balance":5000,"credit_history":[
		{"amount":500,"date":1,"description":"Coffee"},
		{"amount":1000,"date":2,"description":"Groceries"}]}`)
	gw.On("Submit", ctx, lendingURL, mock.Anything, mock.Anything).Return(gateway.Response{StatusCode: http.StatusOK}, nil)

	_, err := m.RequestLoan(ctx, decimal.NewFromInt(2000), 0.05, 30)
	require.NoError(t, err)
	_, err = m.ScheduleRepayment(ctx, decimal.NewFromInt(100), 10)
	require.NoError(t, err)
	_, err = m.ScheduleRepayment(ctx, decimal.Zero, 20)
	require.NoError(t, err)

	status, err := m.ViewFinancialStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bank Balance: 5000\nCredit Transactions: 2\nOutstanding Loans: 1\nRepayments Due: 1", status)
}

func TestPersistAndRestore(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	gw := new(MockGateway)
	m := newTestManager(t, gw, store)
	withSnapshot(t, m, gw, `{"bank_balance":321,"credit_history":[{"amount":1,"date":2,"description":"secret purchase"}]}`)
	gw.On("Submit", ctx, lendingURL, mock.Anything, mock.Anything).Return(gateway.Response{StatusCode: http.StatusOK}, nil)
	_, err := m.RequestLoan(ctx, decimal.NewFromInt(900), 0.2, 60)
	require.NoError(t, err)
	_, err = m.ScheduleRepayment(ctx, decimal.NewFromInt(950), 99)
	require.NoError(t, err)

	blob, ok, err := store.Get(ctx, "acct-1", repository.SlotSnapshot)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, strings.Contains(string(blob), "secret purchase"))

	restored := newTestManager(t, new(MockGateway), store)
	require.NoError(t, restored.Restore(ctx))

	balance, err := restored.ViewBankBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Current Bank Balance: 321", balance)
	status, err := restored.ViewLoanStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Loan Amount: 900, Interest Rate: 0.2, Duration: 60 days", status)
	track, err := restored.TrackRepayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Payment due: 950 before 99", track)
}

func TestPersistFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, new(MockGateway), failingStore{})

	_, err := m.ScheduleRepayment(ctx, decimal.NewFromInt(10), 1)
	require.NoError(t, err)
	track, err := m.TrackRepayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Payment due: 10 before 1", track)

	assert.Error(t, m.Restore(ctx))
}

func TestAccessDenied(t *testing.T) {
	ctx := context.Background()
	denied := confidential.Guard(testSealer(t), func(context.Context) error { return errors.New("missing permit") })
	gw := new(MockGateway)
	m := NewManager(testConfig(), denied, gw, nil, nil, testLogger())
	gw.On("Fetch", ctx, dataURL, "tok").Return(gateway.RawResponse(`{"bank_balance":1}`), nil)

	require.NoError(t, m.FetchFinancialData(ctx, "tok"))
	_, err := m.ViewBankBalance(ctx)
	assert.ErrorIs(t, err, confidential.ErrDecryptionFailed)
	_, err = m.ViewFinancialStatus(ctx)
	assert.ErrorIs(t, err, confidential.ErrDecryptionFailed)
}

func TestQuoteRate(t *testing.T) {
	m := newTestManager(t, new(MockGateway), nil)
	rate, err := m.QuoteRate(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.21, rate, 1e-9)

	bare := NewManager(testConfig(), testSealer(t), new(MockGateway), nil, nil, testLogger())
	_, err = bare.QuoteRate(context.Background())
	assert.ErrorIs(t, err, ErrNoRateProvider)
}

func TestQuoteRate_SourceFailure(t *testing.T) {
	cause := errors.New("cbr: unexpected status 503")
	m := NewManager(testConfig(), testSealer(t), new(MockGateway), nil, failingRate{err: cause}, testLogger())

	_, err := m.QuoteRate(context.Background())
	assert.ErrorIs(t, err, ErrRateUnavailable)
	assert.ErrorIs(t, err, cause)
}
