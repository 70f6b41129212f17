package watchlist

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"stock_digest/internal/domain"
	"stock_digest/internal/membership"
	"stock_digest/internal/watchlist/mocks"
)

type ServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	store     *mocks.MockStore
	accounts  *mocks.MockAccountResolver
	publisher *mocks.MockPublisher

	service *Service
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.accounts = mocks.NewMockAccountResolver(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.service = NewService(s.store, s.accounts, s.publisher, logger)
	s.service.now = func() time.Time { return time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC) }
}

func (s *ServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) TestAdd_CreatedPublishesEvent() {
	ctx := context.Background()

	s.accounts.EXPECT().ResolveAccountID(ctx, "ann@example.com").Return("acc-1", nil)
	s.store.EXPECT().Add(ctx, "acc-1", "AAPL", "Apple Inc").Return(domain.AddCreated, nil)
	s.publisher.EXPECT().Publish(domain.MembershipChangeEvent{
		AccountID:   "acc-1",
		Symbol:      "AAPL",
		CompanyName: "Apple Inc",
		Action:      domain.MembershipAdded,
		OccurredAt:  time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC),
	})

	result, err := s.service.Add(ctx, " ann@example.com ", " aapl ", "Apple Inc")

	s.Require().NoError(err)
	s.Equal(domain.AddCreated, result)
}

func (s *ServiceTestSuite) TestAdd_AlreadyPresentDoesNotPublish() {
	ctx := context.Background()

	s.accounts.EXPECT().ResolveAccountID(ctx, "ann@example.com").Return("acc-1", nil)
	s.store.EXPECT().Add(ctx, "acc-1", "AAPL", "AAPL").Return(domain.AddAlreadyPresent, nil)

	result, err := s.service.Add(ctx, "ann@example.com", "AAPL", "")

	s.Require().NoError(err)
	s.Equal(domain.AddAlreadyPresent, result)
}

func (s *ServiceTestSuite) TestAdd_EmptySymbol() {
	_, err := s.service.Add(context.Background(), "ann@example.com", "  ", "Apple")

	s.ErrorIs(err, ErrInvalidSymbol)
}

func (s *ServiceTestSuite) TestAdd_UnknownAccount() {
	ctx := context.Background()

	s.accounts.EXPECT().ResolveAccountID(ctx, "ghost@example.com").Return("", domain.ErrAccountNotFound)

	_, err := s.service.Add(ctx, "ghost@example.com", "AAPL", "Apple")

	s.ErrorIs(err, domain.ErrAccountNotFound)
}

func (s *ServiceTestSuite) TestAdd_StoreErrorIsWrapped() {
	ctx := context.Background()
	storeErr := errors.New("connection reset")

	s.accounts.EXPECT().ResolveAccountID(ctx, "ann@example.com").Return("acc-1", nil)
	s.store.EXPECT().Add(ctx, "acc-1", "AAPL", "Apple").Return(domain.AddResult(""), storeErr)

	_, err := s.service.Add(ctx, "ann@example.com", "AAPL", "Apple")

	s.ErrorIs(err, storeErr)
	s.Contains(err.Error(), "add to watchlist")
}

func (s *ServiceTestSuite) TestRemove_RemovedPublishesEvent() {
	ctx := context.Background()

	s.accounts.EXPECT().ResolveAccountID(ctx, "ann@example.com").Return("acc-1", nil)
	s.store.EXPECT().Remove(ctx, "acc-1", "MSFT").Return(domain.RemoveRemoved, nil)
	s.publisher.EXPECT().Publish(gomock.Any()).Do(func(event domain.MembershipChangeEvent) {
		s.Equal(domain.MembershipRemoved, event.Action)
		s.Equal("MSFT", event.Symbol)
		s.Equal("acc-1", event.AccountID)
	})

	result, err := s.service.Remove(ctx, "ann@example.com", "msft")

	s.Require().NoError(err)
	s.Equal(domain.RemoveRemoved, result)
}

func (s *ServiceTestSuite) TestRemove_NotPresentDoesNotPublish() {
	ctx := context.Background()

	s.accounts.EXPECT().ResolveAccountID(ctx, "ann@example.com").Return("acc-1", nil)
	s.store.EXPECT().Remove(ctx, "acc-1", "MSFT").Return(domain.RemoveNotPresent, nil)

	result, err := s.service.Remove(ctx, "ann@example.com", "MSFT")

	s.Require().NoError(err)
	s.Equal(domain.RemoveNotPresent, result)
}

func (s *ServiceTestSuite) TestSymbols_UnknownAccountReturnsEmpty() {
	ctx := context.Background()

	s.accounts.EXPECT().ResolveAccountID(ctx, "ghost@example.com").Return("", domain.ErrAccountNotFound)

	symbols, err := s.service.Symbols(ctx, "ghost@example.com")

	s.ErrorIs(err, domain.ErrAccountNotFound)
	s.NotNil(symbols)
	s.Empty(symbols)
}

func (s *ServiceTestSuite) TestResolve_BlankEmail() {
	_, err := s.service.Resolve(context.Background(), "   ")

	s.ErrorIs(err, domain.ErrAccountNotFound)
}

func (s *ServiceTestSuite) TestResolve_BackendErrorIsWrapped() {
	ctx := context.Background()

	s.accounts.EXPECT().ResolveAccountID(ctx, "ann@example.com").Return("", errors.New("timeout"))

	_, err := s.service.Resolve(ctx, "ann@example.com")

	s.Error(err)
	s.NotErrorIs(err, domain.ErrAccountNotFound)
	s.Contains(err.Error(), "resolve account")
}

func (s *ServiceTestSuite) TestContains() {
	ctx := context.Background()

	s.accounts.EXPECT().ResolveAccountID(ctx, "ann@example.com").Return("acc-1", nil)
	s.store.EXPECT().Contains(ctx, "acc-1", "AAPL").Return(true, nil)

	ok, err := s.service.Contains(ctx, "ann@example.com", "aapl")

	s.Require().NoError(err)
	s.True(ok)
}

// The service publishes on a real bus so a View attached to it stays in sync
// with the store without re-reading it.
func TestService_ViewFollowsMutations(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	accounts := mocks.NewMockAccountResolver(ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	bus := membership.NewBus(logger)
	svc := NewService(store, accounts, bus, logger)

	view := membership.NewView("acc-1", []domain.WatchlistEntry{{AccountID: "acc-1", Symbol: "MSFT"}})
	detach := view.Attach(bus)
	defer detach()

	ctx := context.Background()
	accounts.EXPECT().ResolveAccountID(ctx, "ann@example.com").Return("acc-1", nil).Times(3)
	store.EXPECT().Add(ctx, "acc-1", "AAPL", "Apple").Return(domain.AddCreated, nil)
	store.EXPECT().Add(ctx, "acc-1", "AAPL", "Apple").Return(domain.AddAlreadyPresent, nil)
	store.EXPECT().Remove(ctx, "acc-1", "MSFT").Return(domain.RemoveRemoved, nil)

	if _, err := svc.Add(ctx, "ann@example.com", "AAPL", "Apple"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.Add(ctx, "ann@example.com", "AAPL", "Apple"); err != nil {
		t.Fatalf("second add: %v", err)
	}
	if _, err := svc.Remove(ctx, "ann@example.com", "MSFT"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if !view.Contains("aapl") {
		t.Error("view should contain AAPL")
	}
	if view.Contains("MSFT") {
		t.Error("view should not contain MSFT")
	}
	if got := view.Len(); got != 1 {
		t.Errorf("view.Len() = %d, want 1", got)
	}
}
