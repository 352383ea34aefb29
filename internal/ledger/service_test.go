package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueldrop-backend/pkg/db"
	"github.com/angelmondragon/fueldrop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fueldrop-backend/pkg/db/models"
	"github.com/angelmondragon/fueldrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()), client)
	require.NoError(t, err)
	return svc, client
}

func topUp(t *testing.T, svc Service, owner uuid.UUID, cents int64) {
	t.Helper()
	_, err := svc.Credit(context.Background(), nil, Entry{
		OwnerID:     owner,
		OwnerRole:   enums.ActorRoleCustomer,
		AmountCents: cents,
		Type:        enums.WalletTransactionTypeTopUp,
	})
	require.NoError(t, err)
}

func assertBalanceMatchesLog(t *testing.T, client *db.Client, owner uuid.UUID) int64 {
	t.Helper()
	var wallet models.Wallet
	require.NoError(t, client.DB().Where("owner_id = ?", owner).First(&wallet).Error)

	var sum int64
	require.NoError(t, client.DB().
		Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("wallet_id = ? AND status = ?", wallet.ID, enums.WalletTransactionStatusCompleted).
		Scan(&sum).Error)
	require.Equal(t, wallet.BalanceCents, sum, "balance must equal completed transaction sum")
	return wallet.BalanceCents
}

func TestBalanceCreatesWalletLazily(t *testing.T) {
	svc, _ := newTestService(t)
	owner := uuid.New()

	wallet, err := svc.Balance(context.Background(), owner, enums.ActorRoleDriver)
	require.NoError(t, err)
	require.Equal(t, int64(0), wallet.BalanceCents)
	require.Equal(t, enums.ActorRoleDriver, wallet.OwnerRole)

	again, err := svc.Balance(context.Background(), owner, enums.ActorRoleDriver)
	require.NoError(t, err)
	require.Equal(t, wallet.ID, again.ID)
}

func TestDebitMovesBalanceAndLogsSignedAmount(t *testing.T) {
	svc, client := newTestService(t)
	owner := uuid.New()
	orderID := uuid.New()
	topUp(t, svc, owner, 200000)

	txn, err := svc.Debit(context.Background(), nil, Entry{
		OwnerID:     owner,
		OwnerRole:   enums.ActorRoleCustomer,
		AmountCents: 150125,
		Type:        enums.WalletTransactionTypeOrderPayment,
		Reason:      "order FD-20250101-000001",
		OrderID:     &orderID,
	})
	require.NoError(t, err)
	require.Equal(t, int64(-150125), txn.AmountCents)
	require.Equal(t, int64(49875), assertBalanceMatchesLog(t, client, owner))
}

func TestDebitInsufficientFundsWritesNothing(t *testing.T) {
	svc, client := newTestService(t)
	owner := uuid.New()
	topUp(t, svc, owner, 1000)

	_, err := svc.Debit(context.Background(), nil, Entry{
		OwnerID:     owner,
		OwnerRole:   enums.ActorRoleCustomer,
		AmountCents: 1001,
		Type:        enums.WalletTransactionTypeOrderPayment,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds), "got %v", err)

	var count int64
	require.NoError(t, client.DB().Model(&models.WalletTransaction{}).Count(&count).Error)
	require.Equal(t, int64(1), count, "only the top up should be logged")
	require.Equal(t, int64(1000), assertBalanceMatchesLog(t, client, owner))
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	svc, client := newTestService(t)
	owner := uuid.New()
	topUp(t, svc, owner, 5000)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		rejected int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(context.Background(), nil, Entry{
				OwnerID:     owner,
				OwnerRole:   enums.ActorRoleCustomer,
				AmountCents: 1000,
				Type:        enums.WalletTransactionTypeWithdrawal,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
			} else if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds) {
				rejected++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 5, success)
	require.Equal(t, 5, rejected)
	require.Equal(t, int64(0), assertBalanceMatchesLog(t, client, owner))
}

func TestCreditOnceAppliesSinglePayout(t *testing.T) {
	svc, client := newTestService(t)
	driver := uuid.New()
	orderID := uuid.New()
	entry := Entry{
		OwnerID:     driver,
		OwnerRole:   enums.ActorRoleDriver,
		AmountCents: 2800,
		Type:        enums.WalletTransactionTypeDriverEarning,
		OrderID:     &orderID,
	}

	first, applied, err := svc.CreditOnce(context.Background(), nil, entry)
	require.NoError(t, err)
	require.True(t, applied)
	require.NotNil(t, first)

	_, applied, err = svc.CreditOnce(context.Background(), nil, entry)
	require.NoError(t, err)
	require.False(t, applied)

	require.Equal(t, int64(2800), assertBalanceMatchesLog(t, client, driver))
}

func TestCreditOnceRequiresOrder(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.CreditOnce(context.Background(), nil, Entry{
		OwnerID:     uuid.New(),
		OwnerRole:   enums.ActorRoleStation,
		AmountCents: 10,
		Type:        enums.WalletTransactionTypeStationEarning,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDebitJoinsCallerTransaction(t *testing.T) {
	svc, client := newTestService(t)
	owner := uuid.New()
	topUp(t, svc, owner, 5000)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if _, err := svc.Debit(context.Background(), tx, Entry{
			OwnerID:     owner,
			OwnerRole:   enums.ActorRoleCustomer,
			AmountCents: 4000,
			Type:        enums.WalletTransactionTypeOrderPayment,
		}); err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "station out of fuel")
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	require.Equal(t, int64(5000), assertBalanceMatchesLog(t, client, owner), "rollback must undo the debit")
}

func TestTransactionsPaginatesNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	owner := uuid.New()
	for i := 1; i <= 3; i++ {
		topUp(t, svc, owner, int64(i*100))
	}

	page, err := svc.Transactions(context.Background(), owner, enums.ActorRoleCustomer, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.Transactions(context.Background(), owner, enums.ActorRoleCustomer, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Transactions, 1)
	require.Empty(t, rest.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, txn := range append(page.Transactions, rest.Transactions...) {
		require.False(t, seen[txn.ID])
		seen[txn.ID] = true
	}
}

func TestEntryValidation(t *testing.T) {
	svc, _ := newTestService(t)
	cases := []Entry{
		{OwnerRole: enums.ActorRoleCustomer, AmountCents: 1, Type: enums.WalletTransactionTypeTopUp},
		{OwnerID: uuid.New(), OwnerRole: "alien", AmountCents: 1, Type: enums.WalletTransactionTypeTopUp},
		{OwnerID: uuid.New(), OwnerRole: enums.ActorRoleCustomer, AmountCents: 0, Type: enums.WalletTransactionTypeTopUp},
		{OwnerID: uuid.New(), OwnerRole: enums.ActorRoleCustomer, AmountCents: 1, Type: "bonus"},
	}
	for i, entry := range cases {
		_, err := svc.Credit(context.Background(), nil, entry)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "case %d: %v", i, err)
	}
}
