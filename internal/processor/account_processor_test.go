package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	"trade_desk/internal/domain"
	"trade_desk/internal/repository"
	"trade_desk/internal/repository/file"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addAccount(t *testing.T, p *AccountProcessor, level int) *domain.Account {
	t.Helper()
	account, err := p.AddAccount(context.Background(), AccountRequest{
		Payload:  fmt.Sprintf("login:pass level %d", level),
		Level:    level,
		OpenedBy: "opener",
		AddedBy:  domain.Actor{ID: "staff-1", Name: "staff"},
	})
	require.NoError(t, err)
	return account
}

func TestAddAccountDerivesStatusFromLevel(t *testing.T) {
	h := newHarness(t)

	finished := addAccount(t, h.accounts, 15)
	unfinished := addAccount(t, h.accounts, 9)

	assert.Equal(t, domain.AccountFinished, finished.Status)
	assert.Equal(t, domain.AccountNotFinished, unfinished.Status)
	assert.Equal(t, "staff", finished.AddedBy.Name)

	backup, err := h.accounts.ListBackup(context.Background())
	require.NoError(t, err)
	require.Len(t, backup, 2)
	assert.Equal(t, finished.ID, backup[0].ID)
	assert.Equal(t, domain.AccountFinished, backup[0].Status)
}

func TestAddAccountValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.accounts.AddAccount(ctx, AccountRequest{Payload: "", Level: 1, OpenedBy: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.accounts.AddAccount(ctx, AccountRequest{Payload: "p", Level: -1, OpenedBy: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.accounts.AddAccount(ctx, AccountRequest{Payload: "p", Level: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	accounts, err := h.accounts.ListAccounts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestAccountIDsNeverReused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := addAccount(t, h.accounts, 1)
	second := addAccount(t, h.accounts, 1)
	third := addAccount(t, h.accounts, 1)
	require.NoError(t, h.accounts.DeleteAccount(ctx, second.ID, domain.Actor{}))
	fourth := addAccount(t, h.accounts, 1)

	assert.Equal(t, []string{"ACC-0001", "ACC-0002", "ACC-0003", "ACC-0004"},
		[]string{first.ID, second.ID, third.ID, fourth.ID})

	// Deleting the newest account must not free its id either.
	require.NoError(t, h.accounts.DeleteAccount(ctx, fourth.ID, domain.Actor{}))
	fifth := addAccount(t, h.accounts, 1)
	assert.Equal(t, "ACC-0005", fifth.ID)
}

func TestDeleteAccountKeepsBackup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := addAccount(t, h.accounts, 3)

	require.NoError(t, h.accounts.DeleteAccount(ctx, account.ID, domain.Actor{Name: "admin"}))

	_, err := h.accounts.GetAccount(ctx, account.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	backup, err := h.accounts.ListBackup(ctx)
	require.NoError(t, err)
	require.Len(t, backup, 1)
	assert.Equal(t, account.ID, backup[0].ID)

	assert.ErrorIs(t, h.accounts.DeleteAccount(ctx, account.ID, domain.Actor{}), domain.ErrNotFound)
}

func TestUpdateAccountDoesNotRecomputeStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := addAccount(t, h.accounts, 9)

	h.clock.Advance(time.Minute)
	level := 20
	updated, err := h.accounts.UpdateAccount(ctx, account.ID, domain.AccountUpdate{Level: &level})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.Level)
	assert.Equal(t, domain.AccountNotFinished, updated.Status)
	assert.True(t, updated.UpdatedAt.After(account.UpdatedAt))

	recomputed, err := h.accounts.RecomputeStatus(ctx, account.ID, domain.Actor{})
	require.NoError(t, err)
	assert.Equal(t, domain.AccountFinished, recomputed.Status)
}

func TestRecomputeStatusUnchangedPublishesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := addAccount(t, h.accounts, 9)
	before := len(h.publisher.types())

	recomputed, err := h.accounts.RecomputeStatus(ctx, account.ID, domain.Actor{ID: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.AccountNotFinished, recomputed.Status)
	assert.Len(t, h.publisher.types(), before)
}

func TestUpdateAccountRejectsEmptyAndNegative(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := addAccount(t, h.accounts, 9)

	_, err := h.accounts.UpdateAccount(ctx, account.ID, domain.AccountUpdate{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	negative := -4
	_, err = h.accounts.UpdateAccount(ctx, account.ID, domain.AccountUpdate{Level: &negative})
	assert.ErrorIs(t, err, domain.ErrValidation)

	notes := "x"
	_, err = h.accounts.UpdateAccount(ctx, "ACC-9999", domain.AccountUpdate{Notes: &notes})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBanAndStatusOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := addAccount(t, h.accounts, 4)
	admin := domain.Actor{ID: "a1", Name: "admin"}

	banned, err := h.accounts.Ban(ctx, account.ID, "chargeback", admin)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountBanned, banned.Status)
	assert.Equal(t, "chargeback", banned.BanReason)
	require.NotNil(t, banned.BannedBy)
	assert.Equal(t, "admin", banned.BannedBy.Name)
	require.NotNil(t, banned.BannedAt)

	_, err = h.accounts.RecomputeStatus(ctx, account.ID, admin)
	var te *domain.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, string(domain.AccountBanned), te.Current)

	finished, err := h.accounts.MarkFinished(ctx, account.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountFinished, finished.Status)
	assert.Equal(t, domain.QualifyingLevel, finished.Level)
}

func TestListAccountsFiltersByStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	addAccount(t, h.accounts, 1)
	finished := addAccount(t, h.accounts, 15)
	addAccount(t, h.accounts, 2)

	list, err := h.accounts.ListAccounts(ctx, domain.AccountFinished)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, finished.ID, list[0].ID)

	all, err := h.accounts.ListAccounts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = h.accounts.ListAccounts(ctx, "sold")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAccountEventsPublished(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := addAccount(t, h.accounts, 1)
	_, err := h.accounts.MarkFinished(ctx, account.ID, domain.Actor{})
	require.NoError(t, err)
	require.NoError(t, h.accounts.DeleteAccount(ctx, account.ID, domain.Actor{}))

	assert.Equal(t, []domain.EventType{
		domain.EventAccountCreated,
		domain.EventAccountStatusChanged,
		domain.EventAccountDeleted,
	}, h.publisher.types())
	assert.Equal(t, string(domain.AccountNotFinished), h.publisher.events[1].From)
	assert.Equal(t, string(domain.AccountFinished), h.publisher.events[1].To)
}

func TestConcurrentAccountUpdatesPersist(t *testing.T) {
	store, err := file.NewStore(t.TempDir(), nil, nil)
	require.NoError(t, err)
	opts := Options{Now: newTestClock().Now}
	accounts := NewAccountProcessor(store, opts)
	ctx := context.Background()

	a := addAccount(t, accounts, 1)
	b := addAccount(t, accounts, 1)

	notesA, notesB := "edited by one", "edited by two"
	level := 12
	var wg sync.WaitGroup
	for _, fn := range []func() error{
		func() error {
			_, err := accounts.UpdateAccount(ctx, a.ID, domain.AccountUpdate{Notes: &notesA})
			return err
		},
		func() error {
			_, err := accounts.UpdateAccount(ctx, b.ID, domain.AccountUpdate{Notes: &notesB})
			return err
		},
		func() error {
			_, err := accounts.UpdateAccount(ctx, a.ID, domain.AccountUpdate{Level: &level})
			return err
		},
	} {
		wg.Add(1)
		go func(fn func() error) {
			defer wg.Done()
			assert.NoError(t, fn())
		}(fn)
	}
	wg.Wait()

	var doc domain.AccountsDocument
	require.NoError(t, store.Read(ctx, repository.CollectionAccounts, &doc))
	_, gotA := doc.Find(a.ID)
	_, gotB := doc.Find(b.ID)
	require.NotNil(t, gotA)
	require.NotNil(t, gotB)
	assert.Equal(t, notesA, gotA.Notes)
	assert.Equal(t, 12, gotA.Level)
	assert.Equal(t, notesB, gotB.Notes)
}
