package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"trade_desk/internal/domain"
	"trade_desk/internal/repository"
)

type AccountRequest struct {
	Payload  string
	Level    int
	OpenedBy string
	Notes    string
	AddedBy  domain.Actor
}

type AccountProcessor struct {
	store     repository.LedgerStore
	publisher EventPublisher
	now       func() time.Time
	logger    *slog.Logger
}

func NewAccountProcessor(store repository.LedgerStore, opts Options) *AccountProcessor {
	opts = opts.withDefaults()
	return &AccountProcessor{
		store:     store,
		publisher: opts.Publisher,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

func (p *AccountProcessor) AddAccount(ctx context.Context, req AccountRequest) (*domain.Account, error) {
	if strings.TrimSpace(req.Payload) == "" {
		return nil, domain.Validationf("account payload is required")
	}
	if strings.TrimSpace(req.OpenedBy) == "" {
		return nil, domain.Validationf("opened_by is required")
	}
	if req.Level < 0 {
		return nil, domain.Validationf("level must be a non-negative integer, got %d", req.Level)
	}

	var doc domain.AccountsDocument
	var account *domain.Account
	err := p.store.Update(ctx, repository.CollectionAccounts, &doc, func() error {
		now := p.now()
		account = &domain.Account{
			ID:        doc.NextID(),
			Payload:   req.Payload,
			Level:     req.Level,
			OpenedBy:  req.OpenedBy,
			Notes:     req.Notes,
			Status:    domain.StatusForLevel(req.Level),
			AddedBy:   req.AddedBy,
			CreatedAt: now,
			UpdatedAt: now,
		}
		doc.Accounts = append(doc.Accounts, account)
		doc.Backup = append(doc.Backup, account.Snapshot(now))
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "Account added",
		slog.String("account_id", account.ID),
		slog.Int("level", account.Level),
		slog.String("status", string(account.Status)))

	event := newEvent(domain.EventAccountCreated, account.ID, req.AddedBy, account.CreatedAt)
	event.To = string(account.Status)
	event.Payload = *account
	p.publisher.Publish(ctx, event)
	return account, nil
}

func (p *AccountProcessor) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var doc domain.AccountsDocument
	if err := p.store.Read(ctx, repository.CollectionAccounts, &doc); err != nil {
		return nil, err
	}
	if _, account := doc.Find(id); account != nil {
		return account, nil
	}
	return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
}

// UpdateAccount merges fields into the account. Status is left as is even
// when the level changes; use RecomputeStatus to derive it again.
func (p *AccountProcessor) UpdateAccount(ctx context.Context, id string, update domain.AccountUpdate) (*domain.Account, error) {
	if update.Empty() {
		return nil, domain.Validationf("no fields to update")
	}
	if update.Level != nil && *update.Level < 0 {
		return nil, domain.Validationf("level must be a non-negative integer, got %d", *update.Level)
	}

	var updated *domain.Account
	err := p.mutate(ctx, id, func(a *domain.Account) error {
		update.Apply(a)
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "Account updated", slog.String("account_id", id))
	return updated, nil
}

// RecomputeStatus derives the status from the current level. Banned
// accounts stay banned.
func (p *AccountProcessor) RecomputeStatus(ctx context.Context, id string, actor domain.Actor) (*domain.Account, error) {
	var updated *domain.Account
	var from domain.AccountStatus
	err := p.mutate(ctx, id, func(a *domain.Account) error {
		if a.Status == domain.AccountBanned {
			return &domain.TransitionError{Entity: "account", ID: id, Current: string(a.Status), Action: "recompute status"}
		}
		from = a.Status
		a.Status = domain.StatusForLevel(a.Level)
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated.Status == from {
		return updated, nil
	}
	p.statusChanged(ctx, updated, from, actor)
	return updated, nil
}

// MarkFinished moves the account to finished at the qualifying level
// regardless of its current state.
func (p *AccountProcessor) MarkFinished(ctx context.Context, id string, actor domain.Actor) (*domain.Account, error) {
	var updated *domain.Account
	var from domain.AccountStatus
	err := p.mutate(ctx, id, func(a *domain.Account) error {
		from = a.Status
		a.Status = domain.AccountFinished
		a.Level = domain.QualifyingLevel
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.statusChanged(ctx, updated, from, actor)
	return updated, nil
}

func (p *AccountProcessor) Ban(ctx context.Context, id, reason string, actor domain.Actor) (*domain.Account, error) {
	var updated *domain.Account
	var from domain.AccountStatus
	err := p.mutate(ctx, id, func(a *domain.Account) error {
		at := p.now()
		from = a.Status
		a.Status = domain.AccountBanned
		a.BanReason = reason
		a.BannedBy = &actor
		a.BannedAt = &at
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.WarnContext(ctx, "Account banned",
		slog.String("account_id", id),
		slog.String("reason", reason),
		slog.String("actor", actor.String()))
	p.statusChanged(ctx, updated, from, actor)
	return updated, nil
}

// DeleteAccount removes the live record. The backup trail keeps its copy.
func (p *AccountProcessor) DeleteAccount(ctx context.Context, id string, actor domain.Actor) error {
	var doc domain.AccountsDocument
	var removed *domain.Account
	err := p.store.Update(ctx, repository.CollectionAccounts, &doc, func() error {
		i, account := doc.Find(id)
		if account == nil {
			return fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
		}
		removed = account
		doc.Accounts = append(doc.Accounts[:i], doc.Accounts[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "Account deleted",
		slog.String("account_id", id),
		slog.String("actor", actor.String()))
	event := newEvent(domain.EventAccountDeleted, id, actor, p.now())
	event.From = string(removed.Status)
	p.publisher.Publish(ctx, event)
	return nil
}

// ListAccounts returns accounts in creation order, optionally filtered by
// exact status. An empty status returns everything.
func (p *AccountProcessor) ListAccounts(ctx context.Context, status domain.AccountStatus) ([]*domain.Account, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Validationf("unknown account status %q", status)
	}

	var doc domain.AccountsDocument
	if err := p.store.Read(ctx, repository.CollectionAccounts, &doc); err != nil {
		return nil, err
	}
	if status == "" {
		return doc.Accounts, nil
	}

	result := make([]*domain.Account, 0, len(doc.Accounts))
	for _, account := range doc.Accounts {
		if account.Status == status {
			result = append(result, account)
		}
	}
	return result, nil
}

func (p *AccountProcessor) ListBackup(ctx context.Context) ([]domain.AccountSnapshot, error) {
	var doc domain.AccountsDocument
	if err := p.store.Read(ctx, repository.CollectionAccounts, &doc); err != nil {
		return nil, err
	}
	return doc.Backup, nil
}

func (p *AccountProcessor) mutate(ctx context.Context, id string, fn func(*domain.Account) error) error {
	var doc domain.AccountsDocument
	return p.store.Update(ctx, repository.CollectionAccounts, &doc, func() error {
		_, account := doc.Find(id)
		if account == nil {
			return fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
		}
		if err := fn(account); err != nil {
			return err
		}
		account.UpdatedAt = p.now()
		return nil
	})
}

func (p *AccountProcessor) statusChanged(ctx context.Context, account *domain.Account, from domain.AccountStatus, actor domain.Actor) {
	p.logger.InfoContext(ctx, "Account status changed",
		slog.String("account_id", account.ID),
		slog.String("from", string(from)),
		slog.String("to", string(account.Status)))

	event := newEvent(domain.EventAccountStatusChanged, account.ID, actor, account.UpdatedAt)
	event.From = string(from)
	event.To = string(account.Status)
	event.Payload = *account
	p.publisher.Publish(ctx, event)
}
