package repository

import (
	"context"
	"errors"
	"time"
	"trade_desk/internal/domain"
)

type Collection string

const (
	CollectionAccounts Collection = "accounts"
	CollectionTickets  Collection = "tickets"
	CollectionStats    Collection = "stats"
	CollectionConfig   Collection = "config"
)

var Collections = []Collection{
	CollectionAccounts,
	CollectionTickets,
	CollectionStats,
	CollectionConfig,
}

// Document is a whole collection as persisted. Reset installs the empty
// default shape; Normalize repairs missing keys after a decode.
type Document interface {
	Reset()
	Normalize()
}

// LedgerStore persists whole documents per collection. Writes are atomic with
// respect to crashes and serialized per collection within one process.
// Mutual exclusion across processes is not provided: run a single writer.
type LedgerStore interface {
	// Read decodes the current document into doc. A missing document is
	// created with its default shape; an unreadable one decodes as default.
	Read(ctx context.Context, c Collection, doc Document) error

	// Write replaces the document atomically.
	Write(ctx context.Context, c Collection, doc Document) error

	// Update runs a read-modify-write cycle under the collection lock.
	// If mutate returns an error nothing is persisted.
	Update(ctx context.Context, c Collection, doc Document, mutate func() error) error
}

// StoreObserver receives store health signals. Implemented by pkg/metrics.
type StoreObserver interface {
	ObserveFallback(c Collection, reason error)
	ObserveWrite(c Collection, d time.Duration, err error)
}

type NopObserver struct{}

func (NopObserver) ObserveFallback(Collection, error)             {}
func (NopObserver) ObserveWrite(Collection, time.Duration, error) {}

// NewDocument returns an empty document of the type stored in c.
func NewDocument(c Collection) Document {
	var doc Document
	switch c {
	case CollectionAccounts:
		doc = &domain.AccountsDocument{}
	case CollectionTickets:
		doc = &domain.TicketsDocument{}
	case CollectionStats:
		doc = &domain.StatsDocument{}
	case CollectionConfig:
		doc = &domain.ConfigDocument{}
	default:
		return nil
	}
	doc.Reset()
	return doc
}

var ErrUnknownCollection = errors.New("unknown collection")
