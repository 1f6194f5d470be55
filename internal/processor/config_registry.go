package processor

import (
	"context"
	"fmt"
	"strings"
	"trade_desk/internal/domain"
	"trade_desk/internal/repository"
)

// ConfigRegistry stores small cross-restart pointers for the presentation
// layer, such as which rendered summary message to keep refreshing.
type ConfigRegistry struct {
	store repository.LedgerStore
}

func NewConfigRegistry(store repository.LedgerStore) *ConfigRegistry {
	return &ConfigRegistry{store: store}
}

func (r *ConfigRegistry) Get(ctx context.Context, key string) (string, error) {
	var doc domain.ConfigDocument
	if err := r.store.Read(ctx, repository.CollectionConfig, &doc); err != nil {
		return "", err
	}
	value, ok := doc[key]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: config key %s", domain.ErrNotFound, key)
	}
	return value, nil
}

func (r *ConfigRegistry) All(ctx context.Context) (domain.ConfigDocument, error) {
	var doc domain.ConfigDocument
	if err := r.store.Read(ctx, repository.CollectionConfig, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *ConfigRegistry) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return domain.Validationf("config key is required")
	}
	var doc domain.ConfigDocument
	return r.store.Update(ctx, repository.CollectionConfig, &doc, func() error {
		doc[key] = value
		return nil
	})
}

func (r *ConfigRegistry) Delete(ctx context.Context, key string) error {
	var doc domain.ConfigDocument
	return r.store.Update(ctx, repository.CollectionConfig, &doc, func() error {
		if _, ok := doc[key]; !ok {
			return fmt.Errorf("%w: config key %s", domain.ErrNotFound, key)
		}
		delete(doc, key)
		return nil
	})
}
