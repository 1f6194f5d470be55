package memory

import (
	"trade_desk/internal/repository"
)

var (
	_ repository.LedgerStore = (*Store)(nil)
)
