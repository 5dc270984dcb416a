package service

import (
	"fmt"

	"github.com/unicard/ledger/internal/domain"
)

// requireExactlyOne treats a conditional write that matched no row as a lost race,
// which the retry loop resolves by re-reading state.
func requireExactlyOne(rows int64, operation string) error {
	switch {
	case rows == 1:
		return nil
	case rows == 0:
		return fmt.Errorf("%w: %s matched no row", domain.ErrPersistenceConflict, operation)
	default:
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
}
