package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const refGenerationAttempts = 5

type refExistsFunc func(ctx context.Context, ref string) (bool, error)

func randomDigits(n int) (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < n; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}

// generateRef builds prefix + timestamp + random suffix and re-rolls on a visible collision.
// The check is advisory: the unique index decides, and callers retry on ErrDuplicateReference.
func generateRef(ctx context.Context, prefix, layout string, digits int, now time.Time, exists refExistsFunc) (string, error) {
	stamp := now.UTC().Format(layout)
	for attempt := 0; attempt < refGenerationAttempts; attempt++ {
		suffix, err := randomDigits(digits)
		if err != nil {
			return "", fmt.Errorf("generate reference suffix: %w", err)
		}
		ref := prefix + stamp + suffix
		taken, err := exists(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("check reference %s: %w", ref, err)
		}
		if !taken {
			return ref, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique %s reference after %d attempts", prefix, refGenerationAttempts)
}

// NewTransactionRef returns a reference such as UC20260315142501482913.
func NewTransactionRef(ctx context.Context, r Reader, now time.Time) (string, error) {
	return generateRef(ctx, "UC", "20060102150405", 6, now, r.TransactionRefExists)
}

// NewRechargeRef returns a reference such as RCH-260315-4821.
func NewRechargeRef(ctx context.Context, r Reader, now time.Time) (string, error) {
	return generateRef(ctx, "RCH-", "060102-", 4, now, r.RechargeRefExists)
}
