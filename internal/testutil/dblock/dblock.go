// Package dblock serializes Postgres integration tests across packages, which
// share one database and truncate the ledger tables between runs.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultLockAddr = "127.0.0.1:45432"

// Acquire blocks until this process holds the cross-process test lock.
// UNICARD_TEST_LOCK_ADDR overrides the loopback address used as the mutex.
func Acquire() func() {
	addr := os.Getenv("UNICARD_TEST_LOCK_ADDR")
	if addr == "" {
		addr = defaultLockAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
