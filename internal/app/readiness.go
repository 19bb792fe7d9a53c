package app

import (
	"context"
	"fmt"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// Checker is the minimal interface shared by the storage and AI clients.
type Checker interface{ Check(ctx context.Context) error }

// BuildReadinessChecks returns three readiness checks: db, object storage,
// and the AI provider.
func BuildReadinessChecks(pool Pinger, storage Checker, aicl Checker) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	storageCheck := func(ctx context.Context) error {
		if storage == nil {
			return fmt.Errorf("storage not configured")
		}
		return storage.Check(ctx)
	}
	aiCheck := func(ctx context.Context) error {
		if aicl == nil {
			return fmt.Errorf("ai client not configured")
		}
		return aicl.Check(ctx)
	}
	return dbCheck, storageCheck, aiCheck
}
