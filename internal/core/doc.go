// Package core runs the units of work of the bookkeeping engine.
//
// A [Service] owns the ledger store and serializes every mutation through a
// [MutationLimiter]: statement imports, snapshot restores and replica
// reconciliations each open one store session, do all of their work in it and
// commit exactly once. Cancellation or any fatal error rolls the session
// back, leaving the previously committed ledger untouched.
//
// Read-only queries such as [Service.Export] and [Service.Balance] run on
// their own sessions and never wait for the limiter, so they may observe the
// ledger as of the last commit.
//
// After a successful mutation the service writes a snapshot backup in the
// background. Backup failures are logged and never fail the mutation; call
// [Service.WaitForBackups] before shutdown.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each category has a code prefix for support reference:
//
//   - IMP: statement import (empty file, missing columns)
//   - SNAP: snapshot documents and backups
//   - REC: unresolved references during reconciliation
//   - DB: commit failures and conflicts
//   - POL: unsupported reconciliation strategies
//   - UPL: busy, cancelled and timed out requests
package core
