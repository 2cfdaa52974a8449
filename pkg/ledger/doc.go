// Package ledger tracks exclusive reservations of a fixed set of named spots.
//
// A [Ledger] owns the in-memory map of spot to [Reservation] and is the only
// code that touches its [Store]. Every accepted mutation is committed to the
// primary store before the caller sees success, then copied to a backup
// snapshot and recorded in the [Audit] trail. Backups and audit records are
// best effort: their failures are logged, never returned.
//
// Spot lifecycle:
//
//	FREE --Book/QuickBook--> OCCUPIED --Edit--> OCCUPIED --Release--> FREE
//
// A Book on an occupied spot fails with [ErrAlreadyReserved]; it never
// overwrites. A failed commit rolls the mutation back and returns
// [ErrPersistenceFailed]; repeated failures switch the ledger to read-only
// until [Ledger.Recover].
//
// Example:
//
//	l, err := ledger.Open(ledger.Config{Dir: ".spots", Catalog: ledger.DefaultCatalog()})
//	if err != nil {
//	    return err
//	}
//	defer l.Close()
//
//	r, err := l.QuickBook("Carol", "2025-01-01")
package ledger
