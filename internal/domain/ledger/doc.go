// Package ledger contains the tamper-evident ledger bounded context.
// It allocates gap-free invoice numbers per owner and series, and binds
// every issued invoice or sealed evidence batch to the previous one
// through a SHA-256 hash chain so that retroactive edits are detectable.
package ledger
