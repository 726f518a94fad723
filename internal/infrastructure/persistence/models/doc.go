// Package models contains GORM persistence models that map to database tables.
// Domain types carry no ORM tags; each model converts to and from its
// domain counterpart.
//
// Structure:
// - base.go: shared columns (BaseModel, OwnedModel)
// - ledger.go: counters, series configs, chain heads, records, audit events
// - evidence.go: document batches and their documents
package models
