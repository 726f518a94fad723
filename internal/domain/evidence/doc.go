// Package evidence contains the evidence batch bounded context.
// A batch collects digitized documents while open; sealing freezes the
// document set behind a signed manifest whose digest is the chained
// digest of every member document in insertion order.
package evidence
