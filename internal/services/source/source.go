// Package source supplies raw wallet transactions together with discovery
// progress signals.
package source

import "github.com/vadiminshakov/lptracker/internal/domain"

// EventType tags the variants of a source's signal stream.
type EventType int

const (
	// EventSignatureCount reports the running total of signatures discovered.
	EventSignatureCount EventType = iota
	// EventAllSignaturesFound signals that signature discovery is finished.
	EventAllSignaturesFound
	// EventRawTransactions carries one batch of fetched raw transactions.
	EventRawTransactions
	// EventError reports a fatal source failure.
	EventError
	// EventEnd signals that the source has delivered everything it will.
	EventEnd
)

// Event is one tagged-union signal from a transaction source.
type Event struct {
	Type         EventType
	Count        int
	Transactions []domain.RawTransaction
	Err          error
}

// Source streams raw transactions plus progress signals and supports
// cooperative cancellation. Cancel is idempotent after its first invocation.
type Source interface {
	Events() <-chan Event
	Cancel()
}
