package domain

// EventType tags the variants of the orchestrator's output stream.
type EventType int

const (
	// EventSignatureCount reports how many signatures the source has found so far.
	EventSignatureCount EventType = iota
	// EventAllSignaturesFound signals that the source finished discovering signatures.
	EventAllSignaturesFound
	// EventTransactionCount reports the running total of classified transactions.
	EventTransactionCount
	// EventPositionAndTransactions carries one reconciled position with its transactions.
	EventPositionAndTransactions
	// EventUpdatingOpenPositions reports how many open positions are being augmented.
	EventUpdatingOpenPositions
	// EventEnd terminates the stream. Nothing follows it.
	EventEnd
	// EventError terminates the stream with a failure. Nothing follows it.
	EventError
)

// String returns the string representation.
func (t EventType) String() string {
	switch t {
	case EventSignatureCount:
		return "signatureCount"
	case EventAllSignaturesFound:
		return "allSignaturesFound"
	case EventTransactionCount:
		return "transactionCount"
	case EventPositionAndTransactions:
		return "positionAndTransactions"
	case EventUpdatingOpenPositions:
		return "updatingOpenPositions"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one tagged-union value of the position stream. Only the fields
// relevant to Type are set.
type Event struct {
	Type         EventType
	Count        int
	Transactions []ClassifiedTransaction
	Position     *PositionAggregate
	Err          error
}
