package stream

// verdict is the emission gate's decision for one candidate output.
type verdict int

const (
	// verdictEmit delivers the candidate.
	verdictEmit verdict = iota
	// verdictFinalizeCancel replaces the candidate with the terminal signal
	// and suppresses all further output.
	verdictFinalizeCancel
	// verdictDrop discards the candidate silently.
	verdictDrop
)

// gate is the output-suppression rule applied to every candidate emission,
// including forwarded progress signals. It is a pure function of the pending
// finalization count and the lifecycle state, evaluated in priority order:
// in-flight finalize work always flushes, even under a pending cancellation;
// an unfinalized cancellation is finalized in place of the candidate; after
// the stream finished nothing else gets out.
func gate(pending int, st State) verdict {
	switch {
	case pending > 0:
		return verdictEmit
	case st == StateCancelling:
		return verdictFinalizeCancel
	case st.Terminal():
		return verdictDrop
	default:
		return verdictEmit
	}
}
