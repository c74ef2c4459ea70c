package domain

// ProgressCounters tracks how far signature discovery and classification have
// progressed. SignaturesProcessed never exceeds SignaturesReceived and
// AllSignaturesFound never reverts to false.
type ProgressCounters struct {
	SignaturesReceived  int
	SignaturesProcessed int
	AllSignaturesFound  bool
}

// Complete reports whether every discovered signature has been classified.
func (c ProgressCounters) Complete() bool {
	return c.AllSignaturesFound && c.SignaturesProcessed == c.SignaturesReceived
}
