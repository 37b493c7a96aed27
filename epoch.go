package dealmatcher

// CalculateEpoch mirrors the core contract's currentEpoch():
// floor(1 + (timestamp - initTimestamp) / epochDuration).
//
// Callers guarantee epochDuration > 0. The division floors for timestamps
// before initTimestamp too, so every call site agrees with epoch boundaries
// stored by the indexer.
func CalculateEpoch(timestamp, initTimestamp, epochDuration int64) int64 {
	elapsed := timestamp - initTimestamp
	q := elapsed / epochDuration
	if elapsed%epochDuration != 0 && (elapsed < 0) != (epochDuration < 0) {
		q--
	}
	return 1 + q
}
