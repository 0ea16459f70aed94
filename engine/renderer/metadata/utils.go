package metadata

// GetAligned rounds operand up to the next multiple of granularity, which
// must be a power of two. A granularity of zero leaves operand untouched.
func GetAligned(operand, granularity uint64) uint64 {
	if granularity == 0 {
		return operand
	}
	return (operand + (granularity - 1)) &^ (granularity - 1)
}
