package domain

// ProcessedBlock is the most recently reconciled block.
type ProcessedBlock struct {
	Height    uint32
	Hash      string
	UpdatedAt int64
}

// FeeRate is the latest fee estimate of the node, in sats/vbyte.
type FeeRate struct {
	SatsPerVByte uint64
	UpdatedAt    int64
}
