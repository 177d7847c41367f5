package device

// Register addresses touched by setup and sweeps.
const (
	RegDataRate   uint32 = 0x401004
	RegTxgcIndex  uint32 = 0x40100C
	RegIRQEnable  uint32 = 0x406004
	RegCCALevel   uint32 = 0x408840
	RegTxgcTable0 uint32 = 0x4089A0
)

// TxgcTableSize is the number of gain control registers.
const TxgcTableSize = 8

// TxgcRegisters returns the addresses of the gain control table.
func TxgcRegisters() []uint32 {
	regs := make([]uint32, TxgcTableSize)
	for i := range regs {
		regs[i] = RegTxgcTable0 + uint32(4*i)
	}
	return regs
}

// DFS override modes.
const (
	DFSEnabled     = 0
	DFSDisabled    = 1
	DFSDisabledTPM = 5
)

// Power detector read parameters used when none are configured.
const (
	DefaultPDOutDelay   = 9000
	DefaultPDOutSamples = 32
)
