package pio

// State machine register field positions, from the RP2040 datasheet
// (PIO: SMx_CLKDIV, SMx_EXECCTRL, SMx_SHIFTCTRL, SMx_PINCTRL). They are
// identical on RP2350 for the fields used here.
const (
	clkdivFracPos = 8
	clkdivIntPos  = 16

	execctrlWrapBottomPos = 7
	execctrlWrapBottomMsk = 0x1f << execctrlWrapBottomPos
	execctrlWrapTopPos    = 12
	execctrlWrapTopMsk    = 0x1f << execctrlWrapTopPos
	execctrlOutStickyPos  = 17
	execctrlSidePindirPos = 29
	execctrlSideEnPos     = 30

	shiftctrlAutopushPos    = 16
	shiftctrlAutopullPos    = 17
	shiftctrlInShiftdirPos  = 18
	shiftctrlOutShiftdirPos = 19
	shiftctrlPushThreshPos  = 20
	shiftctrlPullThreshPos  = 25
	shiftctrlFjoinTxPos     = 30
	shiftctrlFjoinRxPos     = 31

	pinctrlOutBasePos      = 0
	pinctrlSetBasePos      = 5
	pinctrlSidesetBasePos  = 10
	pinctrlInBasePos       = 15
	pinctrlOutCountPos     = 20
	pinctrlSetCountPos     = 26
	pinctrlSidesetCountPos = 29
)

// DefaultStateMachineConfig returns the default configuration
// for a PIO state machine.
//
// The default configuration here, mirrors the state from
// pio_get_default_sm_config in the c-sdk.
func DefaultStateMachineConfig() StateMachineConfig {
	cfg := StateMachineConfig{}
	cfg.SetClkDiv(1 << clkDivFracBits)
	cfg.SetWrap(0, 31)
	cfg.SetInShift(true, false, 32)
	cfg.SetOutShift(true, false, 32)
	return cfg
}

// StateMachineConfig holds the register values of a PIO state machine
// configuration. Apply it with [StateMachine.Init] or [StateMachine.SetConfig].
type StateMachineConfig struct {
	// Clock divisor register for state machine N
	//  Frequency = clock freq / (CLKDIV_INT + CLKDIV_FRAC / 256)
	ClkDiv uint32
	// Execution/behavioural settings for state machine N
	ExecCtrl uint32
	// Control behaviour of the input/output shift registers for state machine N.
	ShiftCtrl uint32
	// State machine pin control.
	PinCtrl uint32
}

// SetClkDiv sets the clock divider for the state machine.
func (cfg *StateMachineConfig) SetClkDiv(div ClkDiv) {
	cfg.ClkDiv = uint32(div.Frac())<<clkdivFracPos | uint32(div.Whole())<<clkdivIntPos
}

// SetWrap sets the wrapping configuration for the state machine. Addresses
// are absolute in instruction memory.
func (cfg *StateMachineConfig) SetWrap(wrapTarget, wrap uint8) {
	replaceBits(&cfg.ExecCtrl, uint32(wrapTarget), 0x1f, execctrlWrapBottomPos)
	replaceBits(&cfg.ExecCtrl, uint32(wrap), 0x1f, execctrlWrapTopPos)
}

// SetInShift sets the 'in' shifting parameters in a state machine configuration
//   - shiftRight is true if ISR shift direction is right, false if left.
//   - autoPush enables automatic ISR refilling after all of the ISR bits have been consumed.
//   - pushThreshold is threshold in bits to shift in before auto/conditional re-pushing of the ISR.
func (cfg *StateMachineConfig) SetInShift(shiftRight, autoPush bool, pushThreshold uint16) {
	setBit(&cfg.ShiftCtrl, shiftctrlInShiftdirPos, shiftRight)
	setBit(&cfg.ShiftCtrl, shiftctrlAutopushPos, autoPush)
	replaceBits(&cfg.ShiftCtrl, uint32(pushThreshold), 0x1f, shiftctrlPushThreshPos)
}

// SetOutShift sets the 'out' shifting parameters in a state machine configuration
//   - shiftRight is true if OSR shift direction is right, false if left.
//   - autoPull enables automatic OSR refilling after all of the OSR bits have been consumed.
//   - pullThreshold is threshold in bits to shift out before auto/conditional re-pulling
//     of the OSR. 32 is encoded as 0.
func (cfg *StateMachineConfig) SetOutShift(shiftRight, autoPull bool, pullThreshold uint16) {
	setBit(&cfg.ShiftCtrl, shiftctrlOutShiftdirPos, shiftRight)
	setBit(&cfg.ShiftCtrl, shiftctrlAutopullPos, autoPull)
	replaceBits(&cfg.ShiftCtrl, uint32(pullThreshold), 0x1f, shiftctrlPullThreshPos)
}

// SetSidesetParams sets the side-set parameters in a state machine configuration.
//   - bitCount is number of bits to steal from delay field in the instruction for use
//     of side set, including the enable bit when optional (max 5).
//   - optional is true if the topmost side set bit is used as a flag for whether to apply side set on that instruction.
//   - pindirs is true if the side-set affects pin directions rather than values.
func (cfg *StateMachineConfig) SetSidesetParams(bitCount uint8, optional, pindirs bool) {
	if bitCount > 5 {
		panic("SetSideSet: bitCount")
	}
	replaceBits(&cfg.PinCtrl, uint32(bitCount), 0b111, pinctrlSidesetCountPos)
	setBit(&cfg.ExecCtrl, execctrlSideEnPos, optional)
	setBit(&cfg.ExecCtrl, execctrlSidePindirPos, pindirs)
}

// SetSidesetPins sets the lowest-numbered pin that will be affected by a side-set
// operation.
func (cfg *StateMachineConfig) SetSidesetPins(firstPin uint8) {
	checkPinBaseAndCount(firstPin, 1)
	replaceBits(&cfg.PinCtrl, uint32(firstPin), 0x1f, pinctrlSidesetBasePos)
}

// SetOutPins sets the pins a PIO 'out' instruction modifies. Can overlap with pins in IN, SET and SIDESET.
func (cfg *StateMachineConfig) SetOutPins(base, count uint8) {
	checkPinBaseAndCount(base, count)
	replaceBits(&cfg.PinCtrl, uint32(base), 0x1f, pinctrlOutBasePos)
	replaceBits(&cfg.PinCtrl, uint32(count), 0x3f, pinctrlOutCountPos)
}

// SetSetPins sets the pins a PIO 'set' instruction modifies.
// Can overlap with pins in IN, OUT and SIDESET.
func (cfg *StateMachineConfig) SetSetPins(base, count uint8) {
	checkPinBaseAndCount(base, count)
	if count > 5 {
		panic("pio:count too large")
	}
	replaceBits(&cfg.PinCtrl, uint32(base), 0x1f, pinctrlSetBasePos)
	replaceBits(&cfg.PinCtrl, uint32(count), 0b111, pinctrlSetCountPos)
}

// SetInPins in a state machine configuration. Can overlap with OUT, SET and SIDESET pins.
func (cfg *StateMachineConfig) SetInPins(base uint8) {
	checkPinBaseAndCount(base, 1)
	replaceBits(&cfg.PinCtrl, uint32(base), 0x1f, pinctrlInBasePos)
}

// SetOutSticky enables re-asserting the most recent OUT/SET pin values on
// subsequent cycles.
func (cfg *StateMachineConfig) SetOutSticky(sticky bool) {
	setBit(&cfg.ExecCtrl, execctrlOutStickyPos, sticky)
}

type FifoJoin uint8

const (
	// FifoJoinNone is the default FIFO joining configuration. The RX and TX FIFOs are separate and of length 4 each.
	FifoJoinNone FifoJoin = iota
	// FifoJoinTx joins the RX and TX FIFOs into a single TX FIFO of depth 8.
	FifoJoinTx
	// FifoJoinRx joins the RX and TX FIFOs into a single RX FIFO of depth 8.
	FifoJoinRx
)

// SetFIFOJoin Setup the FIFO joining in a state machine configuration.
func (cfg *StateMachineConfig) SetFIFOJoin(join FifoJoin) {
	if join > FifoJoinRx {
		panic("SetFIFOJoin: join")
	}
	setBit(&cfg.ShiftCtrl, shiftctrlFjoinTxPos, join == FifoJoinTx)
	setBit(&cfg.ShiftCtrl, shiftctrlFjoinRxPos, join == FifoJoinRx)
}

// TxFIFODepth returns the TX FIFO depth implied by the FIFO join setting.
func (cfg StateMachineConfig) TxFIFODepth() int {
	if cfg.ShiftCtrl&(1<<shiftctrlFjoinTxPos) != 0 {
		return 8
	}
	return 4
}

func checkPinBaseAndCount(base, count uint8) {
	if base >= 32 {
		panic("pio:bad pin")
	} else if count > 32 {
		panic("pio:count too large")
	}
}

func replaceBits(reg *uint32, value, mask uint32, pos uint8) {
	*reg = *reg&^(mask<<pos) | (value&mask)<<pos
}

func setBit(reg *uint32, pos uint8, bit bool) {
	replaceBits(reg, boolToBit(bit), 1, pos)
}

func boolToBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
