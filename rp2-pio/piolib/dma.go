//go:build rp2040 || rp2350

package piolib

import (
	"context"
	"device/rp"
	"runtime/volatile"
	"unsafe"

	pio "github.com/letitglow/pioring/rp2-pio"
)

// Single DMA channel. See rp.DMA_Type.
type dmaChannelHW struct {
	READ_ADDR   volatile.Register32
	WRITE_ADDR  volatile.Register32
	TRANS_COUNT volatile.Register32
	CTRL_TRIG   volatile.Register32
	_           [12]volatile.Register32 // aliases
}

// Both RP2040 and RP2350 have at least 12 channels with this layout.
const dmaMaxChannels = 12

var dmaChannels = (*[dmaMaxChannels]dmaChannelHW)(unsafe.Pointer(rp.DMA))

// dmaArbiter hands out DMA channels. A channel has one owner at a time.
type dmaArbiter struct {
	claimedChannels uint16
}

var _DMA = &dmaArbiter{}

// ClaimChannel returns an unused DMA channel, or false if all are claimed.
func (arb *dmaArbiter) ClaimChannel() (dmaChannel, bool) {
	for i := uint8(0); i < dmaMaxChannels; i++ {
		ch := arb.Channel(i)
		if ch.TryClaim() {
			return ch, true
		}
	}
	return dmaChannel{}, false
}

// Channel returns a handle to channel, claimed or not.
func (arb *dmaArbiter) Channel(channel uint8) dmaChannel {
	if channel >= dmaMaxChannels {
		panic("piolib:bad DMA channel")
	}
	return dmaChannel{hw: &dmaChannels[channel], arb: arb, idx: channel}
}

type dmaChannel struct {
	hw  *dmaChannelHW
	arb *dmaArbiter
	dl  deadliner
	idx uint8
}

// IsValid returns true if the channel refers to hardware.
func (ch dmaChannel) IsValid() bool { return ch.arb != nil && ch.hw != nil }

// TryClaim claims the channel and reports whether it was free.
func (ch dmaChannel) TryClaim() bool {
	if ch.IsClaimed() {
		return false
	}
	ch.arb.claimedChannels |= 1 << ch.idx
	return true
}

// IsClaimed reports whether the channel has an owner.
func (ch dmaChannel) IsClaimed() bool { return ch.arb.claimedChannels&(1<<ch.idx) != 0 }

// Unclaim releases the channel.
func (ch dmaChannel) Unclaim() { ch.arb.claimedChannels &^= 1 << ch.idx }

type dmaTxSize uint32

const (
	dmaTxSize8 dmaTxSize = iota
	dmaTxSize16
	dmaTxSize32
)

type dmaChannelConfig struct {
	CTRL uint32
}

// push32 writes each element of src into the register at dst, paced by
// dreq, and polls until the channel goes idle. On a timeout or a done
// context the channel is aborted so it can be reused.
func (ch *dmaChannel) push32(ctx context.Context, dst *uint32, src []uint32, dreq uint32) error {
	if len(src) == 0 {
		return nil
	}
	hw := ch.hw
	hw.READ_ADDR.Set(uint32(uintptr(unsafe.Pointer(&src[0]))))
	hw.WRITE_ADDR.Set(uint32(uintptr(unsafe.Pointer(dst))))
	hw.TRANS_COUNT.Set(uint32(len(src)))

	var cc dmaChannelConfig
	cc.CTRL = hw.CTRL_TRIG.Get()
	cc.setTREQ_SEL(dreq)
	cc.setTransferDataSize(dmaTxSize32)
	cc.setChainTo(uint32(ch.idx))
	cc.setReadIncrement(true)
	cc.setWriteIncrement(false)
	cc.setEnable(true)
	hw.CTRL_TRIG.Set(cc.CTRL)

	dl := ch.dl.newDeadline()
	for ch.busy() {
		if dl.expired() {
			ch.abort()
			return errTimeout
		}
		select {
		case <-ctx.Done():
			ch.abort()
			return ctx.Err()
		default:
		}
		gosched()
	}
	return nil
}

// abort aborts the current transfer sequence on the channel and blocks until
// all in-flight transfers have been flushed through the address and data FIFOs.
// After this, it is safe to restart the channel.
func (ch *dmaChannel) abort() {
	chMask := uint32(1 << ch.idx)
	rp.DMA.CHAN_ABORT.Set(chMask)
	for rp.DMA.CHAN_ABORT.Get()&chMask != 0 {
		gosched()
	}
}

func (ch *dmaChannel) busy() bool {
	return ch.hw.CTRL_TRIG.Get()&rp.DMA_CH0_CTRL_TRIG_BUSY != 0
}

// dmaPIO_TxDREQ returns the data request line of sm's TX FIFO. Each PIO
// block has 4 TX then 4 RX requests, blocks numbered consecutively.
func dmaPIO_TxDREQ(sm pio.StateMachine) uint32 {
	return uint32(sm.PIO().BlockIndex())*8 + uint32(sm.StateMachineIndex())
}

// Select a Transfer Request signal. The channel uses the transfer request signal
// to pace its data transfer rate.
func (cc *dmaChannelConfig) setTREQ_SEL(dreq uint32) {
	cc.CTRL = (cc.CTRL & ^uint32(rp.DMA_CH0_CTRL_TRIG_TREQ_SEL_Msk)) | (uint32(dreq) << rp.DMA_CH0_CTRL_TRIG_TREQ_SEL_Pos)
}

func (cc *dmaChannelConfig) setChainTo(chainTo uint32) {
	cc.CTRL = (cc.CTRL & ^uint32(rp.DMA_CH0_CTRL_TRIG_CHAIN_TO_Msk)) | (chainTo << rp.DMA_CH0_CTRL_TRIG_CHAIN_TO_Pos)
}

func (cc *dmaChannelConfig) setTransferDataSize(size dmaTxSize) {
	cc.CTRL = (cc.CTRL & ^uint32(rp.DMA_CH0_CTRL_TRIG_DATA_SIZE_Msk)) | (uint32(size) << rp.DMA_CH0_CTRL_TRIG_DATA_SIZE_Pos)
}

func (cc *dmaChannelConfig) setReadIncrement(incr bool) {
	setBitPos(&cc.CTRL, rp.DMA_CH0_CTRL_TRIG_INCR_READ_Pos, incr)
}

func (cc *dmaChannelConfig) setWriteIncrement(incr bool) {
	setBitPos(&cc.CTRL, rp.DMA_CH0_CTRL_TRIG_INCR_WRITE_Pos, incr)
}

func (cc *dmaChannelConfig) setEnable(enable bool) {
	setBitPos(&cc.CTRL, rp.DMA_CH0_CTRL_TRIG_EN_Pos, enable)
}

func setBitPos(cc *uint32, pos uint32, bit bool) {
	if bit {
		*cc = *cc | (1 << pos)
	} else {
		*cc = *cc & ^(1 << pos) // unset bit.
	}
}
