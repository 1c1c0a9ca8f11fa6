package pio

import (
	"strconv"
	"strings"
)

var (
	jmpCondNames = [8]string{"", "!x, ", "x--, ", "!y, ", "y--, ", "x!=y, ", "pin, ", "!osre, "}
	inSrcNames   = [8]string{"pins", "x", "y", "null", "reserved", "reserved", "isr", "osr"}
	outDestNames = [8]string{"pins", "x", "y", "null", "pindirs", "pc", "isr", "exec"}
	movDestNames = [8]string{"pins", "x", "y", "pindirs", "exec", "pc", "isr", "osr"}
	movSrcNames  = [8]string{"pins", "x", "y", "null", "reserved", "status", "isr", "osr"}
	setDestNames = [8]string{"pins", "x", "y", "reserved", "pindirs", "reserved", "reserved", "reserved"}
	waitSrcNames = [4]string{"gpio", "pin", "irq", "jmppin"}
)

// Disassemble returns the pioasm syntax of a single instruction word for a
// program with the given side-set configuration.
func Disassemble(instr uint16, sidesetBits uint8, optional bool) string {
	arg1 := uint8(instr>>5) & 0b111
	arg2 := uint8(instr) & 0x1f
	var b strings.Builder
	switch kindOf(instr) {
	case InstrJMP:
		b.WriteString("jmp ")
		b.WriteString(jmpCondNames[arg1])
		b.WriteString(strconv.Itoa(int(arg2)))
	case InstrWAIT:
		b.WriteString("wait ")
		b.WriteString(strconv.Itoa(int(arg1 >> 2)))
		b.WriteByte(' ')
		b.WriteString(waitSrcNames[arg1&0b11])
		b.WriteByte(' ')
		if arg1&0b11 == 2 && arg2&0x10 != 0 {
			b.WriteString(strconv.Itoa(int(arg2 & 0b111)))
			b.WriteString(" rel")
		} else {
			b.WriteString(strconv.Itoa(int(arg2)))
		}
	case InstrIN:
		b.WriteString("in ")
		b.WriteString(inSrcNames[arg1])
		b.WriteString(", ")
		b.WriteString(strconv.Itoa(bitCount(arg2)))
	case InstrOUT:
		b.WriteString("out ")
		b.WriteString(outDestNames[arg1])
		b.WriteString(", ")
		b.WriteString(strconv.Itoa(bitCount(arg2)))
	case InstrPUSH, InstrPULL:
		isPull := kindOf(instr) == InstrPULL
		if isPull {
			b.WriteString("pull")
		} else {
			b.WriteString("push")
		}
		if arg1&0b10 != 0 {
			if isPull {
				b.WriteString(" ifempty")
			} else {
				b.WriteString(" iffull")
			}
		}
		if arg1&0b1 != 0 {
			b.WriteString(" block")
		} else {
			b.WriteString(" noblock")
		}
	case InstrMOV:
		if arg1 == uint8(MovDestY) && arg2 == uint8(MovSrcY) {
			b.WriteString("nop")
			break
		}
		b.WriteString("mov ")
		b.WriteString(movDestNames[arg1])
		b.WriteString(", ")
		switch arg2 >> 3 {
		case movOpInvert:
			b.WriteByte('~')
		case movOpReverse:
			b.WriteString("::")
		}
		b.WriteString(movSrcNames[arg2&0b111])
	case InstrIRQ:
		b.WriteString("irq ")
		switch {
		case arg1&0b10 != 0:
			b.WriteString("clear ")
		case arg1&0b01 != 0:
			b.WriteString("wait ")
		default:
			b.WriteString("nowait ")
		}
		b.WriteString(strconv.Itoa(int(arg2 & 0b111)))
		if arg2&0x10 != 0 {
			b.WriteString(" rel")
		}
	case InstrSET:
		b.WriteString("set ")
		b.WriteString(setDestNames[arg1])
		b.WriteString(", ")
		b.WriteString(strconv.Itoa(int(arg2)))
	}

	side, hasSide, delay := splitDelaySide(instr, sidesetBits, optional)
	if hasSide {
		b.WriteString(" side ")
		b.WriteString(strconv.Itoa(int(side)))
	}
	if delay > 0 {
		b.WriteString(" [")
		b.WriteString(strconv.Itoa(int(delay)))
		b.WriteByte(']')
	}
	return b.String()
}

// splitDelaySide separates bits 12:8 of an instruction into side-set value
// and delay cycles.
func splitDelaySide(instr uint16, sidesetBits uint8, optional bool) (side uint8, hasSide bool, delay uint8) {
	field := uint8(instr>>8) & 0x1f
	used := sidesetBits + boolAsU8(optional)
	delay = field & (1<<(5-used) - 1)
	if sidesetBits == 0 {
		return 0, false, delay
	}
	side = field >> (5 - used) & (1<<sidesetBits - 1)
	hasSide = !optional || field&0x10 != 0
	return side, hasSide, delay
}

// bitCount decodes an IN/OUT bit count where 0 means 32.
func bitCount(arg uint8) int {
	if arg == 0 {
		return 32
	}
	return int(arg)
}
