package pio

// programSpace is a bitmask of used instruction memory. Each PIO block has
// 32 slots for instructions.
type programSpace uint32

func programMask(length int) uint32 {
	if length >= programMemorySize {
		return 0xffff_ffff
	}
	return 1<<length - 1
}

// find returns the offset to load a program of the given length at, or -1
// if it does not fit. Relocatable programs (origin < 0) are placed as high
// as possible.
func (s programSpace) find(length int, origin int8) int8 {
	if length == 0 || length > programMemorySize {
		return -1
	}
	mask := programMask(length)

	// Program has fixed offset (not relocatable)
	if origin >= 0 {
		if int(origin) > programMemorySize-length || uint32(s)&(mask<<origin) != 0 {
			return -1
		}
		return origin
	}

	// work down from the top always
	for i := programMemorySize - length; i >= 0; i-- {
		if uint32(s)&(mask<<i) == 0 {
			return int8(i)
		}
	}
	return -1
}

// canAddAt reports whether a program of the given length and origin can be
// loaded at offset.
func (s programSpace) canAddAt(length int, origin int8, offset uint8) bool {
	// Non-relocatable programs must be added at offset
	if origin >= 0 && origin != int8(offset) {
		return false
	}
	if int(offset)+length > programMemorySize {
		return false
	}
	return uint32(s)&(programMask(length)<<offset) == 0
}

func (s *programSpace) claim(offset uint8, length int) {
	*s |= programSpace(programMask(length) << offset)
}

func (s *programSpace) release(offset uint8, length int) {
	*s &^= programSpace(programMask(length) << offset)
}

// relocate patches a jump instruction's absolute address for a program
// loaded at offset. Other instructions are returned unchanged.
func relocate(instr uint16, offset uint8) uint16 {
	if instr&_INSTR_BITS_Msk == _INSTR_BITS_JMP {
		return instr&^0x1f | (instr+uint16(offset))&0x1f
	}
	return instr
}

// noCopy may be embedded into structs which must not be copied
// after the first use.
//
// See https://golang.org/issues/8005#issuecomment-190753527
// for details.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
