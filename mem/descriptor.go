package mem

// Descriptor kinds occupy the top 4 bits of a descriptor's length word, per
// spec.md §6. Bit 0 of the kind distinguishes code-unit width (narrow/wide);
// bit 1 distinguishes a read-only descriptor (just {length, data
// pointer}) from a modifiable one that also carries a max-length field
// (matching the guest ABI's const vs. modifiable descriptor split).
const (
	descKindWide     = 1 << 0
	descKindModifiable = 1 << 1

	lengthMask = 0x0fffffff
	kindShift  = 28
)

// constDescriptorSize is the size in bytes of a read-only descriptor
// header: {lengthWord u32, dataPtr u32}.
const constDescriptorSize = 8

// modifiableDescriptorSize is the size in bytes of a modifiable descriptor
// header: {lengthWord u32, maxLength u32, dataPtr u32}.
const modifiableDescriptorSize = 12

func unitSize(wide bool) uint32 {
	if wide {
		return 2
	}
	return 1
}

// ReadDescriptor decodes a length-prefixed guest string/byte buffer
// addressed by pointer, returning its raw bytes (narrow descriptors yield
// their bytes directly; wide descriptors yield little-endian UCS-2 bytes,
// two per code unit).
func (as *AddressSpace) ReadDescriptor(addr Address) ([]byte, error) {
	header, err := as.ReadBytes(addr, constDescriptorSize)
	if err != nil {
		return nil, err
	}

	lengthWord := leUint32(header[0:4])
	kind := lengthWord >> kindShift
	length := lengthWord & lengthMask
	dataPtr := Address(leUint32(header[4:8]))
	if kind&descKindModifiable != 0 {
		header, err = as.ReadBytes(addr, modifiableDescriptorSize)
		if err != nil {
			return nil, err
		}
		dataPtr = Address(leUint32(header[8:12]))
	}

	wide := kind&descKindWide != 0
	return as.ReadBytes(dataPtr, length*unitSize(wide))
}

// WriteDescriptor fills a modifiable guest descriptor with data (raw bytes;
// for wide descriptors, little-endian UCS-2 pairs). If data's code-unit
// length exceeds the descriptor's declared max length, it returns
// ErrOverflow without touching the guest buffer, per spec.md §4.6.
func (as *AddressSpace) WriteDescriptor(addr Address, data []byte) error {
	header, err := as.ReadBytes(addr, modifiableDescriptorSize)
	if err != nil {
		return err
	}

	lengthWord := leUint32(header[0:4])
	kind := lengthWord >> kindShift
	maxLength := leUint32(header[4:8])
	dataPtr := Address(leUint32(header[8:12]))

	wide := kind&descKindWide != 0
	us := unitSize(wide)
	length := uint32(len(data)) / us

	if length > maxLength {
		return ErrOverflow
	}

	if err := as.WriteBytes(dataPtr, data); err != nil {
		return err
	}

	newLengthWord := (kind << kindShift) | (length & lengthMask)
	return as.Write32(addr, newLengthWord)
}

// NewDescriptorHeader lays out a descriptor header at addr, pointing at the
// buffer located at dataAddr. modifiable controls whether a max-length word
// is included. It is primarily used by tests and by servers constructing
// synthetic descriptors for internal use.
func (as *AddressSpace) NewDescriptorHeader(addr, dataAddr Address, wide, modifiable bool, length, maxLength uint32) error {
	var kind uint32
	if wide {
		kind |= descKindWide
	}
	if modifiable {
		kind |= descKindModifiable
	}
	lengthWord := (kind << kindShift) | (length & lengthMask)

	if err := as.Write32(addr, lengthWord); err != nil {
		return err
	}

	if modifiable {
		if err := as.Write32(addr+4, maxLength); err != nil {
			return err
		}
		return as.Write32(addr+8, uint32(dataAddr))
	}

	return as.Write32(addr+4, uint32(dataAddr))
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
