package block

// variant is the READ/WRITE CDB form used for one command.
type variant int

const (
	variant10 variant = iota
	variant12
	variant16
)

func (v variant) String() string {
	switch v {
	case variant10:
		return "10-byte"
	case variant12:
		return "12-byte"
	case variant16:
		return "16-byte"
	}
	return "unknown"
}

// commandVariant picks the narrowest CDB form that expresses the
// request: the 10-byte form iff the last addressed block fits 32 bits
// and the transfer length fits the 16-bit field, else the 16-byte
// form. Devices that reject 16-byte commands get the 12-byte form
// instead, which only reaches the 32-bit range; beyond that the
// request is unaddressable.
//
// count must be nonzero.
func commandVariant(lba uint64, count uint32, no16 bool) (variant, error) {
	last := lba + uint64(count) - 1
	if last <= 0xFFFFFFFF && count <= 0xFFFF {
		return variant10, nil
	}
	if no16 {
		if last > 0xFFFFFFFF {
			return 0, ErrUnaddressable
		}
		return variant12, nil
	}
	return variant16, nil
}
