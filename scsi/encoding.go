package scsi

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// CDB builders and response parsers. Pure functions over byte slices;
// all multi-byte fields are big-endian per the command standards.

// Minimum payload lengths the parsers require.
const (
	InquiryReplyLen    = 36
	senseReplyLen      = 14
	capacity10ReplyLen = 8
	capacity16ReplyLen = 12

	// Allocation length used for REQUEST SENSE; fixed-format sense
	// data is 18 bytes.
	SenseAllocLen = 18

	// Allocation length for the READ CAPACITY (16) parameter data.
	capacity16AllocLen = 32
)

// Inquiry builds a standard INQUIRY CDB with the given allocation
// length.
func Inquiry(alloc uint16) []byte {
	cdb := make([]byte, cdbLen6)
	cdb[0] = OpInquiry
	binary.BigEndian.PutUint16(cdb[3:5], alloc)
	return cdb
}

// RequestSense builds a REQUEST SENSE CDB asking for fixed-format
// sense data.
func RequestSense(alloc uint8) []byte {
	cdb := make([]byte, cdbLen6)
	cdb[0] = OpRequestSense
	cdb[4] = alloc
	return cdb
}

// TestUnitReady builds a TEST UNIT READY CDB.
func TestUnitReady() []byte {
	cdb := make([]byte, cdbLen6)
	cdb[0] = OpTestUnitReady
	return cdb
}

// ReadCapacity10 builds a READ CAPACITY (10) CDB.
func ReadCapacity10() []byte {
	cdb := make([]byte, cdbLen10)
	cdb[0] = OpReadCapacity10
	return cdb
}

// ReadCapacity16 builds a READ CAPACITY (16) CDB (SERVICE ACTION IN
// with service action 0x10).
func ReadCapacity16() []byte {
	cdb := make([]byte, cdbLen16)
	cdb[0] = OpServiceActionIn
	cdb[1] = SaiReadCapacity16
	binary.BigEndian.PutUint32(cdb[10:14], capacity16AllocLen)
	return cdb
}

// Read10 builds a READ (10) CDB. The LBA must fit 32 bits and the
// transfer length 16 bits; wider requests need Read12 or Read16.
func Read10(lba uint64, count uint32) ([]byte, error) {
	return rw10(OpRead10, lba, count)
}

// Write10 builds a WRITE (10) CDB, with the same field limits as
// Read10.
func Write10(lba uint64, count uint32) ([]byte, error) {
	return rw10(OpWrite10, lba, count)
}

func rw10(op byte, lba uint64, count uint32) ([]byte, error) {
	if lba > 0xFFFFFFFF {
		return nil, EncodeError(fmt.Sprintf("scsi: LBA %#x does not fit 10-byte CDB", lba))
	}
	if count > 0xFFFF {
		return nil, EncodeError(fmt.Sprintf("scsi: transfer length %d does not fit 10-byte CDB", count))
	}
	cdb := make([]byte, cdbLen10)
	cdb[0] = op
	binary.BigEndian.PutUint32(cdb[2:6], uint32(lba))
	binary.BigEndian.PutUint16(cdb[7:9], uint16(count))
	return cdb, nil
}

// Read12 builds a READ (12) CDB. The LBA must fit 32 bits; the
// transfer length field is 32 bits wide.
func Read12(lba uint64, count uint32) ([]byte, error) {
	return rw12(OpRead12, lba, count)
}

// Write12 builds a WRITE (12) CDB, with the same field limits as
// Read12.
func Write12(lba uint64, count uint32) ([]byte, error) {
	return rw12(OpWrite12, lba, count)
}

func rw12(op byte, lba uint64, count uint32) ([]byte, error) {
	if lba > 0xFFFFFFFF {
		return nil, EncodeError(fmt.Sprintf("scsi: LBA %#x does not fit 12-byte CDB", lba))
	}
	cdb := make([]byte, cdbLen12)
	cdb[0] = op
	binary.BigEndian.PutUint32(cdb[2:6], uint32(lba))
	binary.BigEndian.PutUint32(cdb[6:10], count)
	return cdb, nil
}

// Read16 builds a READ (16) CDB with a 64-bit LBA.
func Read16(lba uint64, count uint32) []byte {
	return rw16(OpRead16, lba, count)
}

// Write16 builds a WRITE (16) CDB with a 64-bit LBA.
func Write16(lba uint64, count uint32) []byte {
	return rw16(OpWrite16, lba, count)
}

func rw16(op byte, lba uint64, count uint32) []byte {
	cdb := make([]byte, cdbLen16)
	cdb[0] = op
	binary.BigEndian.PutUint64(cdb[2:10], lba)
	binary.BigEndian.PutUint32(cdb[10:14], count)
	return cdb
}

// ParseInquiry decodes the compulsory leading 36 bytes of standard
// INQUIRY data. Devices may return more; the extra is ignored.
func ParseInquiry(data []byte) (InquiryData, error) {
	if len(data) < InquiryReplyLen {
		return InquiryData{}, DecodeError(fmt.Sprintf("scsi: INQUIRY data is %d bytes, need %d", len(data), InquiryReplyLen))
	}
	return InquiryData{
		PeripheralType: PeripheralType(data[0] & 0x1f),
		Removable:      data[1]&0x80 != 0,
		Vendor:         strings.TrimRight(string(data[8:16]), " \x00"),
		Product:        strings.TrimRight(string(data[16:32]), " \x00"),
		Revision:       strings.TrimRight(string(data[32:36]), " \x00"),
	}, nil
}

// ParseCapacity10 decodes READ CAPACITY (10) parameter data. When the
// last-LBA field is pinned at 0xFFFFFFFF the returned capacity reports
// Saturated and the device must be re-read with the 16-byte form.
func ParseCapacity10(data []byte) (Capacity, error) {
	if len(data) < capacity10ReplyLen {
		return Capacity{}, DecodeError(fmt.Sprintf("scsi: READ CAPACITY(10) data is %d bytes, need %d", len(data), capacity10ReplyLen))
	}
	lastLBA := binary.BigEndian.Uint32(data[0:4])
	return Capacity{
		Blocks:    uint64(lastLBA) + 1,
		BlockSize: binary.BigEndian.Uint32(data[4:8]),
	}, nil
}

// ParseCapacity16 decodes READ CAPACITY (16) parameter data.
func ParseCapacity16(data []byte) (Capacity, error) {
	if len(data) < capacity16ReplyLen {
		return Capacity{}, DecodeError(fmt.Sprintf("scsi: READ CAPACITY(16) data is %d bytes, need %d", len(data), capacity16ReplyLen))
	}
	return Capacity{
		Blocks:    binary.BigEndian.Uint64(data[0:8]) + 1,
		BlockSize: binary.BigEndian.Uint32(data[8:12]),
	}, nil
}

// ParseSense decodes fixed-format sense data (response codes 0x70 and
// 0x71). Descriptor-format and vendor response codes are rejected, not
// silently defaulted.
func ParseSense(data []byte) (SenseData, error) {
	if len(data) < senseReplyLen {
		return SenseData{}, DecodeError(fmt.Sprintf("scsi: sense data is %d bytes, need %d", len(data), senseReplyLen))
	}
	if rc := data[0] & 0x7f; rc != 0x70 && rc != 0x71 {
		return SenseData{}, DecodeError(fmt.Sprintf("scsi: unrecognized sense response code %#02x", rc))
	}
	return SenseData{
		Key:  SenseKey(data[2] & 0x0f),
		ASC:  data[12],
		ASCQ: data[13],
	}, nil
}
