// Package scsi implements the SCSI command/response protocol for
// direct-access storage devices over an abstract byte transport, such
// as a USB mass-storage bridge or an ATAPI packet interface.
//
// The package builds Command Descriptor Blocks, issues them through a
// Transport, and turns status bytes plus sense data into typed errors.
// A Device wraps a Transport and owns the retry policy for transient
// conditions; one command is in flight at a time.
package scsi

import "fmt"

// Direction describes the data phase of a command.
type Direction int

const (
	// DirNone means the command moves no data.
	DirNone Direction = iota
	// DirIn moves data device to host.
	DirIn
	// DirOut moves data host to device.
	DirOut
)

func (d Direction) String() string {
	switch d {
	case DirNone:
		return "none"
	case DirIn:
		return "in"
	case DirOut:
		return "out"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Transport is the synchronous command/response channel a Device runs
// on. Implementations must send the CDB byte-exact, run the data phase
// described by dir and buf, and return the device's status byte. They
// must not reorder or coalesce commands.
//
// If the transport captures sense data itself (ATAPI does, the sg
// driver can), it returns the raw sense bytes; otherwise it returns nil
// sense and the Device issues REQUEST SENSE separately.
//
// Errors returned here are transport faults (timeout, stall, connection
// loss) and pass through to the caller unmodified, wrapped in
// *TransportError.
type Transport interface {
	Command(cdb []byte, dir Direction, buf []byte) (status Status, n int, sense []byte, err error)

	// MaxTransfer is the largest data phase the transport carries in
	// one command, in bytes. Zero means no limit.
	MaxTransfer() int
}

// InquiryData is the decoded standard INQUIRY response.
type InquiryData struct {
	PeripheralType PeripheralType
	// Removable is set for removable-media devices. Disks usually
	// no; card readers and CD-ROMs usually yes.
	Removable bool
	Vendor    string
	Product   string
	Revision  string
}

func (i InquiryData) String() string {
	return fmt.Sprintf("%s %q %q %q removable=%v",
		i.PeripheralType, i.Vendor, i.Product, i.Revision, i.Removable)
}

// Capacity is the medium size reported by READ CAPACITY.
type Capacity struct {
	// Blocks is the total number of logical blocks.
	Blocks uint64
	// BlockSize is the logical block size in bytes.
	BlockSize uint32
}

// Saturated reports whether a 10-byte READ CAPACITY reply pinned its
// 32-bit last-LBA field. The true capacity then exceeds what the
// 10-byte form can express and must be re-read with ReadCapacity16.
func (c Capacity) Saturated() bool {
	return c.Blocks == 1<<32
}

// Bytes is the total medium size in bytes.
func (c Capacity) Bytes() uint64 {
	return c.Blocks * uint64(c.BlockSize)
}

// SenseData is the diagnostic triple from fixed-format sense data,
// produced by a device after a CHECK CONDITION status.
type SenseData struct {
	Key  SenseKey
	ASC  byte
	ASCQ byte
}

// Three-level condition naming: exact key/ASC/ASCQ match first, then
// key/ASC, then the bare key category.
var senseText3 = []struct {
	key  SenseKey
	asc  byte
	ascq byte
	text string
}{
	{KeyNotReady, AscLogicalUnitNotReady, AscqBecomingReady, "becoming ready"},
	{KeyNotReady, AscLogicalUnitNotReady, AscqStartUnitRequired, "start unit required"},
	{KeyNotReady, AscLogicalUnitNotReady, AscqManualIntervention, "manual intervention required"},
	{KeyNotReady, AscLogicalUnitNotReady, AscqFormatInProgress, "format in progress"},
	{KeyNotReady, AscLogicalUnitNotReady, AscqSelfTestInProgress, "self-test in progress"},
	{KeyMediumError, AscWriteError, 0x00, "write error"},
	{KeyMediumError, AscWriteError, 0x02, "write reallocation failed"},
	{KeyMediumError, AscUnrecoveredReadError, 0x00, "unrecovered read error"},
	{KeyMediumError, AscRecordNotFound, 0x01, "record not found"},
	{KeyUnitAttention, AscMediaChanged, 0x00, "media changed"},
	{KeyUnitAttention, AscResetOccurred, 0x00, "reset occurred"},
	{KeyIllegalRequest, AscInvalidFieldInParamList, 0x00, "invalid field in parameter list"},
}

var senseText2 = []struct {
	key  SenseKey
	asc  byte
	text string
}{
	{KeyIllegalRequest, AscParameterListLength, "parameter list length error"},
	{KeyIllegalRequest, AscInvalidCommandOpcode, "invalid command operation code"},
	{KeyIllegalRequest, AscLBAOutOfRange, "logical block address out of range"},
	{KeyIllegalRequest, AscInvalidFieldInCDB, "invalid field in CDB"},
	{KeyIllegalRequest, AscLogicalUnitNotSupported, "logical unit not supported"},
}

func (s SenseData) String() string {
	for _, e := range senseText3 {
		if s.Key == e.key && s.ASC == e.asc && s.ASCQ == e.ascq {
			return fmt.Sprintf("%s: %s (asc %#02x ascq %#02x)", s.Key, e.text, s.ASC, s.ASCQ)
		}
	}
	for _, e := range senseText2 {
		if s.Key == e.key && s.ASC == e.asc {
			return fmt.Sprintf("%s: %s (asc %#02x ascq %#02x)", s.Key, e.text, s.ASC, s.ASCQ)
		}
	}
	return fmt.Sprintf("%s (asc %#02x ascq %#02x)", s.Key, s.ASC, s.ASCQ)
}
