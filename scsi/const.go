package scsi

// Command operation codes for direct-access devices. Codes and layouts
// follow the Seagate SCSI Commands Reference Manual; sense codes are
// catalogued at www.t10.org/lists/asc-num.txt.
const (
	OpTestUnitReady   = 0x00
	OpRequestSense    = 0x03
	OpInquiry         = 0x12
	OpReadCapacity10  = 0x25
	OpRead10          = 0x28
	OpWrite10         = 0x2a
	OpRead12          = 0xa8
	OpWrite12         = 0xaa
	OpRead16          = 0x88
	OpWrite16         = 0x8a
	OpServiceActionIn = 0x9e

	// Service action for OpServiceActionIn.
	SaiReadCapacity16 = 0x10
)

var opNames = map[byte]string{
	OpTestUnitReady:   "TEST UNIT READY",
	OpRequestSense:    "REQUEST SENSE",
	OpInquiry:         "INQUIRY",
	OpReadCapacity10:  "READ CAPACITY(10)",
	OpRead10:          "READ(10)",
	OpWrite10:         "WRITE(10)",
	OpRead12:          "READ(12)",
	OpWrite12:         "WRITE(12)",
	OpRead16:          "READ(16)",
	OpWrite16:         "WRITE(16)",
	OpServiceActionIn: "SERVICE ACTION IN(16)",
}

func opName(op byte) string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return "opcode " + hexByte(op)
}

// Fixed CDB lengths per opcode group.
const (
	cdbLen6  = 6
	cdbLen10 = 10
	cdbLen12 = 12
	cdbLen16 = 16
)

// Status is the SCSI status byte returned for a command, per SAM-3.
// It is not itself an error; CheckCondition means sense data must be
// obtained and interpreted.
type Status byte

const (
	StatusGood                Status = 0x00
	StatusCheckCondition      Status = 0x02
	StatusConditionMet        Status = 0x04
	StatusBusy                Status = 0x08
	StatusReservationConflict Status = 0x18
	StatusTaskSetFull         Status = 0x28
	StatusACAActive           Status = 0x30
	StatusTaskAborted         Status = 0x40
)

var statusNames = map[Status]string{
	StatusGood:                "GOOD",
	StatusCheckCondition:      "CHECK CONDITION",
	StatusConditionMet:        "CONDITION MET",
	StatusBusy:                "BUSY",
	StatusReservationConflict: "RESERVATION CONFLICT",
	StatusTaskSetFull:         "TASK SET FULL",
	StatusACAActive:           "ACA ACTIVE",
	StatusTaskAborted:         "TASK ABORTED",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "Status(" + hexByte(byte(s)) + ")"
}

// SenseKey is the category field of fixed-format sense data.
type SenseKey byte

const (
	KeyNoSense        SenseKey = 0x0
	KeyRecoveredError SenseKey = 0x1
	KeyNotReady       SenseKey = 0x2
	KeyMediumError    SenseKey = 0x3
	KeyHardwareError  SenseKey = 0x4
	KeyIllegalRequest SenseKey = 0x5
	KeyUnitAttention  SenseKey = 0x6
	KeyDataProtect    SenseKey = 0x7
	KeyBlankCheck     SenseKey = 0x8
	KeyVendorSpecific SenseKey = 0x9
	KeyCopyAborted    SenseKey = 0xa
	KeyAbortedCommand SenseKey = 0xb
	KeyVolumeOverflow SenseKey = 0xd
	KeyMiscompare     SenseKey = 0xe
)

var senseKeyNames = map[SenseKey]string{
	KeyNoSense:        "NO SENSE",
	KeyRecoveredError: "RECOVERED ERROR",
	KeyNotReady:       "NOT READY",
	KeyMediumError:    "MEDIUM ERROR",
	KeyHardwareError:  "HARDWARE ERROR",
	KeyIllegalRequest: "ILLEGAL REQUEST",
	KeyUnitAttention:  "UNIT ATTENTION",
	KeyDataProtect:    "DATA PROTECT",
	KeyBlankCheck:     "BLANK CHECK",
	KeyVendorSpecific: "VENDOR SPECIFIC",
	KeyCopyAborted:    "COPY ABORTED",
	KeyAbortedCommand: "ABORTED COMMAND",
	KeyVolumeOverflow: "VOLUME OVERFLOW",
	KeyMiscompare:     "MISCOMPARE",
}

func (k SenseKey) String() string {
	if n, ok := senseKeyNames[k]; ok {
		return n
	}
	return "SenseKey(" + hexByte(byte(k)) + ")"
}

// Additional sense codes this package recognizes by name.
const (
	AscLogicalUnitNotReady     = 0x04
	AscWriteError              = 0x0c
	AscUnrecoveredReadError    = 0x11
	AscRecordNotFound          = 0x14
	AscParameterListLength     = 0x1a
	AscInvalidCommandOpcode    = 0x20
	AscLBAOutOfRange           = 0x21
	AscInvalidFieldInCDB       = 0x24
	AscLogicalUnitNotSupported = 0x25
	AscInvalidFieldInParamList = 0x26
	AscMediaChanged            = 0x28
	AscResetOccurred           = 0x29
)

// Qualifiers for AscLogicalUnitNotReady.
const (
	AscqBecomingReady      = 0x01
	AscqStartUnitRequired  = 0x02
	AscqManualIntervention = 0x03
	AscqFormatInProgress   = 0x04
	AscqSelfTestInProgress = 0x09
)

// PeripheralType is the general device class reported by INQUIRY.
type PeripheralType byte

const (
	TypeDisk             PeripheralType = 0x00
	TypeSequential       PeripheralType = 0x01
	TypePrinter          PeripheralType = 0x02
	TypeProcessor        PeripheralType = 0x03
	TypeWriteOnce        PeripheralType = 0x04
	TypeOptical          PeripheralType = 0x05
	TypeScanner          PeripheralType = 0x06
	TypeOpticalMemory    PeripheralType = 0x07
	TypeChanger          PeripheralType = 0x08
	TypeStorageArray     PeripheralType = 0x0c
	TypeEnclosure        PeripheralType = 0x0d
	TypeSimplifiedDirect PeripheralType = 0x0e
	TypeWellKnownUnit    PeripheralType = 0x1e
	TypeOther            PeripheralType = 0x1f
)

var peripheralNames = map[PeripheralType]string{
	TypeDisk:             "disk",
	TypeSequential:       "tape",
	TypePrinter:          "printer",
	TypeProcessor:        "processor",
	TypeWriteOnce:        "write-once",
	TypeOptical:          "optical",
	TypeScanner:          "scanner",
	TypeOpticalMemory:    "optical memory",
	TypeChanger:          "changer",
	TypeStorageArray:     "storage array",
	TypeEnclosure:        "enclosure services",
	TypeSimplifiedDirect: "simplified direct-access",
	TypeWellKnownUnit:    "well-known unit",
	TypeOther:            "other",
}

func (p PeripheralType) String() string {
	if n, ok := peripheralNames[p]; ok {
		return n
	}
	return "PeripheralType(" + hexByte(byte(p)) + ")"
}

// DiskCompatible reports whether the device speaks the direct-access
// block command set this package issues.
func (p PeripheralType) DiskCompatible() bool {
	return p == TypeDisk || p == TypeSimplifiedDirect
}

const hexDigits = "0123456789abcdef"

func hexByte(b byte) string {
	return "0x" + string([]byte{hexDigits[b>>4], hexDigits[b&0xf]})
}
