package scsi

import "fmt"

// EncodeError reports a CDB field value that does not fit the chosen
// command variant. The caller should pick a wider variant or split the
// request.
type EncodeError string

func (e EncodeError) Error() string { return string(e) }

// DecodeError reports a malformed or truncated response payload, or a
// data phase that moved fewer bytes than the command declared.
type DecodeError string

func (e DecodeError) Error() string { return string(e) }

// DeviceError is a fault reported by the device itself, after the retry
// budget for transient conditions has been spent. Sense is nil when the
// device returned a non-GOOD status without usable sense data.
type DeviceError struct {
	Status Status
	Sense  *SenseData
}

func (e *DeviceError) Error() string {
	if e.Sense != nil {
		return fmt.Sprintf("scsi: device fault: %s", e.Sense)
	}
	return fmt.Sprintf("scsi: device fault: status %s", e.Status)
}

// SenseKey returns the categorizing sense key, or KeyNoSense when the
// device supplied no sense data.
func (e *DeviceError) SenseKey() SenseKey {
	if e.Sense == nil {
		return KeyNoSense
	}
	return e.Sense.Key
}

// TransportError wraps an error surfaced by the Transport. It is not
// interpreted by this package; callers unwrap it to distinguish
// "transport says no" from "device says no".
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "scsi: transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }
