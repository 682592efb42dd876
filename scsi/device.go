package scsi

import (
	"time"

	"go.uber.org/atomic"

	"github.com/blockkit/go-scsi/log"
)

// DefaultRetryBudget is the total number of attempts for one command,
// counting the first issue.
const DefaultRetryBudget = 3

// Device is a SCSI logical unit reached through a Transport. It runs
// one synchronous command/response exchange at a time and owns the
// retry policy for transient conditions.
//
// A Device has no internal locking; a caller in a concurrent program
// must hold exclusive access for the duration of one logical
// operation.
type Device struct {
	t Transport

	// RetryBudget overrides DefaultRetryBudget when positive.
	RetryBudget int

	// Settle is slept before re-issuing a command after a
	// transient not-ready condition. Zero means retry immediately.
	Settle time.Duration

	// Log receives per-command debug traces. Nil is silent.
	Log *log.ChildLogger

	commands *atomic.Uint64
	retries  *atomic.Uint64
}

// NewDevice wraps a transport in a device session.
func NewDevice(t Transport) *Device {
	return &Device{
		t:        t,
		commands: atomic.NewUint64(0),
		retries:  atomic.NewUint64(0),
	}
}

// DeviceStats are cumulative counters for one session.
type DeviceStats struct {
	// Commands counts every CDB put on the transport, including
	// interposed REQUEST SENSE and TEST UNIT READY commands.
	Commands uint64
	// Retries counts re-issues after a transient condition.
	Retries uint64
}

func (d *Device) Stats() DeviceStats {
	return DeviceStats{
		Commands: d.commands.Load(),
		Retries:  d.retries.Load(),
	}
}

// MaxTransfer reports the transport's per-command data-phase limit in
// bytes. Zero means no limit.
func (d *Device) MaxTransfer() int {
	return d.t.MaxTransfer()
}

func (d *Device) budget() int {
	if d.RetryBudget > 0 {
		return d.RetryBudget
	}
	return DefaultRetryBudget
}

func (d *Device) debugf(format string, args ...interface{}) {
	if d.Log != nil {
		d.Log.Debugf(format, args...)
	}
}

// CommandResponse issues an arbitrary CDB with the given data phase
// and returns the number of data bytes moved. It is the escape hatch
// for commands without a named method; the named methods below all go
// through it.
//
// Transient conditions (UNIT ATTENTION, a unit still becoming ready,
// BUSY) are retried with the identical CDB up to the retry budget;
// exhausting the budget, or any fatal sense key, surfaces a
// *DeviceError. Transport failures surface as *TransportError and are
// never retried.
func (d *Device) CommandResponse(cdb []byte, dir Direction, buf []byte) (int, error) {
	budget := d.budget()
	var lastFault *DeviceError
	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			d.retries.Inc()
		}
		n, act, fault, err := d.issue(cdb, dir, buf)
		if err != nil {
			return 0, err
		}
		if act == actionSucceed {
			return n, nil
		}
		lastFault = fault
		if act == actionFail || attempt == budget {
			break
		}
		d.debugf("%s attempt %d/%d: %v, retrying", opName(cdb[0]), attempt, budget, fault)
		if act == actionRetryAfterTUR {
			d.interposeTestUnitReady()
			if d.Settle > 0 {
				time.Sleep(d.Settle)
			}
		}
	}
	return 0, lastFault
}

// issue runs one exchange and classifies its outcome. err is non-nil
// only for non-retryable local failures (transport, protocol).
func (d *Device) issue(cdb []byte, dir Direction, buf []byte) (n int, act action, fault *DeviceError, err error) {
	d.commands.Inc()
	status, n, senseBytes, terr := d.t.Command(cdb, dir, buf)
	if terr != nil {
		d.debugf("%s: transport error: %v", opName(cdb[0]), terr)
		return 0, actionFail, nil, &TransportError{Err: terr}
	}
	d.debugf("%s dir=%s status=%s n=%d", opName(cdb[0]), dir, status, n)

	if status == StatusCheckCondition {
		sd, serr := d.senseFor(senseBytes)
		if serr != nil {
			return 0, actionFail, nil, serr
		}
		d.debugf("%s: sense %s", opName(cdb[0]), sd)
		if act := classifySense(sd); act != actionSucceed {
			return 0, act, &DeviceError{Status: status, Sense: &sd}, nil
		}
	} else if act := classifyStatus(status); act != actionSucceed {
		return 0, act, &DeviceError{Status: status}, nil
	}

	// The declared transfer length must match the data moved.
	if dir != DirNone && n < len(buf) {
		return 0, actionFail, nil, DecodeError(
			"scsi: " + opName(cdb[0]) + " moved fewer bytes than the command declared")
	}
	return n, actionSucceed, nil, nil
}

// senseFor obtains sense data for a CHECK CONDITION, either from the
// transport's auto-sense bytes or via a separate REQUEST SENSE.
func (d *Device) senseFor(auto []byte) (SenseData, error) {
	if auto != nil {
		return ParseSense(auto)
	}
	return d.requestSense()
}

// requestSense talks to the transport directly: it is called from the
// middle of another command's exchange and must not recurse into the
// retry loop.
func (d *Device) requestSense() (SenseData, error) {
	buf := make([]byte, SenseAllocLen)
	d.commands.Inc()
	status, n, _, err := d.t.Command(RequestSense(SenseAllocLen), DirIn, buf)
	if err != nil {
		return SenseData{}, &TransportError{Err: err}
	}
	if status != StatusGood {
		return SenseData{}, &DeviceError{Status: status}
	}
	return ParseSense(buf[:n])
}

// interposeTestUnitReady pokes a settling device between retries. Its
// outcome is deliberately ignored; the retried command decides.
func (d *Device) interposeTestUnitReady() {
	d.commands.Inc()
	status, _, _, err := d.t.Command(TestUnitReady(), DirNone, nil)
	d.debugf("interposed TEST UNIT READY: status=%s err=%v", status, err)
}

// Inquiry identifies the device: peripheral type, removable flag and
// vendor/product/revision strings. Typically the first command issued
// to a newly-attached device, together with TestUnitReady.
func (d *Device) Inquiry() (InquiryData, error) {
	buf := make([]byte, InquiryReplyLen)
	if _, err := d.CommandResponse(Inquiry(InquiryReplyLen), DirIn, buf); err != nil {
		return InquiryData{}, err
	}
	return ParseInquiry(buf)
}

// TestUnitReady asks whether the unit can service media-access
// commands. Hard drives may take a while to spin up.
func (d *Device) TestUnitReady() error {
	_, err := d.CommandResponse(TestUnitReady(), DirNone, nil)
	return err
}

// RequestSense fetches the current sense data explicitly.
func (d *Device) RequestSense() (SenseData, error) {
	return d.requestSense()
}

// ReadCapacity10 reads the medium capacity with the 32-bit form. When
// the result reports Saturated the medium is larger than the 10-byte
// command can express and the caller falls back to ReadCapacity16.
func (d *Device) ReadCapacity10() (Capacity, error) {
	buf := make([]byte, capacity10ReplyLen)
	if _, err := d.CommandResponse(ReadCapacity10(), DirIn, buf); err != nil {
		return Capacity{}, err
	}
	return ParseCapacity10(buf)
}

// ReadCapacity16 reads the medium capacity with the 64-bit form. Not
// universally supported, but required on devices beyond 2TB.
func (d *Device) ReadCapacity16() (Capacity, error) {
	buf := make([]byte, capacity16AllocLen)
	if _, err := d.CommandResponse(ReadCapacity16(), DirIn, buf); err != nil {
		return Capacity{}, err
	}
	return ParseCapacity16(buf)
}

// ReadCapacity reads the capacity with the 10-byte form and falls back
// to the 16-byte form when the 32-bit field saturates.
func (d *Device) ReadCapacity() (Capacity, error) {
	c, err := d.ReadCapacity10()
	if err != nil {
		return Capacity{}, err
	}
	if c.Saturated() {
		return d.ReadCapacity16()
	}
	return c, nil
}
