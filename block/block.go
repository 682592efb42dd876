// Package block exposes a SCSI direct-access device as a logical
// block device: sector-addressed read/write with capacity discovery,
// command-variant selection and transfer splitting.
package block

import (
	"errors"
	"fmt"
	"time"

	"github.com/paulbellamy/ratecounter"

	"github.com/blockkit/go-scsi/log"
	"github.com/blockkit/go-scsi/quirks"
	"github.com/blockkit/go-scsi/scsi"
)

var (
	// ErrOutOfRange is returned before any command is issued when a
	// request addresses blocks beyond the cached capacity.
	ErrOutOfRange = errors.New("block: request addresses blocks beyond the medium")

	// ErrUnaddressable is returned when a block beyond the 32-bit
	// range is requested and 16-byte commands are disabled by quirk.
	ErrUnaddressable = errors.New("block: address needs 16-byte commands, which this device rejects")

	// ErrBufferSize is returned when the caller's buffer is not
	// exactly count blocks long.
	ErrBufferSize = errors.New("block: buffer length must equal count times the block size")

	// ErrNotDisk is returned by Open for peripheral types that do
	// not speak the direct-access command set.
	ErrNotDisk = errors.New("block: not a direct-access device")
)

// Options configure Open. The zero value is valid.
type Options struct {
	// Capacity, when set, is trusted and capacity discovery is
	// skipped.
	Capacity *scsi.Capacity

	// Quirks is matched against the INQUIRY identification; a hit
	// restricts the command set or transfer size.
	Quirks *quirks.DB

	// Log receives open/close and throughput traces. Nil is silent.
	Log *log.ChildLogger
}

// Device is a logical block device on one SCSI session. Capacity is
// fetched once at Open and is authoritative for bounds checks for the
// session's lifetime.
//
// Like the underlying session, a Device issues one command at a time
// and has no internal locking.
type Device struct {
	sess  *scsi.Device
	inq   scsi.InquiryData
	cap   scsi.Capacity
	quirk *quirks.Entry

	// Largest number of blocks moved by one command. Zero means the
	// variant field widths are the only limit.
	maxBlocks uint32

	readRate  *ratecounter.RateCounter
	writeRate *ratecounter.RateCounter
	logger    *log.ChildLogger
}

// Open probes the session and builds a block device on it. It rejects
// devices whose peripheral type is not disk-compatible and media that
// report zero blocks or a zero block size.
func Open(sess *scsi.Device, opts *Options) (*Device, error) {
	if opts == nil {
		opts = &Options{}
	}

	inq, err := sess.Inquiry()
	if err != nil {
		return nil, err
	}
	if !inq.PeripheralType.DiskCompatible() {
		return nil, fmt.Errorf("%w: %s", ErrNotDisk, inq.PeripheralType)
	}

	if err := sess.TestUnitReady(); err != nil {
		return nil, err
	}

	var c scsi.Capacity
	if opts.Capacity != nil {
		c = *opts.Capacity
	} else if c, err = sess.ReadCapacity(); err != nil {
		return nil, err
	}
	if c.Blocks == 0 || c.BlockSize == 0 {
		return nil, fmt.Errorf("block: device reports %d blocks of %d bytes", c.Blocks, c.BlockSize)
	}

	d := &Device{
		sess:      sess,
		inq:       inq,
		cap:       c,
		readRate:  ratecounter.NewRateCounter(time.Second),
		writeRate: ratecounter.NewRateCounter(time.Second),
		logger:    opts.Log,
	}

	if max := sess.MaxTransfer(); max > 0 {
		d.maxBlocks = uint32(max / int(c.BlockSize))
		if d.maxBlocks == 0 {
			return nil, fmt.Errorf("block: transport limit %d is below the block size %d", max, c.BlockSize)
		}
	}
	if opts.Quirks != nil {
		if q := opts.Quirks.Lookup(inq); q != nil {
			d.quirk = q
			if q.MaxTransferBlocks > 0 && (d.maxBlocks == 0 || q.MaxTransferBlocks < d.maxBlocks) {
				d.maxBlocks = q.MaxTransferBlocks
			}
			d.infof("quirk %q applied", q.Family)
		}
	}

	d.infof("opened %s: %d blocks of %d bytes", inq, c.Blocks, c.BlockSize)
	return d, nil
}

func (d *Device) infof(format string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Infof(format, args...)
	}
}

func (d *Device) debugf(format string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Debugf(format, args...)
	}
}

// Info returns the INQUIRY identification captured at Open.
func (d *Device) Info() scsi.InquiryData { return d.inq }

// Capacity returns the capacity cached at Open.
func (d *Device) Capacity() scsi.Capacity { return d.cap }

// NumBlocks is the total number of logical blocks.
func (d *Device) NumBlocks() uint64 { return d.cap.Blocks }

// BlockSize is the logical block size in bytes.
func (d *Device) BlockSize() uint32 { return d.cap.BlockSize }

// Session returns the underlying device session, for commands outside
// the block I/O surface.
func (d *Device) Session() *scsi.Device { return d.sess }

// ReadRate is the read throughput over the last second, in bytes.
func (d *Device) ReadRate() int64 { return d.readRate.Rate() }

// WriteRate is the write throughput over the last second, in bytes.
func (d *Device) WriteRate() int64 { return d.writeRate.Rate() }

// ReadBlocks reads count blocks starting at lba into buf, which must
// be exactly count blocks long.
//
// Transfers above the per-command limit are split and issued in
// address order. Failure semantics are all-or-nothing: on error the
// whole buffer contents are unspecified, and no count of blocks
// already transferred is reported.
func (d *Device) ReadBlocks(lba uint64, count uint32, buf []byte) error {
	return d.transfer(lba, count, buf, false)
}

// WriteBlocks writes count blocks starting at lba from buf, which
// must be exactly count blocks long; there is no read-modify-write
// for partial blocks.
//
// Transfers above the per-command limit are split and issued in
// address order. Failure semantics are all-or-nothing: on error the
// set of blocks actually written is unspecified, and no count of
// blocks already transferred is reported.
func (d *Device) WriteBlocks(lba uint64, count uint32, buf []byte) error {
	return d.transfer(lba, count, buf, true)
}

func (d *Device) transfer(lba uint64, count uint32, buf []byte, write bool) error {
	if lba > d.cap.Blocks || uint64(count) > d.cap.Blocks-lba {
		return ErrOutOfRange
	}
	if uint64(len(buf)) != uint64(count)*uint64(d.cap.BlockSize) {
		return ErrBufferSize
	}
	if count == 0 {
		return nil
	}

	no16 := d.quirk != nil && d.quirk.No16Byte
	dir := scsi.DirIn
	rate := d.readRate
	if write {
		dir = scsi.DirOut
		rate = d.writeRate
	}

	cur, remaining, off := lba, count, 0
	for remaining > 0 {
		n := remaining
		if d.maxBlocks > 0 && n > d.maxBlocks {
			n = d.maxBlocks
		}

		v, err := commandVariant(cur, n, no16)
		if err != nil {
			return err
		}
		cdb, err := buildCDB(v, write, cur, n)
		if err != nil {
			return err
		}

		nbytes := int(n) * int(d.cap.BlockSize)
		d.debugf("%s lba=%d count=%d (%s)", cdbVerb(write), cur, n, v)
		if _, err := d.sess.CommandResponse(cdb, dir, buf[off:off+nbytes]); err != nil {
			return err
		}
		rate.Incr(int64(nbytes))

		cur += uint64(n)
		remaining -= n
		off += nbytes
	}
	return nil
}

func buildCDB(v variant, write bool, lba uint64, count uint32) ([]byte, error) {
	switch v {
	case variant10:
		if write {
			return scsi.Write10(lba, count)
		}
		return scsi.Read10(lba, count)
	case variant12:
		if write {
			return scsi.Write12(lba, count)
		}
		return scsi.Read12(lba, count)
	default:
		if write {
			return scsi.Write16(lba, count), nil
		}
		return scsi.Read16(lba, count), nil
	}
}

func cdbVerb(write bool) string {
	if write {
		return "write"
	}
	return "read"
}
