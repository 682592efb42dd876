package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockkit/go-scsi/quirks"
	"github.com/blockkit/go-scsi/scsi"
)

const inquiryStr = `00 80 05 02 1f 00 00 00
4a 4d 69 63 72 6f 6e 20
55 53 42 20 74 6f 20 41 54 41 2f 41 54 41 50 49
30 35 30 36`

// One million 512-byte blocks.
const capacityStr = `00 0f 42 3f 00 00 02 00`

func parseHex(s string) []byte {
	hex := strings.Replace(s, " ", "", -1)
	hex = strings.Replace(hex, "\n", "", -1)
	buf := bytes.NewBufferString(hex)
	bin := make([]byte, len(hex)/2)

	_, err := fmt.Fscanf(buf, "%x", &bin)
	if err != nil {
		panic(err)
	}
	if buf.Len() > 0 {
		panic("consume")
	}
	return bin
}

type cmdStep struct {
	wantOp byte
	status scsi.Status
	data   []byte // copied into buf on DirIn; nil fills the whole buffer
	sense  []byte
	err    error
}

type scriptTransport struct {
	t     *testing.T
	steps []cmdStep
	cdbs  [][]byte
	max   int
}

func (s *scriptTransport) Command(cdb []byte, dir scsi.Direction, buf []byte) (scsi.Status, int, []byte, error) {
	s.cdbs = append(s.cdbs, append([]byte(nil), cdb...))
	if len(s.steps) == 0 {
		s.t.Fatalf("unexpected command %#x", cdb[0])
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if cdb[0] != st.wantOp {
		s.t.Fatalf("got command %#x, scripted %#x", cdb[0], st.wantOp)
	}
	if st.err != nil {
		return 0, 0, nil, st.err
	}

	n := 0
	switch dir {
	case scsi.DirIn:
		if st.data != nil {
			n = copy(buf, st.data)
		} else {
			n = len(buf)
		}
	case scsi.DirOut:
		n = len(buf)
	}
	return st.status, n, st.sense, nil
}

func (s *scriptTransport) MaxTransfer() int { return s.max }

func (s *scriptTransport) done() {
	if len(s.steps) > 0 {
		s.t.Errorf("%d scripted commands never issued", len(s.steps))
	}
}

func fixedSense(key scsi.SenseKey, asc, ascq byte) []byte {
	s := make([]byte, scsi.SenseAllocLen)
	s[0] = 0x70
	s[2] = byte(key)
	s[7] = 10
	s[12] = asc
	s[13] = ascq
	return s
}

func openSteps() []cmdStep {
	return []cmdStep{
		{wantOp: scsi.OpInquiry, status: scsi.StatusGood, data: parseHex(inquiryStr)},
		{wantOp: scsi.OpTestUnitReady, status: scsi.StatusGood},
		{wantOp: scsi.OpReadCapacity10, status: scsi.StatusGood, data: parseHex(capacityStr)},
	}
}

func openDevice(t *testing.T, tr *scriptTransport, opts *Options) *Device {
	d, err := Open(scsi.NewDevice(tr), opts)
	require.NoError(t, err)
	return d
}

// cdb10 decodes the LBA and transfer length of a 10-byte READ/WRITE.
func cdb10(cdb []byte) (lba uint64, count uint32) {
	return uint64(binary.BigEndian.Uint32(cdb[2:6])), uint32(binary.BigEndian.Uint16(cdb[7:9]))
}

func TestOpen(t *testing.T) {
	tr := &scriptTransport{t: t, steps: openSteps()}
	d := openDevice(t, tr, nil)
	tr.done()

	assert.Equal(t, uint64(1000000), d.NumBlocks())
	assert.Equal(t, uint32(512), d.BlockSize())
	assert.Equal(t, "JMicron", d.Info().Vendor)
	assert.Equal(t, uint64(512000000), d.Capacity().Bytes())
}

func TestOpenRejectsNonDisk(t *testing.T) {
	inq := parseHex(inquiryStr)
	inq[0] = byte(scsi.TypeOptical)
	tr := &scriptTransport{t: t, steps: []cmdStep{
		{wantOp: scsi.OpInquiry, status: scsi.StatusGood, data: inq},
	}}

	_, err := Open(scsi.NewDevice(tr), nil)
	assert.ErrorIs(t, err, ErrNotDisk)
	tr.done()
}

func TestOpenPresetCapacity(t *testing.T) {
	// A preset capacity skips READ CAPACITY entirely.
	tr := &scriptTransport{t: t, steps: []cmdStep{
		{wantOp: scsi.OpInquiry, status: scsi.StatusGood, data: parseHex(inquiryStr)},
		{wantOp: scsi.OpTestUnitReady, status: scsi.StatusGood},
	}}
	d := openDevice(t, tr, &Options{
		Capacity: &scsi.Capacity{Blocks: 1 << 33, BlockSize: 512},
	})
	tr.done()

	assert.Equal(t, uint64(1)<<33, d.NumBlocks())
}

func TestReadOutOfRange(t *testing.T) {
	tr := &scriptTransport{t: t, steps: openSteps()}
	d := openDevice(t, tr, nil)

	err := d.ReadBlocks(999999, 2, make([]byte, 1024))
	assert.ErrorIs(t, err, ErrOutOfRange)
	// Rejected before anything reaches the wire.
	assert.Len(t, tr.cdbs, 3)

	// The last block itself is still addressable.
	tr.steps = []cmdStep{{wantOp: scsi.OpRead10, status: scsi.StatusGood}}
	require.NoError(t, d.ReadBlocks(999999, 1, make([]byte, 512)))
	tr.done()
}

func TestBufferSizeMismatch(t *testing.T) {
	tr := &scriptTransport{t: t, steps: openSteps()}
	d := openDevice(t, tr, nil)

	assert.ErrorIs(t, d.ReadBlocks(0, 2, make([]byte, 512)), ErrBufferSize)
	assert.ErrorIs(t, d.WriteBlocks(0, 1, make([]byte, 513)), ErrBufferSize)
	assert.Len(t, tr.cdbs, 3)
}

func TestZeroCountTransfer(t *testing.T) {
	tr := &scriptTransport{t: t, steps: openSteps()}
	d := openDevice(t, tr, nil)

	require.NoError(t, d.ReadBlocks(42, 0, nil))
	assert.Len(t, tr.cdbs, 3)
}

func TestSingleRead(t *testing.T) {
	tr := &scriptTransport{t: t, steps: openSteps()}
	d := openDevice(t, tr, nil)

	tr.steps = []cmdStep{{wantOp: scsi.OpRead10, status: scsi.StatusGood}}
	require.NoError(t, d.ReadBlocks(0, 8, make([]byte, 4096)))
	tr.done()

	assert.Equal(t, []byte{0x28, 0, 0, 0, 0, 0, 0, 0, 0x08, 0}, tr.cdbs[3])
	assert.Equal(t, int64(4096), d.ReadRate())
}

func TestSplitTransfer(t *testing.T) {
	// An 8-block transport limit splits a 20-block read into 8+8+4,
	// in address order.
	tr := &scriptTransport{t: t, steps: openSteps(), max: 8 * 512}
	d := openDevice(t, tr, nil)

	tr.steps = []cmdStep{
		{wantOp: scsi.OpRead10, status: scsi.StatusGood},
		{wantOp: scsi.OpRead10, status: scsi.StatusGood},
		{wantOp: scsi.OpRead10, status: scsi.StatusGood},
	}
	require.NoError(t, d.ReadBlocks(100, 20, make([]byte, 20*512)))
	tr.done()

	var lbas []uint64
	var counts []uint32
	for _, cdb := range tr.cdbs[3:] {
		lba, count := cdb10(cdb)
		lbas = append(lbas, lba)
		counts = append(counts, count)
	}
	assert.Equal(t, []uint64{100, 108, 116}, lbas)
	assert.Equal(t, []uint32{8, 8, 4}, counts)
}

func TestSplitAbortsOnFault(t *testing.T) {
	tr := &scriptTransport{t: t, steps: openSteps(), max: 8 * 512}
	d := openDevice(t, tr, nil)

	tr.steps = []cmdStep{
		{wantOp: scsi.OpWrite10, status: scsi.StatusGood},
		{wantOp: scsi.OpWrite10, status: scsi.StatusCheckCondition,
			sense: fixedSense(scsi.KeyMediumError, scsi.AscWriteError, 0)},
	}
	err := d.WriteBlocks(0, 16, make([]byte, 16*512))

	var derr *scsi.DeviceError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, scsi.KeyMediumError, derr.SenseKey())
	// Nothing issued past the failed chunk.
	assert.Len(t, tr.cdbs, 5)
	tr.done()
}

func TestRead16BeyondThirtyTwoBits(t *testing.T) {
	tr := &scriptTransport{t: t, steps: []cmdStep{
		{wantOp: scsi.OpInquiry, status: scsi.StatusGood, data: parseHex(inquiryStr)},
		{wantOp: scsi.OpTestUnitReady, status: scsi.StatusGood},
	}}
	d := openDevice(t, tr, &Options{
		Capacity: &scsi.Capacity{Blocks: 1 << 33, BlockSize: 512},
	})

	tr.steps = []cmdStep{{wantOp: scsi.OpRead16, status: scsi.StatusGood}}
	require.NoError(t, d.ReadBlocks(1<<32, 1, make([]byte, 512)))
	tr.done()

	cdb := tr.cdbs[2]
	assert.Equal(t, uint64(1)<<32, binary.BigEndian.Uint64(cdb[2:10]))
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(cdb[10:14]))
}

const quirkYAML = `
devices:
  - family: jmicron bridge
    vendorregex: JMicron
    no16byte: true
`

func TestQuirkNo16Uses12Byte(t *testing.T) {
	db, err := quirks.LoadReader(strings.NewReader(quirkYAML))
	require.NoError(t, err)

	tr := &scriptTransport{t: t, steps: []cmdStep{
		{wantOp: scsi.OpInquiry, status: scsi.StatusGood, data: parseHex(inquiryStr)},
		{wantOp: scsi.OpTestUnitReady, status: scsi.StatusGood},
	}}
	d := openDevice(t, tr, &Options{
		Capacity: &scsi.Capacity{Blocks: 0x200000, BlockSize: 512},
		Quirks:   db,
	})

	// 0x10000 blocks overflow the 10-byte length field; without
	// 16-byte commands the 12-byte form carries it.
	tr.steps = []cmdStep{{wantOp: scsi.OpWrite12, status: scsi.StatusGood}}
	require.NoError(t, d.WriteBlocks(0, 0x10000, make([]byte, 0x10000*512)))
	tr.done()

	cdb := tr.cdbs[2]
	assert.Equal(t, uint32(0x10000), binary.BigEndian.Uint32(cdb[6:10]))
}

func TestQuirkNo16Unaddressable(t *testing.T) {
	db, err := quirks.LoadReader(strings.NewReader(quirkYAML))
	require.NoError(t, err)

	tr := &scriptTransport{t: t, steps: []cmdStep{
		{wantOp: scsi.OpInquiry, status: scsi.StatusGood, data: parseHex(inquiryStr)},
		{wantOp: scsi.OpTestUnitReady, status: scsi.StatusGood},
	}}
	d := openDevice(t, tr, &Options{
		Capacity: &scsi.Capacity{Blocks: 1 << 33, BlockSize: 512},
		Quirks:   db,
	})

	err = d.ReadBlocks(1<<32, 1, make([]byte, 512))
	assert.ErrorIs(t, err, ErrUnaddressable)
	assert.Len(t, tr.cdbs, 2)
}

func TestQuirkMaxTransferClamp(t *testing.T) {
	db, err := quirks.LoadReader(strings.NewReader(`
devices:
  - family: tiny bounce buffer
    productregex: ATA/ATAPI
    maxtransferblocks: 4
`))
	require.NoError(t, err)

	tr := &scriptTransport{t: t, steps: openSteps()}
	d := openDevice(t, tr, &Options{Quirks: db})

	tr.steps = []cmdStep{
		{wantOp: scsi.OpWrite10, status: scsi.StatusGood},
		{wantOp: scsi.OpWrite10, status: scsi.StatusGood},
		{wantOp: scsi.OpWrite10, status: scsi.StatusGood},
	}
	require.NoError(t, d.WriteBlocks(0, 10, make([]byte, 10*512)))
	tr.done()

	var counts []uint32
	for _, cdb := range tr.cdbs[3:] {
		_, count := cdb10(cdb)
		counts = append(counts, count)
	}
	assert.Equal(t, []uint32{4, 4, 2}, counts)
	assert.Equal(t, int64(10*512), d.WriteRate())
}
