// Package quirks is a small database of per-device deviations from
// the SCSI direct-access command set. USB bridge chips in particular
// ship with broken or missing 16-byte commands and low transfer
// limits; entries here are matched against INQUIRY identification and
// applied when a block device is opened.
package quirks

import (
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v2"

	"github.com/blockkit/go-scsi/scsi"
)

// Entry describes one device family. Regexps are matched against the
// INQUIRY vendor and product strings; an empty pattern matches
// anything.
type Entry struct {
	Family       string `yaml:"family"`
	VendorRegex  string `yaml:"vendorregex"`
	ProductRegex string `yaml:"productregex"`

	// MaxTransferBlocks caps the blocks moved by one READ/WRITE.
	// Zero means no extra cap beyond the transport's.
	MaxTransferBlocks uint32 `yaml:"maxtransferblocks"`

	// No16Byte marks bridges that reject the 16-byte command forms.
	// Inside the 32-bit addressable range the 12-byte forms are used
	// instead.
	No16Byte bool `yaml:"no16byte"`

	vendorRe  *regexp.Regexp
	productRe *regexp.Regexp
}

func (e *Entry) match(inq scsi.InquiryData) bool {
	if e.vendorRe != nil && !e.vendorRe.MatchString(inq.Vendor) {
		return false
	}
	if e.productRe != nil && !e.productRe.MatchString(inq.Product) {
		return false
	}
	return true
}

// DB is a set of quirk entries, first match wins.
type DB struct {
	Devices []Entry `yaml:"devices"`
}

// Lookup returns the first entry matching the device identification,
// or nil.
func (db *DB) Lookup(inq scsi.InquiryData) *Entry {
	for i := range db.Devices {
		if db.Devices[i].match(inq) {
			return &db.Devices[i]
		}
	}
	return nil
}

// Load reads a YAML quirk database from a file.
func Load(path string) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadReader(f)
}

// LoadReader decodes a YAML quirk database and compiles its patterns.
func LoadReader(r io.Reader) (*DB, error) {
	var db DB

	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&db); err != nil {
		return nil, err
	}

	for i := range db.Devices {
		e := &db.Devices[i]
		if e.VendorRegex != "" {
			re, err := regexp.Compile(e.VendorRegex)
			if err != nil {
				return nil, err
			}
			e.vendorRe = re
		}
		if e.ProductRegex != "" {
			re, err := regexp.Compile(e.ProductRegex)
			if err != nil {
				return nil, err
			}
			e.productRe = re
		}
	}

	return &db, nil
}
