package identity

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/projectdiscovery/gcache"
	"github.com/projectdiscovery/gologger"
)

// ErrEmptyVendorDB is returned when a vendor file contains no usable entry
var ErrEmptyVendorDB = errors.New("vendor database contains no entries")

// VendorDB maps 24-bit OUI prefixes to organisation names. The backing file
// is loaded lazily on the first lookup and at most once.
type VendorDB struct {
	path     string
	once     sync.Once
	prefixes map[string]string
	memo     gcache.Cache[string, string]
}

// NewVendorDB creates a vendor database backed by the file at path. The file
// may be an IEEE oui.csv, an IEEE oui.txt or a Wireshark manuf file.
func NewVendorDB(path string) *VendorDB {
	return &VendorDB{
		path: path,
		memo: gcache.New[string, string](4096).
			LRU().
			Expiration(time.Hour).
			Build(),
	}
}

// NewVendorDBFromMap creates a preloaded vendor database
func NewVendorDBFromMap(prefixes map[string]string) *VendorDB {
	db := NewVendorDB("")
	db.once.Do(func() {
		db.prefixes = make(map[string]string, len(prefixes))
		for prefix, name := range prefixes {
			if key := ouiKey(prefix); key != "" {
				db.prefixes[key] = name
			}
		}
	})
	return db
}

func (db *VendorDB) load() {
	db.prefixes = map[string]string{}
	if db.path == "" {
		return
	}
	file, err := os.Open(db.path)
	if err != nil {
		gologger.Verbose().Msgf("vendor database not available at %s: %s", db.path, err)
		return
	}
	defer func() {
		_ = file.Close()
	}()

	prefixes, err := ParseVendorDB(file)
	if err != nil {
		gologger.Warning().Msgf("could not parse vendor database %s: %s", db.path, err)
		return
	}
	db.prefixes = prefixes
	gologger.Verbose().Msgf("loaded %d vendor prefixes from %s", len(prefixes), db.path)
}

// Len returns the number of known prefixes
func (db *VendorDB) Len() int {
	db.once.Do(db.load)
	return len(db.prefixes)
}

// Lookup returns the organisation owning the prefix of mac, or an empty
// string when unknown
func (db *VendorDB) Lookup(mac string) string {
	key := ouiKey(mac)
	if key == "" {
		return ""
	}
	if name, err := db.memo.Get(key); err == nil {
		return name
	}

	db.once.Do(db.load)
	name := db.prefixes[key]
	_ = db.memo.Set(key, name)
	return name
}

// ouiKey returns the uppercase hex form of the first three octets of a
// hardware address written with ':', '-' or '.' separators or none at all
func ouiKey(mac string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(mac) {
		switch {
		case r == ':' || r == '-' || r == '.':
			continue
		case (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F'):
			b.WriteRune(r)
		default:
			return ""
		}
		if b.Len() == 6 {
			break
		}
	}
	if b.Len() < 6 {
		return ""
	}
	return strings.ToUpper(b.String()[:6])
}

// ParseVendorDB reads any of the supported vendor file formats
func ParseVendorDB(r io.Reader) (map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var prefixes map[string]string
	firstLine, _, _ := strings.Cut(string(data), "\n")
	if strings.HasPrefix(strings.TrimPrefix(firstLine, "\ufeff"), "Registry,") {
		prefixes, err = parseOUICSV(data)
		if err != nil {
			return nil, err
		}
	} else {
		prefixes = parseOUIText(data)
	}
	if len(prefixes) == 0 {
		return nil, ErrEmptyVendorDB
	}
	return prefixes, nil
}

// parseOUICSV parses the IEEE registry CSV
//
//	Registry,Assignment,Organization Name,Organization Address
//	MA-L,002272,American Micro-Fuel Device Corp.,2181 Buchanan Loop Ferndale WA US 98248
func parseOUICSV(data []byte) (map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	prefixes := make(map[string]string)
	header := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header {
			header = false
			continue
		}
		if len(record) < 3 || record[0] != "MA-L" {
			continue
		}
		if key := ouiKey(record[1]); key != "" {
			prefixes[key] = strings.TrimSpace(record[2])
		}
	}
	return prefixes, nil
}

// parseOUIText parses the IEEE oui.txt listing and Wireshark manuf files
//
//	00-22-72   (hex)		American Micro-Fuel Device Corp.
//	00:00:0C	Cisco	Cisco Systems, Inc
func parseOUIText(data []byte) map[string]string {
	prefixes := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if idx := strings.Index(line, "(hex)"); idx > 0 {
			key := ouiKey(strings.TrimSpace(line[:idx]))
			name := strings.TrimSpace(line[idx+len("(hex)"):])
			if key != "" && name != "" {
				prefixes[key] = name
			}
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		prefix := strings.TrimSpace(fields[0])
		// only whole 24-bit assignments, skip /28 and /36 blocks
		if strings.Contains(prefix, "/") || len(strings.Trim(prefix, ":-")) != 8 {
			continue
		}
		name := strings.TrimSpace(fields[len(fields)-1])
		if name == "" {
			name = strings.TrimSpace(fields[1])
		}
		if key := ouiKey(prefix); key != "" && name != "" {
			prefixes[key] = name
		}
	}
	return prefixes
}
