// Package schema defines the two record shapes geoimport understands and the
// header detection that selects one of them for a run.
//
// A GeoLite2 CSV export is self-describing only through its first line: the
// header is compared byte-for-byte against the known column lists and the
// matching Schema is used for every record that follows. There is no partial
// matching and no column reordering.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Kind identifies a record shape.
type Kind int

const (
	// IPBlocks is the "City Blocks" export: one network per record.
	IPBlocks Kind = iota
	// Locations is the "City Locations" export: one geoname per record.
	Locations
)

// String returns the short name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case IPBlocks:
		return "ip-block"
	case Locations:
		return "location"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FieldMode selects how the tokenizer scans a field.
type FieldMode int

const (
	// Unquoted fields never contain separators; quotes are literal.
	Unquoted FieldMode = iota
	// MaybeQuoted fields may be wrapped in double quotes to carry commas.
	MaybeQuoted
)

// Field is one column of a schema.
type Field struct {
	Name string
	Mode FieldMode
}

// Schema is an immutable, ordered field list plus the header that selects it.
type Schema struct {
	Kind   Kind
	Header string
	Fields []Field
}

// NumFields returns the number of fields every record of this schema carries.
func (s *Schema) NumFields() int { return len(s.Fields) }

// Column indexes for the ip-block schema.
const (
	BlockNetwork = iota
	BlockGeonameID
	BlockRegisteredCountryGeonameID
	BlockRepresentedCountryGeonameID
	BlockIsAnonymousProxy
	BlockIsSatelliteProvider
	BlockPostalCode
	BlockLatitude
	BlockLongitude
	BlockAccuracyRadius
)

// Column indexes for the location schema.
const (
	LocGeonameID = iota
	LocLocaleCode
	LocContinentCode
	LocContinentName
	LocCountryISOCode
	LocCountryName
	LocSubdivision1ISOCode
	LocSubdivision1Name
	LocSubdivision2ISOCode
	LocSubdivision2Name
	LocCityName
	LocMetroCode
	LocTimeZone
)

// IPBlock is the "network,geoname_id,..." schema.
var IPBlock = &Schema{
	Kind:   IPBlocks,
	Header: "network,geoname_id,registered_country_geoname_id,represented_country_geoname_id,is_anonymous_proxy,is_satellite_provider,postal_code,latitude,longitude,accuracy_radius",
	Fields: []Field{
		{"network", Unquoted},
		{"geoname_id", Unquoted},
		{"registered_country_geoname_id", Unquoted},
		{"represented_country_geoname_id", Unquoted},
		{"is_anonymous_proxy", Unquoted},
		{"is_satellite_provider", Unquoted},
		{"postal_code", Unquoted},
		{"latitude", Unquoted},
		{"longitude", Unquoted},
		{"accuracy_radius", Unquoted},
	},
}

// Location is the "geoname_id,locale_code,..." schema. Name columns may be
// quoted because place names contain commas.
var Location = &Schema{
	Kind:   Locations,
	Header: "geoname_id,locale_code,continent_code,continent_name,country_iso_code,country_name,subdivision_1_iso_code,subdivision_1_name,subdivision_2_iso_code,subdivision_2_name,city_name,metro_code,time_zone",
	Fields: []Field{
		{"geoname_id", Unquoted},
		{"locale_code", Unquoted},
		{"continent_code", Unquoted},
		{"continent_name", MaybeQuoted},
		{"country_iso_code", Unquoted},
		{"country_name", MaybeQuoted},
		{"subdivision_1_iso_code", Unquoted},
		{"subdivision_1_name", MaybeQuoted},
		{"subdivision_2_iso_code", Unquoted},
		{"subdivision_2_name", MaybeQuoted},
		{"city_name", MaybeQuoted},
		{"metro_code", Unquoted},
		{"time_zone", Unquoted},
	},
}

var known = []*Schema{IPBlock, Location}

// ErrUnknownHeader is returned when the first line matches no known schema.
var ErrUnknownHeader = errors.New("schema: header not from a recognised source (locations or ip blocks)")

const utf8BOM = "\uFEFF"

// Detect returns the schema whose header equals line exactly. A leading UTF-8
// BOM and a trailing "\r" are ignored.
func Detect(line []byte) (*Schema, error) {
	line = bytes.TrimPrefix(line, []byte(utf8BOM))
	line = bytes.TrimSuffix(line, []byte{'\r'})
	for _, s := range known {
		if string(line) == s.Header {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownHeader, truncate(line, 64))
}

// maxHeaderLen bounds how far ReadHeader scans for the first terminator.
func maxHeaderLen() int {
	n := 0
	for _, s := range known {
		if len(s.Header) > n {
			n = len(s.Header)
		}
	}
	return n + len(utf8BOM) + len("\r\n")
}

// ReadHeader reads the first line of r and returns the matching schema and
// the number of bytes the header occupies, terminator included. Records start
// at that offset.
func ReadHeader(r io.ReaderAt) (*Schema, int64, error) {
	limit := maxHeaderLen()
	buf := make([]byte, limit)
	n, err := r.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	buf = buf[:n]

	line, size := buf, int64(n)
	if i := bytes.IndexByte(buf, '\n'); i >= 0 {
		line, size = buf[:i], int64(i+1)
	} else if n == limit {
		// No terminator within the longest legal header.
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownHeader, truncate(buf, 64))
	}

	s, err := Detect(line)
	if err != nil {
		return nil, 0, err
	}
	return s, size, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
