package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"net/netip"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"

	"geoimport/internal/parser"
	"geoimport/internal/schema"
	"geoimport/internal/sink"
)

// Defaults substituted for locations that carry no country.
const (
	UnknownCountryISOCode = "ZZ"
	UnknownCountryName    = "Unknown"
)

// dispatcher turns tokenized fields into sink calls.
type dispatcher struct {
	kind      schema.Kind
	normalize bool
	timeout   time.Duration
}

// dispatch forwards one record. skipped is true for an ip-block that has no
// geoname id in any of its three id fields; nothing is sent for it.
func (d dispatcher) dispatch(ctx context.Context, s sink.Sink, f []parser.Field) (skipped bool, err error) {
	switch d.kind {
	case schema.Locations:
		loc, err := d.location(f)
		if err != nil {
			return false, err
		}
		ctx, cancel := d.withTimeout(ctx)
		defer cancel()
		return false, s.AddLocation(ctx, loc)

	case schema.IPBlocks:
		blk, ok, err := ipBlock(f)
		if err != nil || !ok {
			return !ok && err == nil, err
		}
		ctx, cancel := d.withTimeout(ctx)
		defer cancel()
		return false, s.AddIPBlock(ctx, blk)

	default:
		return false, fmt.Errorf("no dispatch for schema %s", d.kind)
	}
}

func (d dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.timeout)
}

func (d dispatcher) location(f []parser.Field) (sink.Location, error) {
	if f[schema.LocGeonameID].Empty() {
		return sink.Location{}, fmt.Errorf("%w: geoname_id is empty", ErrMalformed)
	}
	id, err := parseGeonameID(f[schema.LocGeonameID])
	if err != nil {
		return sink.Location{}, fmt.Errorf("geoname_id: %w", err)
	}

	loc := sink.Location{
		GeonameID:           id,
		ContinentCode:       nullable(f[schema.LocContinentCode]),
		CityName:            d.name(f[schema.LocCityName]),
		CountryISOCode:      nullable(f[schema.LocCountryISOCode]),
		CountryName:         d.name(f[schema.LocCountryName]),
		Subdivision1ISOCode: nullable(f[schema.LocSubdivision1ISOCode]),
		Subdivision1Name:    d.name(f[schema.LocSubdivision1Name]),
		Subdivision2ISOCode: nullable(f[schema.LocSubdivision2ISOCode]),
		Subdivision2Name:    d.name(f[schema.LocSubdivision2Name]),
	}
	if !loc.CountryISOCode.Valid {
		loc.CountryISOCode = sql.NullString{String: UnknownCountryISOCode, Valid: true}
	}
	if !loc.CountryName.Valid {
		loc.CountryName = sql.NullString{String: UnknownCountryName, Valid: true}
	}
	return loc, nil
}

// name copies a display name, NFC-normalizing it when enabled.
func (d dispatcher) name(f parser.Field) sql.NullString {
	if f.Empty() {
		return sql.NullString{}
	}
	if d.normalize && !norm.NFC.IsNormal(f) {
		return sql.NullString{String: string(norm.NFC.Bytes(f)), Valid: true}
	}
	return sql.NullString{String: string(f), Valid: true}
}

// ipBlock converts an ip-block record. ok is false when no geoname id is
// present; the primary id wins, then registered country, then represented
// country.
func ipBlock(f []parser.Field) (blk sink.IPBlock, ok bool, err error) {
	var id int64
	for _, i := range []int{
		schema.BlockGeonameID,
		schema.BlockRegisteredCountryGeonameID,
		schema.BlockRepresentedCountryGeonameID,
	} {
		if f[i].Empty() {
			continue
		}
		id, err = parseGeonameID(f[i])
		if err != nil {
			return sink.IPBlock{}, false, fmt.Errorf("%s: %w", schema.IPBlock.Fields[i].Name, err)
		}
		ok = true
		break
	}
	if !ok {
		return sink.IPBlock{}, false, nil
	}

	network, err := netip.ParsePrefix(string(f[schema.BlockNetwork]))
	if err != nil {
		return sink.IPBlock{}, false, fmt.Errorf("%w: network: %v", ErrMalformed, err)
	}

	return sink.IPBlock{
		Network:    network,
		GeonameID:  id,
		PostalCode: nullable(f[schema.BlockPostalCode]),
	}, true, nil
}

func parseGeonameID(f parser.Field) (int64, error) {
	if f.Empty() {
		return 0, nil
	}
	id, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal id", ErrMalformed, string(f))
	}
	return id, nil
}

func nullable(f parser.Field) sql.NullString {
	if f.Empty() {
		return sql.NullString{}
	}
	return sql.NullString{String: string(f), Valid: true}
}
