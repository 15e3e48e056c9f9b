// Command geoimport loads a MaxMind GeoLite2 City CSV file (blocks or
// locations) into a database with a pool of concurrent workers.
//
//	geoimport -D geo GeoLite2-City-Blocks-IPv4.csv
//	geoimport --sink sqlite -D ./geo.db -P 8 GeoLite2-City-Locations-en.csv
//	geoimport --sink checksum GeoLite2-City-Blocks-IPv6.csv
package main

import (
	"os"

	// every backend is compiled in; --sink picks one at run time.
	_ "geoimport/internal/sink/all"
)

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr, defaultDeps()).Execute(); err != nil {
		os.Exit(1)
	}
}
