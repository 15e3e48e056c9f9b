// Package all registers every built-in sink backend. Import it for its side
// effects:
//
//	import _ "geoimport/internal/sink/all"
package all

import (
	_ "geoimport/internal/sink/checksum"
	_ "geoimport/internal/sink/mssql"
	_ "geoimport/internal/sink/mysql"
	_ "geoimport/internal/sink/postgres"
	_ "geoimport/internal/sink/sqlite"
)
