package migrations

import "embed"

// PostgresFS holds the trade_records schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the spot_ticks and option_ticks schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
