package clickhouse

import "fmt"

// AlertSchema returns the DDL for the alert archive in database.
func AlertSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	created_at      DateTime64(3, 'UTC'),
	alert_id        String,
	alert_type      LowCardinality(String),
	severity        LowCardinality(String),
	symbol          String,
	underlying      LowCardinality(String),
	title           String,
	description     String,
	total_premium   Float64,
	total_contracts Int64,
	confidence      Float64,
	trade_ids       Array(String),
	dedup_key       String
) ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(created_at)
ORDER BY (underlying, created_at, alert_id)
TTL toDateTime(created_at) + INTERVAL 180 DAY`, database, table),
	}
}
