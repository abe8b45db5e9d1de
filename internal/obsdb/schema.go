package obsdb

import (
	"fmt"

	"github.com/leapstack-labs/tsa/pkg/sqlgen"
)

// Tables in creation order.
var Tables = []string{"stations", "sensors", "statobs", "seobs"}

// Column order used when copying rows.
var (
	statobsColumns = []string{"id", "tfrom", "statid", "modified"}
	seobsColumns   = []string{"id", "obsid", "seid", "seval", "modified"}
	stationColumns = []string{"id", "geom", "prop", "modified"}
	sensorColumns  = []string{"id", "name", "shortname", "unit", "accuracy", "nameold", "valuedescriptions", "description", "modified"}
)

// schemaStatements returns the DDL for the observation tables. JSON columns
// are plain text on DuckDB.
func schemaStatements(dialect string) []string {
	jsonType := "JSON"
	if dialect == "duckdb" {
		jsonType = "VARCHAR"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS stations (
  id INTEGER PRIMARY KEY,
  geom %[1]s,
  prop %[1]s,
  modified TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`, jsonType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sensors (
  id INTEGER PRIMARY KEY,
  name VARCHAR(40) NOT NULL,
  shortname VARCHAR(40),
  unit VARCHAR(40),
  accuracy INTEGER,
  nameold VARCHAR(40),
  valuedescriptions %s,
  description VARCHAR(100),
  modified TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`, jsonType),
		`CREATE TABLE IF NOT EXISTS statobs (
  id BIGINT PRIMARY KEY,
  tfrom TIMESTAMP NOT NULL,
  statid INTEGER NOT NULL,
  modified TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
  UNIQUE (tfrom, statid)
)`,
		`CREATE TABLE IF NOT EXISTS seobs (
  id BIGINT PRIMARY KEY,
  obsid BIGINT NOT NULL,
  seid INTEGER NOT NULL,
  seval FLOAT8,
  modified TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`,
		`CREATE INDEX IF NOT EXISTS seobs_obsid_idx ON seobs (obsid)`,
	}
	if dialect == "postgres" {
		stmts = append(stmts, sqlgen.PackRangesFunction)
	}
	return stmts
}
