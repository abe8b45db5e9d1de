package sqlgen

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/tsa/pkg/condition"
)

// DuckDB renders the same evaluation with plain (vfrom, vuntil) columns.
// Ranges are packed inline with a gaps-and-islands query, and block tables
// are dropped explicitly after the condition is built.
type DuckDB struct {
	p Params
}

// Name returns "duckdb".
func (d *DuckDB) Name() string { return "duckdb" }

func blockTable(alias string) string {
	return "blk_" + alias
}

// BlockSQL returns (vfrom, vuntil, <alias>) rows.
func (d *DuckDB) BlockSQL(b *condition.Block) (string, error) {
	if b.Secondary {
		return fmt.Sprintf("SELECT vfrom, vuntil, master AS %s FROM %s WHERE master IS NOT NULL",
			b.Alias, b.Ref), nil
	}

	statID, seID, err := primaryArgs(b, d.p)
	if err != nil {
		return "", err
	}
	op, value, err := operand(b.Predicate)
	if err != nil {
		return "", err
	}
	step := fmt.Sprintf("tfrom + INTERVAL '%d minutes'", d.p.MaxMinutes)

	var sb strings.Builder
	fmt.Fprintf(&sb, "WITH obs AS (SELECT tfrom, (seval %s %s) AS istrue FROM %s WHERE statid = %d AND seid = %d),\n",
		op, value, d.p.ObsRelation, statID, seID)
	fmt.Fprintf(&sb, "spans AS (SELECT tfrom AS vfrom, least(coalesce(LEAD(tfrom) OVER (ORDER BY tfrom), %[1]s), %[1]s) AS vuntil, istrue FROM obs),\n", step)
	sb.WriteString("marks AS (SELECT *, CASE WHEN LAG(vuntil) OVER (ORDER BY vfrom) = vfrom AND LAG(istrue) OVER (ORDER BY vfrom) = istrue THEN 0 ELSE 1 END AS brk FROM spans),\n")
	sb.WriteString("islands AS (SELECT *, SUM(brk) OVER (ORDER BY vfrom ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW) AS grp FROM marks)\n")
	fmt.Fprintf(&sb, "SELECT min(vfrom) AS vfrom, max(vuntil) AS vuntil, istrue AS %s FROM islands GROUP BY grp, istrue", b.Alias)
	return sb.String(), nil
}

// ConditionSQL builds the result table named after the condition ID.
func (d *DuckDB) ConditionSQL(c *condition.Condition) ([]string, error) {
	stmts := []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", c.ID)}
	for _, b := range c.Blocks {
		q, err := d.BlockSQL(b)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", b.Alias, err)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE OR REPLACE TEMP TABLE %s AS (%s)", blockTable(b.Alias), q))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TEMP TABLE %s AS\n", c.ID)
	if len(c.Blocks) == 1 {
		a := c.Blocks[0].Alias
		fmt.Fprintf(&sb, "SELECT vfrom, vuntil, vuntil - vfrom AS vdiff, %s, (%s) AS master FROM %s",
			a, c.AliasExpression, blockTable(a))
		return append(stmts, sb.String()), nil
	}

	seq := make([]string, 0, 2*len(c.Blocks))
	for _, b := range c.Blocks {
		t := blockTable(b.Alias)
		seq = append(seq,
			fmt.Sprintf("SELECT vfrom AS vt FROM %s", t),
			fmt.Sprintf("SELECT vuntil AS vt FROM %s", t))
	}
	fmt.Fprintf(&sb, "WITH master_seq AS (\n%s),\n", strings.Join(seq, "\nUNION\n"))
	sb.WriteString("master_ranges_wlastnull AS (\nSELECT vt AS vfrom, LEAD(vt, 1) OVER (ORDER BY vt) AS vuntil\nFROM master_seq),\n")
	sb.WriteString("master_ranges AS (\nSELECT vfrom, vuntil\nFROM master_ranges_wlastnull\nWHERE vuntil IS NOT NULL)\n")
	sb.WriteString("SELECT\nmaster_ranges.vfrom,\nmaster_ranges.vuntil,\nmaster_ranges.vuntil - master_ranges.vfrom AS vdiff,\n")
	fmt.Fprintf(&sb, "%s,\n(%s) AS master\nFROM master_ranges", columnList(c), c.AliasExpression)
	for _, b := range c.Blocks {
		fmt.Fprintf(&sb, "\nLEFT JOIN %[1]s ON master_ranges.vfrom < %[1]s.vuntil AND %[1]s.vfrom < master_ranges.vuntil",
			blockTable(b.Alias))
	}
	return append(stmts, sb.String()), nil
}

// CleanupSQL drops the block tables.
func (d *DuckDB) CleanupSQL(c *condition.Condition) []string {
	stmts := make([]string, len(c.Blocks))
	for i, b := range c.Blocks {
		stmts[i] = fmt.Sprintf("DROP TABLE IF EXISTS %s", blockTable(b.Alias))
	}
	return stmts
}

// ResultSQL selects the result table.
func (d *DuckDB) ResultSQL(c *condition.Condition) string {
	return fmt.Sprintf("SELECT vfrom, vuntil, %s, master FROM %s ORDER BY vfrom", columnList(c), c.ID)
}

// IntervalSQL selects the packed ranges of a block.
func (d *DuckDB) IntervalSQL(b *condition.Block) (string, error) {
	q, err := d.BlockSQL(b)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT vfrom, vuntil, %[1]s AS istrue FROM (%[2]s) AS %[1]s_src ORDER BY vfrom", b.Alias, q), nil
}
