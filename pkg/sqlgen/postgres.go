package sqlgen

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/tsa/pkg/condition"
)

// Postgres renders range-typed SQL. Primary blocks call the pack_ranges
// function installed by the observation store; block tables are dropped on
// commit.
type Postgres struct {
	p Params
}

// Name returns "postgres".
func (d *Postgres) Name() string { return "postgres" }

// BlockSQL returns (valid_r tstzrange, <alias> boolean) rows.
func (d *Postgres) BlockSQL(b *condition.Block) (string, error) {
	if b.Secondary {
		return fmt.Sprintf("SELECT tstzrange(vfrom, vuntil) AS valid_r, master AS %s FROM %s WHERE master IS NOT NULL",
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
	return fmt.Sprintf("SELECT valid_r, istrue AS %s FROM pack_ranges("+
		"p_obs_relation := '%s', p_maxminutes := %d, p_statid := %d, p_seid := %d, "+
		"p_operator := '%s', p_seval := '%s')",
		b.Alias, d.p.ObsRelation, d.p.MaxMinutes, statID, seID, op, value), nil
}

// ConditionSQL builds the result table named after the condition ID.
func (d *Postgres) ConditionSQL(c *condition.Condition) ([]string, error) {
	stmts := []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", c.ID)}
	for _, b := range c.Blocks {
		q, err := d.BlockSQL(b)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", b.Alias, err)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TEMP TABLE %s ON COMMIT DROP AS (%s)", b.Alias, q))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TEMP TABLE %s AS (\n", c.ID)
	if len(c.Blocks) == 1 {
		a := c.Blocks[0].Alias
		fmt.Fprintf(&sb, "SELECT\nlower(valid_r) AS vfrom,\nupper(valid_r) AS vuntil,\nupper(valid_r)-lower(valid_r) AS vdiff,\n%s,\n(%s) AS master\nFROM %s)",
			a, c.AliasExpression, a)
		return append(stmts, sb.String()), nil
	}

	seq := make([]string, len(c.Blocks))
	for i, b := range c.Blocks {
		seq[i] = fmt.Sprintf("SELECT unnest(array[lower(valid_r), upper(valid_r)]) AS vt FROM %s", b.Alias)
	}
	fmt.Fprintf(&sb, "WITH master_seq AS (\n%s\nORDER BY vt),\n", strings.Join(seq, "\nUNION\n"))
	sb.WriteString("master_ranges_wlastnull AS (\nSELECT vt AS vfrom, LEAD(vt, 1) OVER (ORDER BY vt) AS vuntil\nFROM master_seq),\n")
	sb.WriteString("master_ranges AS (\nSELECT tstzrange(vfrom, vuntil) AS valid_r\nFROM master_ranges_wlastnull\nWHERE vuntil IS NOT NULL)\n")
	sb.WriteString("SELECT\nlower(master_ranges.valid_r) AS vfrom,\nupper(master_ranges.valid_r) AS vuntil,\n")
	sb.WriteString("upper(master_ranges.valid_r)-lower(master_ranges.valid_r) AS vdiff,\n")
	fmt.Fprintf(&sb, "%s,\n(%s) AS master\nFROM master_ranges", columnList(c), c.AliasExpression)
	for _, b := range c.Blocks {
		fmt.Fprintf(&sb, "\nLEFT JOIN %[1]s ON master_ranges.valid_r && %[1]s.valid_r", b.Alias)
	}
	sb.WriteString(")")
	return append(stmts, sb.String()), nil
}

// CleanupSQL returns nothing: block tables are dropped on commit.
func (d *Postgres) CleanupSQL(*condition.Condition) []string { return nil }

// ResultSQL selects the result table.
func (d *Postgres) ResultSQL(c *condition.Condition) string {
	return fmt.Sprintf("SELECT vfrom, vuntil, %s, master FROM %s ORDER BY vfrom", columnList(c), c.ID)
}

// IntervalSQL unpacks the ranges of a block.
func (d *Postgres) IntervalSQL(b *condition.Block) (string, error) {
	q, err := d.BlockSQL(b)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT lower(valid_r) AS vfrom, upper(valid_r) AS vuntil, %[1]s AS value FROM (%[2]s) AS %[1]s_src ORDER BY 1",
		b.Alias, q), nil
}

// PackRangesFunction is the definition of pack_ranges used by primary blocks.
// Observations are valid until the next one at the same station and sensor,
// or for p_maxminutes, whichever comes first. Touching spans with the same
// truth value are packed into one range.
const PackRangesFunction = `CREATE OR REPLACE FUNCTION pack_ranges(
  p_obs_relation text,
  p_maxminutes integer,
  p_statid integer,
  p_seid integer,
  p_operator text,
  p_seval text)
RETURNS TABLE (valid_r tstzrange, istrue boolean) AS $$
BEGIN
  RETURN QUERY EXECUTE format(
    'WITH obs AS (
       SELECT tfrom, (seval %s %s) AS istrue FROM %I WHERE statid = $1 AND seid = $2),
     spans AS (
       SELECT tfrom AS vfrom,
         least(coalesce(LEAD(tfrom) OVER (ORDER BY tfrom), tfrom + make_interval(mins => $3)),
               tfrom + make_interval(mins => $3)) AS vuntil,
         istrue
       FROM obs),
     brk AS (
       SELECT *, CASE WHEN LAG(vuntil) OVER (ORDER BY vfrom) = vfrom
                       AND LAG(istrue) OVER (ORDER BY vfrom) = istrue THEN 0 ELSE 1 END AS brk
       FROM spans),
     grp AS (
       SELECT *, SUM(brk) OVER (ORDER BY vfrom) AS grp FROM brk)
     SELECT tstzrange(min(vfrom), max(vuntil)), istrue FROM grp GROUP BY grp, istrue ORDER BY 1',
    p_operator, p_seval, p_obs_relation)
  USING p_statid, p_seid, p_maxminutes;
END;
$$ LANGUAGE plpgsql;`
