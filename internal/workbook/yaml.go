package workbook

import (
	"fmt"
	"os"
	"time"

	"github.com/leapstack-labs/tsa/internal/collection"
	"github.com/leapstack-labs/tsa/pkg/diag"
	"gopkg.in/yaml.v3"
)

// File is the YAML input document.
type File struct {
	Collections []CollectionSpec `yaml:"collections"`
}

// CollectionSpec describes one collection in YAML input.
type CollectionSpec struct {
	Title      string          `yaml:"title"`
	From       string          `yaml:"from"`
	Until      string          `yaml:"until"`
	Conditions []ConditionSpec `yaml:"conditions"`
}

// ConditionSpec is one condition row.
type ConditionSpec struct {
	Site        string `yaml:"site"`
	MasterAlias string `yaml:"master_alias"`
	Condition   string `yaml:"condition"`
}

// ReadYAML loads collections from a YAML document.
func ReadYAML(path string, opts ...collection.Option) ([]*collection.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc File
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc.Build(opts...)
}

// Build turns the document into resolved collections. Entry positions are
// used as row numbers, starting at 1.
func (d *File) Build(opts ...collection.Option) ([]*collection.Collection, error) {
	colls := make([]*collection.Collection, 0, len(d.Collections))
	for i, spec := range d.Collections {
		title := spec.Title
		if title == "" {
			title = fmt.Sprintf("collection%d", i+1)
		}
		from, ferr := specDate(spec.From, "from")
		until, uerr := specDate(spec.Until, "until")
		if ferr != nil || uerr != nil {
			return nil, fmt.Errorf("collection %s: %w", title, firstErr(ferr, uerr))
		}
		coll, err := collection.New(title, collection.DateWindow(from, until), opts...)
		if err != nil {
			return nil, err
		}
		for j, c := range spec.Conditions {
			if c.Condition == "" {
				coll.AddError(diag.New(diag.NoBlocksProduced,
					"condition %d (%s-%s) is empty: entry ignored", j+1, c.Site, c.MasterAlias).WithScope(title))
				continue
			}
			_, _ = coll.Add(c.Site, c.MasterAlias, c.Condition, j+1)
		}
		coll.Resolve()
		colls = append(colls, coll)
	}
	return colls, nil
}

func specDate(s, field string) (t time.Time, err error) {
	if s == "" {
		return t, diag.New(diag.DegenerateWindow, "%s date is empty", field)
	}
	t, ok := parseDate(s)
	if !ok {
		return t, diag.New(diag.DegenerateWindow, "could not read %s date %q: must be a d.m.YYYY or YYYY-MM-DD date", field, s)
	}
	return t, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
