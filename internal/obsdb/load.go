package obsdb

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// observationColumns are the required header names of an observation CSV.
var observationColumns = []string{"station", "sensor", "tfrom", "seval"}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// LoadStats reports what LoadObservationsCSV inserted.
type LoadStats struct {
	Rows        int
	StationObs  int64
	SensorObs   int64
	NewStations []int
	NewSensors  []string
}

type obsKey struct {
	station int
	tfrom   time.Time
}

// LoadObservationsCSV loads a long-format station,sensor,tfrom,seval CSV.
// Rows sharing station and tfrom become one statobs row with one seobs row
// per sensor. Stations and sensors not yet known are registered with the
// next free ids. Timestamps without an offset are taken as UTC; an empty
// seval is stored as NULL.
func (d *DB) LoadObservationsCSV(ctx context.Context, path string) (*LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open observations file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return d.LoadObservations(ctx, f)
}

// LoadObservations is LoadObservationsCSV reading from r.
func (d *DB) LoadObservations(ctx context.Context, r io.Reader) (*LoadStats, error) {
	obs, err := parseObservations(r)
	if err != nil {
		return nil, err
	}
	stats := &LoadStats{Rows: len(obs)}

	sensorIDs, err := d.SensorIDs(ctx)
	if err != nil {
		return nil, err
	}
	stations, err := d.StationIDs(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	nextSensor := 0
	for _, id := range sensorIDs {
		nextSensor = max(nextSensor, id)
	}
	var sensorRows, stationRows [][]any
	for _, o := range obs {
		if _, ok := sensorIDs[o.sensor]; !ok {
			nextSensor++
			sensorIDs[o.sensor] = nextSensor
			stats.NewSensors = append(stats.NewSensors, o.sensor)
			sensorRows = append(sensorRows, []any{int32(nextSensor), o.sensor, nil, nil, nil, nil, nil, nil, now})
		}
		if !slices.Contains(stations, o.station) {
			stations = append(stations, o.station)
			stats.NewStations = append(stats.NewStations, o.station)
			stationRows = append(stationRows, []any{int32(o.station), nil, nil, now})
		}
	}
	if _, err := d.copyRows(ctx, "sensors", sensorColumns, sensorRows); err != nil {
		return nil, err
	}
	if _, err := d.copyRows(ctx, "stations", stationColumns, stationRows); err != nil {
		return nil, err
	}

	statobsID, err := d.maxID(ctx, "statobs")
	if err != nil {
		return nil, err
	}
	seobsID, err := d.maxID(ctx, "seobs")
	if err != nil {
		return nil, err
	}

	ids := make(map[obsKey]int64)
	var statobsRows, seobsRows [][]any
	for _, o := range obs {
		key := obsKey{o.station, o.tfrom}
		obsID, ok := ids[key]
		if !ok {
			statobsID++
			obsID = statobsID
			ids[key] = obsID
			statobsRows = append(statobsRows, []any{obsID, o.tfrom, int32(o.station), now})
		}
		seobsID++
		seobsRows = append(seobsRows, []any{seobsID, obsID, int32(sensorIDs[o.sensor]), o.seval, now})
	}

	if stats.StationObs, err = d.copyRows(ctx, "statobs", statobsColumns, statobsRows); err != nil {
		return nil, err
	}
	if stats.SensorObs, err = d.copyRows(ctx, "seobs", seobsColumns, seobsRows); err != nil {
		return nil, err
	}

	d.logger.Info().
		Int("rows", stats.Rows).
		Int64("statobs", stats.StationObs).
		Int64("seobs", stats.SensorObs).
		Ints("new_stations", stats.NewStations).
		Strs("new_sensors", stats.NewSensors).
		Msg("loaded observations")
	return stats, nil
}

type observation struct {
	station int
	sensor  string
	tfrom   time.Time
	seval   any
}

func parseObservations(r io.Reader) ([]observation, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read observations header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range observationColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("observations file is missing column %q", col)
		}
	}

	var out []observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read observations: %w", err)
		}
		o, err := parseObservation(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, o)
	}
	return out, nil
}

func parseObservation(rec []string, idx map[string]int) (observation, error) {
	var o observation

	station := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(rec[idx["station"]])), "s")
	id, err := strconv.Atoi(station)
	if err != nil {
		return o, fmt.Errorf("invalid station %q", rec[idx["station"]])
	}
	o.station = id

	o.sensor = strings.ToLower(strings.TrimSpace(rec[idx["sensor"]]))
	if o.sensor == "" {
		return o, errors.New("empty sensor name")
	}

	o.tfrom, err = parseTime(strings.TrimSpace(rec[idx["tfrom"]]))
	if err != nil {
		return o, err
	}

	if v := strings.TrimSpace(rec[idx["seval"]]); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return o, fmt.Errorf("invalid seval %q", v)
		}
		o.seval = f
	}
	return o, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid tfrom %q", s)
}
