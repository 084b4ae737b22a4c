package site

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Loader options for the CSV readers.
type LoadOptions struct {
	// DefaultServiceMinutes is used when a row omits service_minutes.
	// Default: 60.
	DefaultServiceMinutes int

	// RequireCluster demands a cluster_id column on every row (the
	// clustered.csv format).
	RequireCluster bool
}

// LoadCSV reads sites from a geocoded CSV stream. The header must include at
// least site_id, lat and lon; service_minutes, cluster_id, name, street,
// city, state and zip are recognized when present.
func LoadCSV(r io.Reader, opts LoadOptions) ([]Site, error) {
	if opts.DefaultServiceMinutes <= 0 {
		opts.DefaultServiceMinutes = 60
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"site_id", "lat", "lon"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("csv missing required column %q", required)
		}
	}
	if opts.RequireCluster {
		if _, ok := col["cluster_id"]; !ok {
			return nil, errors.New(`clustered csv missing required column "cluster_id"`)
		}
	}

	var sites []Site
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		line++

		s, err := siteFromRecord(record, col, opts)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		sites = append(sites, s)
	}

	if err := ValidateAll(sites); err != nil {
		return nil, err
	}
	return sites, nil
}

func siteFromRecord(record []string, col map[string]int, opts LoadOptions) (Site, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	lat, err := strconv.ParseFloat(field("lat"), 64)
	if err != nil {
		return Site{}, fmt.Errorf("parse lat: %w", err)
	}
	lon, err := strconv.ParseFloat(field("lon"), 64)
	if err != nil {
		return Site{}, fmt.Errorf("parse lon: %w", err)
	}

	serviceMinutes := opts.DefaultServiceMinutes
	if v := field("service_minutes"); v != "" {
		serviceMinutes, err = strconv.Atoi(v)
		if err != nil {
			return Site{}, fmt.Errorf("parse service_minutes: %w", err)
		}
	}

	var clusterID *int
	if v := field("cluster_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return Site{}, fmt.Errorf("parse cluster_id: %w", err)
		}
		clusterID = &id
	} else if opts.RequireCluster {
		return Site{}, errors.New("empty cluster_id")
	}

	s := Site{
		ID:             field("site_id"),
		Name:           field("name"),
		Lat:            lat,
		Lon:            lon,
		ServiceMinutes: serviceMinutes,
		ClusterID:      clusterID,
		Street:         field("street"),
		City:           field("city"),
		State:          field("state"),
		Zip:            field("zip"),
	}

	if s.Name == "" && s.City != "" && s.Street != "" {
		s.Name = s.City + " - " + s.Street
	}
	return s, nil
}

// LoadClusteredCSV reads sites from a clustered CSV stream, which extends
// the geocoded format with a required cluster_id column.
func LoadClusteredCSV(r io.Reader, defaultServiceMinutes int) ([]Site, error) {
	return LoadCSV(r, LoadOptions{
		DefaultServiceMinutes: defaultServiceMinutes,
		RequireCluster:        true,
	})
}
