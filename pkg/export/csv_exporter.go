package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// DatasetGroup is one titled section of a grouped dataset.
type DatasetGroup struct {
	Title string
	Rows  []map[string]string
}

// GroupedDataset is tabular content divided into titled sections, one per
// teaching day in timetable exports.
type GroupedDataset struct {
	Headers []string
	Groups  []DatasetGroup
}

// Flatten folds the groups into a flat dataset with the group title as the
// leading column.
func (g GroupedDataset) Flatten(groupHeader string) Dataset {
	headers := append([]string{groupHeader}, g.Headers...)
	var rows []map[string]string
	for _, group := range g.Groups {
		for _, row := range group.Rows {
			flat := make(map[string]string, len(row)+1)
			for k, v := range row {
				flat[k] = v
			}
			flat[groupHeader] = group.Title
			rows = append(rows, flat)
		}
	}
	return Dataset{Headers: headers, Rows: rows}
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
