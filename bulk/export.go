// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package bulk

import (
	"fmt"
	"io"
	"strconv"

	"github.com/Qseek-Jung/ToiletShare-sub001/csvfile"
	"github.com/Qseek-Jung/ToiletShare-sub001/store"
	geojson "github.com/paulmach/go.geojson"
	"github.com/xuri/excelize/v2"
)

// FailureReasonHeader is appended to the input header in the error export.
const FailureReasonHeader = "오류사유"

// LogHeader is the header of the operation log export.
var LogHeader = []string{"시간", "유형", "메시지"}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func acceptedRow(r *store.Record) []string {
	return []string{
		r.Type,
		r.Name,
		r.Address,
		strconv.Itoa(r.Floor),
		strconv.Itoa(r.MaleStalls),
		strconv.Itoa(r.FemaleStalls),
		r.OpeningHours,
		formatCoord(r.Lat),
		formatCoord(r.Lng),
	}
}

// WriteAccepted writes the accepted-records export. The output can be fed
// back to a batch, which then takes the fast path.
func WriteAccepted(w io.Writer, records []store.Record) error {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, AcceptedHeader)

	for i := range records {
		rows = append(rows, acceptedRow(&records[i]))
	}

	return csvfile.NewWriter(w).WriteAll(rows)
}

// WriteFailed writes the rejected rows as they came in, plus the reason.
func WriteFailed(w io.Writer, header []string, failed []FailedRow) error {
	rows := make([][]string, 0, len(failed)+1)
	rows = append(rows, append(append([]string(nil), header...), FailureReasonHeader))

	for _, f := range failed {
		// Ragged rows keep their extra cells.
		cells := make([]string, max(len(header), len(f.Cells)), max(len(header), len(f.Cells))+1)
		copy(cells, f.Cells)
		rows = append(rows, append(cells, f.Reason))
	}

	return csvfile.NewWriter(w).WriteAll(rows)
}

// WriteLog writes the operation log.
func WriteLog(w io.Writer, logs []store.OpLog) error {
	rows := make([][]string, 0, len(logs)+1)
	rows = append(rows, LogHeader)

	for _, l := range logs {
		rows = append(rows, []string{l.Time.Format("2006-01-02 15:04:05"), string(l.Severity), l.Message})
	}

	return csvfile.NewWriter(w).WriteAll(rows)
}

// WriteAcceptedXLSX writes the accepted-records export as a workbook.
func WriteAcceptedXLSX(w io.Writer, records []store.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "등록"

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, header := range AcceptedHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}

		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	for i := range records {
		r := &records[i]
		values := []any{
			r.Type, r.Name, r.Address, r.Floor, r.MaleStalls, r.FemaleStalls, r.OpeningHours, r.Lat, r.Lng,
		}

		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("writing xlsx row %d: %w", i+1, err)
			}
		}
	}

	if err := f.SetColWidth(sheet, "B", "C", 40); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}

	return nil
}

// WriteAcceptedGeoJSON writes the accepted records as a FeatureCollection
// of points.
func WriteAcceptedGeoJSON(w io.Writer, records []store.Record) error {
	fc := geojson.NewFeatureCollection()

	for _, r := range records {
		feature := geojson.NewPointFeature([]float64{r.Lng, r.Lat})
		feature.ID = r.ID
		feature.SetProperty("type", r.Type)
		feature.SetProperty("name", r.Name)
		feature.SetProperty("address", r.Address)
		feature.SetProperty("floor", r.Floor)
		feature.SetProperty("male_stalls", r.MaleStalls)
		feature.SetProperty("female_stalls", r.FemaleStalls)
		feature.SetProperty("opening_hours", r.OpeningHours)
		fc.AddFeature(feature)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding geojson: %w", err)
	}

	_, err = w.Write(data)

	return err
}
