// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package bulk

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/Qseek-Jung/ToiletShare-sub001/csvfile"
	"github.com/Qseek-Jung/ToiletShare-sub001/store"
	"github.com/brianvoe/gofakeit/v6"
	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func fakeRecords(n int) []store.Record {
	faker := gofakeit.New(7)
	records := make([]store.Record, n)

	for i := range records {
		records[i] = store.Record{
			ID:   fmt.Sprintf("t_b_%d", i),
			Type: DefaultType,
			// Commas, quotes and line breaks must survive the round trip.
			Name:         fmt.Sprintf("%s, \"%s\" 화장실", faker.Company(), faker.Word()),
			Address:      faker.Street() + "\r\n" + faker.City(),
			Floor:        faker.IntRange(-3, 12),
			MaleStalls:   faker.IntRange(0, 10),
			FemaleStalls: faker.IntRange(0, 10),
			OpeningHours: faker.Date().Format("15:04") + "~22:00",
			Lat:          faker.Float64Range(33.1, 38.6),
			Lng:          faker.Float64Range(124.6, 131.8),
		}
	}

	return records
}

func TestWriteAcceptedRoundTrip(t *testing.T) {
	records := fakeRecords(25)

	var buf bytes.Buffer
	require.NoError(t, WriteAccepted(&buf, records))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\xef\xbb\xbf")), "export starts with a BOM")

	text, err := csvfile.Decode(buf.Bytes(), csvfile.UTF8)
	require.NoError(t, err)

	header, rows := csvfile.SplitHeader(csvfile.Parse(text))
	assert.Equal(t, AcceptedHeader, header)
	require.Len(t, rows, len(records))

	for i := range records {
		assert.Equal(t, acceptedRow(&records[i]), rows[i])
	}

	// The export is recognized as such and its columns map back.
	assert.True(t, IsExportHeader(header))

	cols := DetectColumns(header)
	assert.Equal(t, records[3].Name, rows[3][cols.Name])
	assert.Equal(t, formatCoord(records[3].Lat), rows[3][cols.Lat])
}

func TestWriteFailed(t *testing.T) {
	header := []string{"구분", "화장실명", "주소"}
	failed := []FailedRow{
		{Index: 2, Cells: []string{"공중화장실", "무명 화장실", ""}, Reason: "주소 불명 및 좌표 없음"},
		{Index: 5, Cells: []string{"공중화장실"}, Reason: "처리 중 오류: boom"},
		{Index: 7, Cells: []string{"공중화장실", "역 화장실", "", "2층", "비고"}, Reason: "지오코딩 실패 및 원본 좌표 오류(바다/해외)"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFailed(&buf, header, failed))

	text, err := csvfile.Decode(buf.Bytes(), csvfile.UTF8)
	require.NoError(t, err)

	rows := csvfile.Parse(text)
	assert.Equal(t, [][]string{
		{"구분", "화장실명", "주소", "오류사유"},
		{"공중화장실", "무명 화장실", "", "주소 불명 및 좌표 없음"},
		{"공중화장실", "", "", "처리 중 오류: boom"},
		{"공중화장실", "역 화장실", "", "2층", "비고", "지오코딩 실패 및 원본 좌표 오류(바다/해외)"},
	}, rows)
}

func TestWriteLog(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	logs := []store.OpLog{
		{Time: at, Severity: store.SeverityInfo, Row: -1, Message: "작업 시작: 2 건 / 지역: 서울특별시"},
		{Time: at, Severity: store.SeverityWarning, Row: 1, Message: "[2/2] 시청: [중복] 중복 데이터로 감지되어 건너뜁니다"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLog(&buf, logs))

	text, err := csvfile.Decode(buf.Bytes(), csvfile.UTF8)
	require.NoError(t, err)

	rows := csvfile.Parse(text)
	require.Len(t, rows, 3)
	assert.Equal(t, LogHeader, rows[0])
	assert.Equal(t, []string{"2025-03-01 09:30:00", "warning", logs[1].Message}, rows[2])
}

func TestWriteAcceptedXLSX(t *testing.T) {
	records := fakeRecords(3)

	var buf bytes.Buffer
	require.NoError(t, WriteAcceptedXLSX(&buf, records))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)

	defer f.Close()

	rows, err := f.GetRows("등록")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, AcceptedHeader, rows[0])
	assert.Equal(t, records[1].Name, rows[2][1])
	assert.Equal(t, fmt.Sprint(records[1].Floor), rows[2][3])
}

func TestWriteAcceptedGeoJSON(t *testing.T) {
	records := fakeRecords(2)

	var buf bytes.Buffer
	require.NoError(t, WriteAcceptedGeoJSON(&buf, records))

	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	f := fc.Features[1]
	require.True(t, f.Geometry.IsPoint())
	assert.Equal(t, []float64{records[1].Lng, records[1].Lat}, f.Geometry.Point)
	assert.Equal(t, records[1].Name, f.Properties["name"])
	assert.Equal(t, records[1].ID, f.ID)
}
