package repository

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"IPHForecast/internal/domain/models"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestDecodeCSVCleansRows(t *testing.T) {
	in := `Tanggal,Indikator_Harga,Lag_1,Lag_2,Lag_3,Lag_4,MA_3,MA_7,Periode
2024-01-15,"1,5",0.2,,0.4,0.5,0.6,0.7,2
2024-01-08,0.9,0.1,0.1,0.1,0.1,0.1,0.1,1
2024-01-22,,1,1,1,1,1,1,3
not-a-date,3,1,1,1,1,1,1,4
`
	rows, err := DecodeCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if !rows[0].Date.Equal(day("2024-01-08")) || rows[1].Value != 1.5 {
		t.Fatalf("not sorted or not parsed: %+v", rows)
	}
	if rows[1].Lag2 != 0 || rows[1].MA7 != 0.7 {
		t.Fatalf("features = %+v", rows[1])
	}
}

func TestCSVStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")
	s := NewCSVSeriesStore(path, nil)
	ctx := context.Background()

	rows, err := s.Load(ctx)
	if err != nil || len(rows) != 0 {
		t.Fatalf("missing file should load empty: %v %v", rows, err)
	}
	if err := s.Health(ctx); err != nil {
		t.Fatal(err)
	}

	want := []models.Observation{
		{Date: day("2024-02-05"), Value: 2, Lag1: 1, MA3: 0.5},
		{Date: day("2024-01-29"), Value: 1},
	}
	for _, o := range want {
		if err := s.Append(ctx, o); err != nil {
			t.Fatal(err)
		}
	}
	rows, err = s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Value != 1 || rows[1].Lag1 != 1 || rows[1].MA3 != 0.5 {
		t.Fatalf("rows = %+v", rows)
	}

	b, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(b), "Tanggal,Indikator_Harga,Lag_1") {
		t.Fatalf("header = %q", strings.SplitN(string(b), "\n", 2)[0])
	}
	if !strings.Contains(string(b), "2024-02-05,2,1,0,0,0,0.5,0,2") {
		t.Fatalf("file = %s", b)
	}
}

func TestEncodeCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, []models.Observation{{Date: day("2024-01-01"), Value: 0.25}}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || lines[1] != "2024-01-01,0.25,0,0,0,0,0,0,1" {
		t.Fatalf("csv = %q", buf.String())
	}
}

func TestMemorySeriesStore(t *testing.T) {
	m := NewMemorySeriesStore([]models.Observation{{Value: 1}})
	_ = m.Append(context.Background(), models.Observation{Value: 2})
	rows, _ := m.Load(context.Background())
	rows[0].Value = 99
	again, _ := m.Load(context.Background())
	if len(again) != 2 || again[0].Value != 1 {
		t.Fatalf("load must return a copy: %+v", again)
	}
}

func TestSQLiteJournal(t *testing.T) {
	j, err := NewSQLiteJournal(":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	ctx := context.Background()

	older := &models.ForecastRun{
		Model: "KNN", Trigger: "schedule", CreatedAt: time.Now().Add(-time.Hour),
		LastDate: day("2024-01-01"),
		Points:   []models.ForecastPoint{{Date: day("2024-01-08"), Prediction: 0.4, LowerBound: -0.4, UpperBound: 1.2}},
	}
	newer := &models.ForecastRun{Model: "LightGBM", Trigger: "manual", LastDate: day("2024-01-08")}
	for _, r := range []*models.ForecastRun{older, newer} {
		if err := j.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
		if r.ID == "" {
			t.Fatal("id not assigned")
		}
	}

	runs, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].Model != "LightGBM" || runs[1].ID != older.ID {
		t.Fatalf("runs = %+v", runs)
	}
	if len(runs[1].Points) != 1 || runs[1].Points[0].UpperBound != 1.2 || !runs[1].LastDate.Equal(day("2024-01-01")) {
		t.Fatalf("points = %+v", runs[1])
	}

	runs, _ = j.Recent(ctx, 1)
	if len(runs) != 1 {
		t.Fatalf("limit ignored: %d", len(runs))
	}
}
