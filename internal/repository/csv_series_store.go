package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"IPHForecast/internal/domain/models"
	domrepo "IPHForecast/internal/domain/repository"
	applogger "IPHForecast/pkg/logger"
	"IPHForecast/pkg/util"

	"github.com/gocarina/gocsv"
)

// csvRow is the on-disk layout. Cells are read as text so blanks and
// comma decimals can be cleaned instead of failing the whole file.
type csvRow struct {
	Tanggal        string `csv:"Tanggal"`
	IndikatorHarga string `csv:"Indikator_Harga"`
	Lag1           string `csv:"Lag_1"`
	Lag2           string `csv:"Lag_2"`
	Lag3           string `csv:"Lag_3"`
	Lag4           string `csv:"Lag_4"`
	MA3            string `csv:"MA_3"`
	MA7            string `csv:"MA_7"`
	Periode        string `csv:"Periode"`
}

// CSVSeriesStore keeps the series in a single CSV file. Appends rewrite the file.
type CSVSeriesStore struct {
	path string
	l    *applogger.Logger
	mu   sync.Mutex
}

func NewCSVSeriesStore(path string, l *applogger.Logger) *CSVSeriesStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CSVSeriesStore{path: path, l: l}
}

var _ domrepo.SeriesStore = (*CSVSeriesStore)(nil)

func (s *CSVSeriesStore) Load(_ context.Context) ([]models.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *CSVSeriesStore) load() ([]models.Observation, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.l.Warn("series file missing, starting empty", applogger.String("path", s.path))
		return []models.Observation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	rows, err := DecodeCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return rows, nil
}

// DecodeCSV parses and cleans series rows: rows without a date or target are
// dropped, blank features become 0, and the result is sorted by date.
func DecodeCSV(r io.Reader) ([]models.Observation, error) {
	var raw []*csvRow
	if err := gocsv.Unmarshal(r, &raw); err != nil {
		return nil, err
	}
	out := make([]models.Observation, 0, len(raw))
	for _, c := range raw {
		if c == nil {
			continue
		}
		d, ok := util.ParseDate(c.Tanggal)
		if !ok {
			continue
		}
		v, ok := util.ParseFloat(c.IndikatorHarga)
		if !ok {
			continue
		}
		out = append(out, models.Observation{
			Date:  d,
			Value: v,
			Lag1:  util.ParseFloatDefault(c.Lag1, 0),
			Lag2:  util.ParseFloatDefault(c.Lag2, 0),
			Lag3:  util.ParseFloatDefault(c.Lag3, 0),
			Lag4:  util.ParseFloatDefault(c.Lag4, 0),
			MA3:   util.ParseFloatDefault(c.MA3, 0),
			MA7:   util.ParseFloatDefault(c.MA7, 0),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// EncodeCSV writes rows in file order with a 1-based Periode column.
func EncodeCSV(w io.Writer, rows []models.Observation) error {
	out := make([]*csvRow, len(rows))
	for i, r := range rows {
		out[i] = &csvRow{
			Tanggal:        util.FormatDate(r.Date),
			IndikatorHarga: formatCell(r.Value),
			Lag1:           formatCell(r.Lag1),
			Lag2:           formatCell(r.Lag2),
			Lag3:           formatCell(r.Lag3),
			Lag4:           formatCell(r.Lag4),
			MA3:            formatCell(r.MA3),
			MA7:            formatCell(r.MA7),
			Periode:        strconv.Itoa(i + 1),
		}
	}
	return gocsv.Marshal(&out, w)
}

func (s *CSVSeriesStore) Append(_ context.Context, obs models.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.load()
	if err != nil {
		return err
	}
	rows = append(rows, obs)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".series-*.csv")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeCSV(tmp, rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func (s *CSVSeriesStore) Health(_ context.Context) error {
	_, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *CSVSeriesStore) Close() error { return nil }

func formatCell(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
