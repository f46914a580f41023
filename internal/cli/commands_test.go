package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeFixture lays out a config, a ten-week series and one linear model under a temp dir.
func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	var csv strings.Builder
	csv.WriteString("Tanggal,Indikator_Harga,Lag_1,Lag_2,Lag_3,Lag_4,MA_3,MA_7,Periode\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&csv, "2024-%02d-%02d,%d,0,0,0,0,0,0,%d\n", 1+i/4, 1+(i%4)*7, i%3, i+1)
	}
	files := map[string]string{
		"series.csv":      csv.String(),
		"models/KNN.json": `{"kind":"linear","intercept":0.5,"coefficients":[0,0,0,0,0,0]}`,
		"config.yaml": fmt.Sprintf(`environment: test
storage:
  type: csv
  csv_path: %s
models:
  dir: %s
  list:
    - name: KNN
journal:
  sqlite_path: ":memory:"
`, filepath.Join(dir, "series.csv"), filepath.Join(dir, "models")),
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args,
		"--config", filepath.Join(dir, "config.yaml"),
		"--env", filepath.Join(dir, "missing.env"),
	))
	err := root.Execute()
	return out.String(), err
}

func TestForecastCommand(t *testing.T) {
	dir := writeFixture(t)
	out, err := run(t, dir, "forecast")
	if err != nil {
		t.Fatalf("forecast: %v\n%s", err, out)
	}
	if !strings.Contains(out, "model KNN (MAE 1.1500)") {
		t.Fatalf("missing header:\n%s", out)
	}
	if strings.Count(out, "0.5000") < 4 {
		t.Fatalf("expected four 0.5 predictions:\n%s", out)
	}

	if _, err := run(t, dir, "forecast", "Prophet"); err == nil {
		t.Fatal("expected unknown model error")
	}
}

func TestWhatIfAndSummaryCommands(t *testing.T) {
	dir := writeFixture(t)
	out, err := run(t, dir, "what-if", "--current", "1.5")
	if err != nil {
		t.Fatalf("what-if: %v\n%s", err, out)
	}
	if !strings.Contains(out, "model KNN: 0.5000% [-0.3000, 1.3000]") {
		t.Fatalf("what-if output:\n%s", out)
	}

	out, err = run(t, dir, "summary")
	if err != nil {
		t.Fatalf("summary: %v\n%s", err, out)
	}
	if !strings.Contains(out, "records") || !strings.Contains(out, "10") {
		t.Fatalf("summary output:\n%s", out)
	}

	if _, err := run(t, dir, "what-if"); err == nil {
		t.Fatal("expected missing --current error")
	}
}

func TestAppendCommandPersists(t *testing.T) {
	dir := writeFixture(t)
	out, err := run(t, dir, "append", "--date", "2024-03-25", "--value", "0,75")
	if err != nil {
		t.Fatalf("append: %v\n%s", err, out)
	}
	if !strings.Contains(out, "appended 2024-03-25 = 0.7500") {
		t.Fatalf("append output:\n%s", out)
	}
	b, err := os.ReadFile(filepath.Join(dir, "series.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "2024-03-25") {
		t.Fatalf("row not persisted:\n%s", b)
	}

	if _, err := run(t, dir, "append", "--date", "25/03/2024", "--value", "1"); err == nil {
		t.Fatal("expected invalid date error")
	}
}

func TestSnapshotAndValidateCommands(t *testing.T) {
	dir := writeFixture(t)
	out, err := run(t, dir, "snapshot")
	if err != nil {
		t.Fatalf("snapshot: %v\n%s", err, out)
	}
	if !strings.Contains(out, "KNN") || !strings.Contains(out, "manual") {
		t.Fatalf("snapshot output:\n%s", out)
	}

	out, err = run(t, dir, "validate")
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1/1 loaded") {
		t.Fatalf("validate output:\n%s", out)
	}
}
