package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.Server.Port != 5001 {
		t.Fatalf("port = %d", c.Server.Port)
	}
	if c.Storage.Type != "csv" || c.Ingestion.Backend != "store" {
		t.Fatalf("unexpected backends %q %q", c.Storage.Type, c.Ingestion.Backend)
	}
	if c.Models.Tables.Margin["KNN"] != 0.8 || c.Models.Tables.Accuracy["LightGBM"] != 0.92 {
		t.Fatalf("model tables not seeded: %+v", c.Models.Tables)
	}
	if len(c.Models.List) != 4 || c.Models.List[0].Name != "Random_Forest" {
		t.Fatalf("model list = %+v", c.Models.List)
	}
	if c.Forecast.Horizon != 4 || c.Forecast.ConfidenceLevel != 0.95 {
		t.Fatalf("forecast = %+v", c.Forecast)
	}
	if c.Models.Tables.Z95 != 1.96 || c.Models.Tables.ZOther != 2.58 {
		t.Fatalf("z values = %v %v", c.Models.Tables.Z95, c.Models.Tables.ZOther)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
environment: test
server:
  port: 9090
  write_timeout: 5s
models:
  list:
    - name: KNN
      path: knn_v2.json
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 9090 || c.Server.WriteTimeout != 5*time.Second {
		t.Fatalf("server = %+v", c.Server)
	}
	if c.Server.ReadTimeout != 10*time.Second {
		t.Fatalf("read timeout default lost: %v", c.Server.ReadTimeout)
	}
	if len(c.Models.List) != 1 || c.Models.List[0].Path != "knn_v2.json" {
		t.Fatalf("models = %+v", c.Models.List)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"storage":    "storage:\n  type: parquet\n",
		"clickhouse": "storage:\n  type: clickhouse\n",
		"ingestion":  "ingestion:\n  backend: kafka\n",
		"horizon":    "forecast:\n  horizon: 9\n",
		"duplicate":  "models:\n  list:\n    - name: KNN\n    - name: KNN\n",
		"cache":      "cache:\n  type: memcached\n",
	}
	for name, body := range cases {
		if _, err := Parse([]byte(body)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadWithEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("environment: test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IPH_PORT", "7000")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 7000 {
		t.Fatalf("port = %d", c.Server.Port)
	}
	if len(c.Kafka.Brokers) != 2 {
		t.Fatalf("brokers = %v", c.Kafka.Brokers)
	}
}

func TestLoadWithEnvValidatesAfterOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  type: clickhouse\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected missing clickhouse host error")
	}
	t.Setenv("CLICKHOUSE_HOST", "ch.internal")
	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ClickHouse.Host != "ch.internal" {
		t.Fatalf("host = %s", c.ClickHouse.Host)
	}
}
