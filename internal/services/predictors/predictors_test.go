package predictors

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"IPHForecast/internal/domain/models"
	domsvc "IPHForecast/internal/domain/service"
	"IPHForecast/pkg/config"
	"IPHForecast/pkg/logger"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func stump(feature int, threshold, left, right float64) TreeArtifact {
	return TreeArtifact{Nodes: []Node{
		{Feature: feature, Threshold: threshold, Left: 1, Right: 2},
		{Left: -1, Value: left},
		{Left: -1, Value: right},
	}}
}

func TestLinearPredict(t *testing.T) {
	p, err := Build(Artifact{Name: "lin", Kind: KindLinear, Intercept: 1, Coefficients: []float64{1, 0, 0, 0, 0, 2}})
	if err != nil {
		t.Fatal(err)
	}
	y, err := p.Predict(models.FeatureVector{Lag1: 3, MA7: 0.5})
	if err != nil || !almost(y, 5) {
		t.Fatalf("y = %v, err = %v", y, err)
	}
	if p.Kind() != domsvc.KindPoint {
		t.Fatalf("kind = %s", p.Kind())
	}
}

func TestLinearRejectsWrongWidth(t *testing.T) {
	if _, err := Build(Artifact{Name: "lin", Kind: KindLinear, Coefficients: []float64{1, 2}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestForestIsEnsemble(t *testing.T) {
	p, err := Build(Artifact{Name: "rf", Kind: KindForest, Trees: []TreeArtifact{
		stump(0, 0, -1, 1),
		stump(0, 0, -3, 3),
	}})
	if err != nil {
		t.Fatal(err)
	}
	ens, ok := p.(domsvc.EnsemblePredictor)
	if !ok || p.Kind() != domsvc.KindEnsemble {
		t.Fatalf("forest should be an ensemble")
	}
	if len(ens.Members()) != 2 {
		t.Fatalf("members = %d", len(ens.Members()))
	}
	y, err := p.Predict(models.FeatureVector{Lag1: 1})
	if err != nil || !almost(y, 2) {
		t.Fatalf("y = %v, err = %v", y, err)
	}
}

func TestForestOfLinearMembers(t *testing.T) {
	f := NewForest("blend", []domsvc.Predictor{
		NewLinear("a", 1, []float64{1, 0, 0, 0, 0, 0}),
		NewLinear("b", 0, []float64{0, 0, 0, 0, 0, 3}),
	})
	y, err := f.Predict(models.FeatureVector{Lag1: 2, MA7: 2})
	if err != nil || !almost(y, 4.5) {
		t.Fatalf("y = %v, err = %v", y, err)
	}
	if f.Kind() != domsvc.KindEnsemble || len(f.Members()) != 2 || f.Name() != "blend" {
		t.Fatalf("forest = %s %s %d", f.Name(), f.Kind(), len(f.Members()))
	}
	if _, err := NewForest("empty", nil).Predict(models.FeatureVector{}); err == nil {
		t.Fatal("expected error for a forest without members")
	}
}

func TestTreeBadIndex(t *testing.T) {
	tr := &Tree{name: "t", nodes: []Node{{Feature: 0, Left: 5, Right: 6}}}
	if _, err := tr.Predict(models.FeatureVector{}); err == nil {
		t.Fatal("expected out of range error")
	}
	tr = &Tree{name: "t", nodes: []Node{{Feature: 9, Left: 0, Right: 0}}}
	if _, err := tr.Predict(models.FeatureVector{}); err == nil {
		t.Fatal("expected feature error")
	}
	tr = &Tree{name: "t", nodes: []Node{{Feature: 0, Left: 0, Right: 0}}}
	if _, err := tr.Predict(models.FeatureVector{}); err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestBoostedSumsStages(t *testing.T) {
	p, err := Build(Artifact{Name: "xgb", Kind: KindBoosted, BaseScore: 0.5, LearningRate: 0.1, Trees: []TreeArtifact{
		stump(1, 0, 0, 2),
		stump(1, 0, 0, 4),
	}})
	if err != nil {
		t.Fatal(err)
	}
	y, _ := p.Predict(models.FeatureVector{Lag2: 1})
	if !almost(y, 1.1) {
		t.Fatalf("y = %v", y)
	}
}

func TestKNNUniformAndDistance(t *testing.T) {
	a := Artifact{
		Name: "knn", Kind: KindKNN, K: 2,
		Samples: [][]float64{{0, 0, 0, 0, 0, 0}, {1, 0, 0, 0, 0, 0}, {10, 0, 0, 0, 0, 0}},
		Targets: []float64{1, 3, 100},
	}
	p, err := Build(a)
	if err != nil {
		t.Fatal(err)
	}
	y, _ := p.Predict(models.FeatureVector{Lag1: 0.25})
	if !almost(y, 2) {
		t.Fatalf("uniform y = %v", y)
	}

	a.Weights = "distance"
	p, _ = Build(a)
	y, _ = p.Predict(models.FeatureVector{Lag1: 0.25})
	// weights 4 and 4/3
	want := (4*1 + (4.0/3)*3) / (4 + 4.0/3)
	if !almost(y, want) {
		t.Fatalf("distance y = %v, want %v", y, want)
	}
	y, _ = p.Predict(models.FeatureVector{Lag1: 1})
	if !almost(y, 3) {
		t.Fatalf("exact match y = %v", y)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	if _, err := Decode("x", []byte(`{"kind":"svm"}`)); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Decode("x", []byte(`{`)); err == nil {
		t.Fatal("expected decode error")
	}
}

type mapSource map[string][]byte

func (m mapSource) Fetch(_ context.Context, spec config.ModelSpec) ([]byte, error) {
	b, ok := m[spec.Name]
	if !ok {
		return nil, errors.New("missing")
	}
	return b, nil
}

func TestLoadAllSkipsBrokenModels(t *testing.T) {
	src := mapSource{
		"Random_Forest": []byte(`{"kind":"forest","trees":[{"nodes":[{"left":-1,"value":1}]}]}`),
		"KNN":           []byte(`{"kind":"knn","k":1,"samples":[[1,2]],"targets":[1]}`),
		"LightGBM":      []byte(`{"kind":"boosted","trees":[{"nodes":[{"feature":7,"left":1,"right":1}]}]}`),
	}
	specs := []config.ModelSpec{{Name: "Random_Forest"}, {Name: "KNN"}, {Name: "LightGBM"}, {Name: "XGBoost_Advanced"}}
	got := LoadAll(context.Background(), src, specs, logger.NewNop())
	if len(got.Predictors) != 1 || got.Predictors[0].Name() != "Random_Forest" {
		t.Fatalf("loaded = %v", got.Predictors)
	}

	if len(got.Report) != len(specs) {
		t.Fatalf("report = %+v", got.Report)
	}
	for i, st := range got.Report {
		if st.Name != specs[i].Name {
			t.Fatalf("report[%d] = %s, want %s", i, st.Name, specs[i].Name)
		}
	}
	rf := got.Report[0]
	if !rf.Loaded || rf.Type != string(domsvc.KindEnsemble) || rf.Error != "" || rf.TestPrediction == nil || !almost(*rf.TestPrediction, 1) {
		t.Fatalf("forest status = %+v", rf)
	}
	for _, st := range got.Report[1:] {
		if st.Loaded || st.Error == "" || st.TestPrediction != nil {
			t.Fatalf("failed model reported as %+v", st)
		}
	}
	// decodes fine but cannot predict the self-test row
	if !strings.Contains(got.Report[2].Error, "test prediction") {
		t.Fatalf("LightGBM error = %q", got.Report[2].Error)
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`{"kind":"linear","coefficients":[1,0,0,0,0,0]}`)
	if err := os.WriteFile(filepath.Join(dir, "LightGBM.json"), body, 0o644); err != nil {
		t.Fatal(err)
	}
	got := LoadAll(context.Background(), DirSource{Dir: dir}, []config.ModelSpec{{Name: "LightGBM"}}, logger.NewNop())
	if len(got.Predictors) != 1 || got.Predictors[0].Name() != "LightGBM" {
		t.Fatalf("loaded = %v", got.Predictors)
	}
}

func TestRegistrySourceRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/KNN.json":
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"kind":"linear","intercept":1,"coefficients":[0,0,0,0,0,0]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewRegistrySource(srv.URL+"/", "s3cret", time.Second)
	b, err := src.Fetch(context.Background(), config.ModelSpec{Name: "KNN"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits = %d", hits.Load())
	}
	p, err := Decode("KNN", b)
	if err != nil || p.Name() != "KNN" {
		t.Fatalf("decode: %v", err)
	}

	before := hits.Load()
	if _, err := src.Fetch(context.Background(), config.ModelSpec{Name: "Prophet"}); err == nil {
		t.Fatal("expected not found")
	}
	if hits.Load() != before {
		t.Fatal("404 should not touch the artifact counter")
	}

	unauth := NewRegistrySource(srv.URL, "", time.Second)
	if _, err := unauth.Fetch(context.Background(), config.ModelSpec{Name: "KNN"}); err == nil {
		t.Fatal("expected unauthorized")
	}
}
