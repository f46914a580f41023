package forecast

import (
	"errors"
	"math"
	"testing"

	"IPHForecast/internal/domain"
	"IPHForecast/internal/domain/models"
	domsvc "IPHForecast/internal/domain/service"
)

type constPredictor struct {
	name string
	y    float64
	err  error
}

func (p constPredictor) Name() string               { return p.name }
func (p constPredictor) Kind() domsvc.PredictorKind { return domsvc.KindPoint }
func (p constPredictor) Predict(models.FeatureVector) (float64, error) {
	return p.y, p.err
}

type ensemble struct {
	name    string
	base    float64
	members []domsvc.Predictor
}

func (e ensemble) Name() string                { return e.name }
func (e ensemble) Kind() domsvc.PredictorKind  { return domsvc.KindEnsemble }
func (e ensemble) Members() []domsvc.Predictor { return e.members }
func (e ensemble) Predict(models.FeatureVector) (float64, error) {
	return e.base, nil
}

type countingMetrics struct {
	failures int
}

func (c *countingMetrics) RecordObservation(string)         {}
func (c *countingMetrics) RecordError(string)               {}
func (c *countingMetrics) RecordLatestValue(float64)        {}
func (c *countingMetrics) RecordLatency(string, float64)    {}
func (c *countingMetrics) RecordSubEstimatorFailure(string) { c.failures++ }

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func newEstimator(ps ...domsvc.Predictor) *Estimator {
	return NewEstimator(NewRegistry(ps, nil), DefaultTables(), DefaultBandConfig(), nil, nil)
}

func TestEnsembleBand(t *testing.T) {
	rf := ensemble{name: "Random_Forest", base: 9, members: []domsvc.Predictor{
		constPredictor{name: "a", y: 1},
		constPredictor{name: "b", y: 3},
	}}
	e := newEstimator(rf)

	b, name, err := e.PredictWithBand("Random_Forest", models.FeatureVector{}, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	if name != "Random_Forest" {
		t.Fatalf("name = %s", name)
	}
	// mean 2, population std 1
	if !almost(b.Point, 2) || !almost(b.Lower, 2-1.96) || !almost(b.Upper, 2+1.96) {
		t.Fatalf("band = %+v", b)
	}
	if !(b.Lower <= b.Point && b.Point <= b.Upper) {
		t.Fatalf("band not ordered: %+v", b)
	}

	b, _, _ = e.PredictWithBand("Random_Forest", models.FeatureVector{}, 0.99)
	if !almost(b.Upper, 2+2.58) {
		t.Fatalf("0.99 band = %+v", b)
	}
	b, _, _ = e.PredictWithBand("Random_Forest", models.FeatureVector{}, 0.8)
	if !almost(b.Upper, 2+2.58) {
		t.Fatalf("any non-0.95 level uses the wide z: %+v", b)
	}
}

func TestBandConfigZValues(t *testing.T) {
	rf := ensemble{name: "Random_Forest", base: 9, members: []domsvc.Predictor{
		constPredictor{name: "a", y: 1},
		constPredictor{name: "b", y: 3},
	}}
	reg := NewRegistry([]domsvc.Predictor{rf}, nil)

	e := NewEstimator(reg, DefaultTables(), BandConfig{Z95: 1, ZOther: 3, FallbackMargin: 0.5}, nil, nil)
	b, _, err := e.PredictWithBand("Random_Forest", models.FeatureVector{}, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	if !almost(b.Lower, 1) || !almost(b.Upper, 3) {
		t.Fatalf("z95=1 band = %+v", b)
	}
	b, _, _ = e.PredictWithBand("Random_Forest", models.FeatureVector{}, 0.9)
	if !almost(b.Lower, -1) || !almost(b.Upper, 5) {
		t.Fatalf("z_other=3 band = %+v", b)
	}

	// zero values fall back to the defaults
	e = NewEstimator(reg, DefaultTables(), BandConfig{}, nil, nil)
	b, _, _ = e.PredictWithBand("Random_Forest", models.FeatureVector{}, 0.95)
	if !almost(b.Upper, 2+1.96) {
		t.Fatalf("default z95 band = %+v", b)
	}
	b, _, _ = e.PredictWithBand("Random_Forest", models.FeatureVector{}, 0.99)
	if !almost(b.Upper, 2+2.58) {
		t.Fatalf("default z_other band = %+v", b)
	}
}

func TestEnsembleSkipsFailedMembers(t *testing.T) {
	m := &countingMetrics{}
	rf := ensemble{name: "Random_Forest", base: 9, members: []domsvc.Predictor{
		constPredictor{name: "a", y: 4},
		constPredictor{name: "b", err: errors.New("boom")},
		constPredictor{name: "c", y: 4},
	}}
	e := NewEstimator(NewRegistry([]domsvc.Predictor{rf}, nil), DefaultTables(), DefaultBandConfig(), m, nil)
	b, _, err := e.PredictWithBand("Random_Forest", models.FeatureVector{}, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	if !almost(b.Point, 4) || !almost(b.Lower, 4) || !almost(b.Upper, 4) {
		t.Fatalf("band = %+v", b)
	}
	if m.failures != 1 {
		t.Fatalf("failures = %d", m.failures)
	}
}

func TestEnsembleAllMembersFail(t *testing.T) {
	bad := constPredictor{name: "x", err: errors.New("boom")}
	rf := ensemble{name: "Random_Forest", base: 3, members: []domsvc.Predictor{bad, bad}}
	b, _, err := newEstimator(rf).PredictWithBand("Random_Forest", models.FeatureVector{}, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	if !almost(b.Point, 3) || !almost(b.Lower, 2.5) || !almost(b.Upper, 3.5) {
		t.Fatalf("band = %+v", b)
	}
}

func TestEnsembleMemberCap(t *testing.T) {
	members := make([]domsvc.Predictor, 0, 60)
	for i := 0; i < 50; i++ {
		members = append(members, constPredictor{name: "ok", y: 1})
	}
	for i := 0; i < 10; i++ {
		members = append(members, constPredictor{name: "far", y: 100})
	}
	rf := ensemble{name: "Random_Forest", members: members}
	b, _, _ := newEstimator(rf).PredictWithBand("Random_Forest", models.FeatureVector{}, 0.95)
	if !almost(b.Point, 1) || !almost(b.Upper, 1) {
		t.Fatalf("only the first 50 members count: %+v", b)
	}
}

func TestPointModelUsesMarginTable(t *testing.T) {
	e := newEstimator(
		constPredictor{name: "LightGBM", y: 1},
		constPredictor{name: "KNN", y: 2},
		constPredictor{name: "Custom", y: 3},
	)
	cases := []struct {
		name   string
		point  float64
		margin float64
	}{
		{"LightGBM", 1, 0.6},
		{"KNN", 2, 0.8},
		{"Custom", 3, 0.5},
	}
	for _, c := range cases {
		b, _, err := e.PredictWithBand(c.name, models.FeatureVector{}, 0.95)
		if err != nil {
			t.Fatal(err)
		}
		if !almost(b.Point, c.point) || !almost(b.Width(), 2*c.margin) {
			t.Errorf("%s: band = %+v", c.name, b)
		}
	}
}

func TestSingleMemberEnsembleUsesMargin(t *testing.T) {
	rf := ensemble{name: "Random_Forest", base: 1, members: []domsvc.Predictor{constPredictor{name: "a", y: 7}}}
	b, _, _ := newEstimator(rf).PredictWithBand("Random_Forest", models.FeatureVector{}, 0.95)
	if !almost(b.Point, 1) || !almost(b.Lower, 0.5) {
		t.Fatalf("band = %+v", b)
	}
}

func TestUnknownModelFallsBackToFirst(t *testing.T) {
	e := newEstimator(constPredictor{name: "KNN", y: 2}, constPredictor{name: "LightGBM", y: 5})
	b, name, err := e.PredictWithBand("SVR", models.FeatureVector{}, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	if name != "KNN" || !almost(b.Point, 2) || !almost(b.Width(), 1.6) {
		t.Fatalf("name = %s band = %+v", name, b)
	}
}

func TestNoModels(t *testing.T) {
	_, _, err := newEstimator().PredictWithBand("KNN", models.FeatureVector{}, 0.95)
	if !errors.Is(err, domain.ErrNoPredictorAvailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestBasePredictionFailureIsFatal(t *testing.T) {
	e := newEstimator(constPredictor{name: "KNN", err: errors.New("bad input")})
	if _, _, err := e.PredictWithBand("KNN", models.FeatureVector{}, 0.95); err == nil {
		t.Fatal("expected error")
	}
}

func TestRegistryOrderAndDuplicates(t *testing.T) {
	r := NewRegistry([]domsvc.Predictor{
		constPredictor{name: "A"}, constPredictor{name: "B"}, constPredictor{name: "A"},
	}, nil)
	if got := r.Names(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("names = %v", got)
	}
	if !r.Has("B") || r.Has("C") {
		t.Fatal("Has mismatch")
	}
}

func TestTablesDefaults(t *testing.T) {
	tb := DefaultTables()
	if tb.AccuracyFor("LightGBM") != 0.92 || tb.AccuracyFor("nope") != 1.0 {
		t.Fatal("accuracy table")
	}
	if tb.MarginFor("KNN") != 0.8 || tb.MarginFor("nope") != 0.5 {
		t.Fatal("margin table")
	}
}
