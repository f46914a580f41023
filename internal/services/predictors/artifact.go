package predictors

import (
	"encoding/json"
	"fmt"

	"IPHForecast/internal/domain/models"
	domsvc "IPHForecast/internal/domain/service"
)

// Artifact kinds.
const (
	KindLinear  = "linear"
	KindForest  = "forest"
	KindBoosted = "boosted"
	KindKNN     = "knn"
)

// Artifact is the JSON export of a trained regressor.
type Artifact struct {
	Name string `json:"name"`
	Kind string `json:"kind"`

	// linear
	Intercept    float64   `json:"intercept,omitempty"`
	Coefficients []float64 `json:"coefficients,omitempty"`

	// forest, boosted
	Trees        []TreeArtifact `json:"trees,omitempty"`
	BaseScore    float64        `json:"base_score,omitempty"`
	LearningRate float64        `json:"learning_rate,omitempty"`

	// knn
	K       int         `json:"k,omitempty"`
	Weights string      `json:"weights,omitempty"` // uniform | distance
	Samples [][]float64 `json:"samples,omitempty"`
	Targets []float64   `json:"targets,omitempty"`
}

// TreeArtifact is a flattened binary regression tree. Leaves have Left == -1.
type TreeArtifact struct {
	Nodes []Node `json:"nodes"`
}

type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Decode parses an artifact and builds its predictor. name overrides the artifact's own name when set.
func Decode(name string, b []byte) (domsvc.Predictor, error) {
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if name != "" {
		a.Name = name
	}
	return Build(a)
}

// Build turns a decoded artifact into a predictor.
func Build(a Artifact) (domsvc.Predictor, error) {
	if a.Name == "" {
		return nil, fmt.Errorf("artifact has no name")
	}
	switch a.Kind {
	case KindLinear:
		if len(a.Coefficients) != models.FeatureVectorLen {
			return nil, fmt.Errorf("%s: linear model needs %d coefficients, got %d", a.Name, models.FeatureVectorLen, len(a.Coefficients))
		}
		return NewLinear(a.Name, a.Intercept, a.Coefficients), nil
	case KindForest:
		if len(a.Trees) == 0 {
			return nil, fmt.Errorf("%s: forest has no trees", a.Name)
		}
		members := make([]domsvc.Predictor, len(a.Trees))
		for i, t := range a.Trees {
			members[i] = &Tree{name: fmt.Sprintf("%s/tree-%d", a.Name, i), nodes: t.Nodes}
		}
		return NewForest(a.Name, members), nil
	case KindBoosted:
		if len(a.Trees) == 0 {
			return nil, fmt.Errorf("%s: boosted model has no trees", a.Name)
		}
		trees := make([]*Tree, len(a.Trees))
		for i, t := range a.Trees {
			trees[i] = &Tree{name: fmt.Sprintf("%s/stage-%d", a.Name, i), nodes: t.Nodes}
		}
		lr := a.LearningRate
		if lr == 0 {
			lr = 1
		}
		return &Boosted{name: a.Name, base: a.BaseScore, rate: lr, trees: trees}, nil
	case KindKNN:
		if len(a.Samples) == 0 || len(a.Samples) != len(a.Targets) {
			return nil, fmt.Errorf("%s: knn needs matching samples and targets", a.Name)
		}
		for i, s := range a.Samples {
			if len(s) != models.FeatureVectorLen {
				return nil, fmt.Errorf("%s: sample %d has %d features", a.Name, i, len(s))
			}
		}
		k := a.K
		if k <= 0 {
			k = 5
		}
		if k > len(a.Samples) {
			k = len(a.Samples)
		}
		return &KNN{name: a.Name, k: k, distance: a.Weights == "distance", samples: a.Samples, targets: a.Targets}, nil
	default:
		return nil, fmt.Errorf("%s: unknown artifact kind %q", a.Name, a.Kind)
	}
}
