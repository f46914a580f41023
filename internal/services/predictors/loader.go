package predictors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"IPHForecast/internal/domain/models"
	domsvc "IPHForecast/internal/domain/service"
	"IPHForecast/pkg/config"
	xhttp "IPHForecast/pkg/http"
	"IPHForecast/pkg/logger"
)

// selfTestInput is evaluated once per model at load; models that cannot predict it are skipped.
var selfTestInput = models.FeatureVector{Lag1: 0.1, Lag2: 0.2, Lag3: 0.3, Lag4: 0.4, MA3: 0.5, MA7: 0.6}

// Source fetches raw artifact bytes for a configured model.
type Source interface {
	Fetch(ctx context.Context, spec config.ModelSpec) ([]byte, error)
}

// DirSource reads artifacts from a local directory.
type DirSource struct {
	Dir string
}

func (s DirSource) Fetch(_ context.Context, spec config.ModelSpec) ([]byte, error) {
	p := spec.Path
	if p == "" {
		p = spec.Name + ".json"
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.Dir, p)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return b, nil
}

// RegistrySource downloads artifacts from a model registry over HTTP.
type RegistrySource struct {
	baseURL  string
	client   *xhttp.Client
	attempts int
}

func NewRegistrySource(baseURL, token string, timeout time.Duration) *RegistrySource {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RegistrySource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithBearerToken(token)),
		attempts: 3,
	}
}

func (s *RegistrySource) Fetch(ctx context.Context, spec config.ModelSpec) ([]byte, error) {
	path := spec.Path
	if path == "" {
		path = spec.Name + ".json"
	}
	url := s.baseURL + "/" + strings.TrimLeft(path, "/")

	var err error
	for i := 1; i <= s.attempts; i++ {
		var body []byte
		body, err = s.client.GetBytes(ctx, url)
		if err == nil {
			return body, nil
		}
		if xhttp.IsPermanent(err) || i == s.attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("fetch %s: %w", spec.Name, err)
}

// NewSource picks the registry when a URL is configured, the model directory otherwise.
func NewSource(cfg *config.Config) Source {
	if cfg.Models.RegistryURL != "" {
		return NewRegistrySource(cfg.Models.RegistryURL, cfg.Models.RegistryToken, cfg.Models.FetchTimeout)
	}
	return DirSource{Dir: cfg.Models.Dir}
}

// Loaded is the outcome of LoadAll: the usable predictors plus one status
// entry per configured spec, in configuration order.
type Loaded struct {
	Predictors []domsvc.Predictor
	Report     []models.ModelLoadStatus
}

// LoadAll fetches, decodes and self-tests every configured model in order.
// Failures are logged, reported and skipped; Predictors may be empty.
func LoadAll(ctx context.Context, src Source, specs []config.ModelSpec, l *logger.Logger) Loaded {
	out := Loaded{
		Predictors: make([]domsvc.Predictor, 0, len(specs)),
		Report:     make([]models.ModelLoadStatus, 0, len(specs)),
	}
	for _, spec := range specs {
		p, y, err := load(ctx, src, spec)
		if err != nil {
			l.Warn("model load failed", logger.String("model", spec.Name), logger.Error(err))
			out.Report = append(out.Report, models.ModelLoadStatus{Name: spec.Name, Error: err.Error()})
			continue
		}
		l.Info("model loaded", logger.String("model", p.Name()), logger.String("kind", string(p.Kind())))
		out.Predictors = append(out.Predictors, p)
		out.Report = append(out.Report, models.ModelLoadStatus{
			Name:           p.Name(),
			Loaded:         true,
			Type:           string(p.Kind()),
			TestPrediction: &y,
		})
	}
	return out
}

func load(ctx context.Context, src Source, spec config.ModelSpec) (domsvc.Predictor, float64, error) {
	b, err := src.Fetch(ctx, spec)
	if err != nil {
		return nil, 0, err
	}
	p, err := Decode(spec.Name, b)
	if err != nil {
		return nil, 0, err
	}
	y, err := p.Predict(selfTestInput)
	if err != nil {
		return nil, 0, fmt.Errorf("test prediction: %w", err)
	}
	return p, y, nil
}
