package forecast

import (
	"IPHForecast/internal/domain"
	"IPHForecast/internal/domain/models"
	domsvc "IPHForecast/internal/domain/service"
	"IPHForecast/pkg/logger"
)

// Registry is the ordered, read-only set of loaded predictors.
// The first entry is the default model.
type Registry struct {
	order  []domsvc.Predictor
	byName map[string]domsvc.Predictor
	report []models.ModelLoadStatus
	l      *logger.Logger
}

func NewRegistry(ps []domsvc.Predictor, l *logger.Logger) *Registry {
	if l == nil {
		l = logger.NewNop()
	}
	r := &Registry{byName: make(map[string]domsvc.Predictor, len(ps)), l: l}
	for _, p := range ps {
		if p == nil {
			continue
		}
		if _, dup := r.byName[p.Name()]; dup {
			l.Warn("duplicate model ignored", logger.String("model", p.Name()))
			continue
		}
		r.byName[p.Name()] = p
		r.order = append(r.order, p)
	}
	return r
}

// SetLoadReport keeps the startup outcome of every configured model,
// failed ones included.
func (r *Registry) SetLoadReport(rep []models.ModelLoadStatus) {
	r.report = append([]models.ModelLoadStatus(nil), rep...)
}

// LoadReport returns the startup outcome recorded by SetLoadReport. Without
// one, every registered model is reported as loaded.
func (r *Registry) LoadReport() []models.ModelLoadStatus {
	if r.report != nil {
		return append([]models.ModelLoadStatus(nil), r.report...)
	}
	out := make([]models.ModelLoadStatus, len(r.order))
	for i, p := range r.order {
		out[i] = models.ModelLoadStatus{Name: p.Name(), Loaded: true, Type: string(p.Kind())}
	}
	return out
}

// Names lists available models in load order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	for i, p := range r.order {
		out[i] = p.Name()
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }

// Has reports whether name is loaded, without fallback.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Default returns the first loaded model.
func (r *Registry) Default() (domsvc.Predictor, error) {
	if len(r.order) == 0 {
		return nil, domain.ErrNoPredictorAvailable
	}
	return r.order[0], nil
}

// Resolve returns the named model, or the default one when the name is unknown.
func (r *Registry) Resolve(name string) (domsvc.Predictor, error) {
	if p, ok := r.byName[name]; ok {
		return p, nil
	}
	p, err := r.Default()
	if err != nil {
		return nil, err
	}
	r.l.Warn("unknown model, using default",
		logger.String("requested", name),
		logger.String("model", p.Name()),
	)
	return p, nil
}

// All returns the loaded predictors in load order.
func (r *Registry) All() []domsvc.Predictor {
	out := make([]domsvc.Predictor, len(r.order))
	copy(out, r.order)
	return out
}
