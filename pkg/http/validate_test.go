package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type sampleRequest struct {
	Model string   `json:"model" validate:"omitempty,max=16,model_name"`
	Value *float64 `json:"current_iph" validate:"required"`
	Limit int      `json:"limit" default:"20" validate:"gte=1,lte=500"`
}

func bind(t *testing.T, body string) (*sampleRequest, []ValidationError) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	out := &sampleRequest{}
	return out, ReadAndValidateRequest(c, out)
}

func TestReadAndValidateRequest(t *testing.T) {
	req, errs := bind(t, `{"model":"KNN","current_iph":1.5}`)
	if errs != nil {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if req.Limit != 20 || *req.Value != 1.5 {
		t.Fatalf("request = %+v", req)
	}

	_, errs = bind(t, `{"model":"../etc"}`)
	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Code
	}
	if fields["model"] != "ERR_MODEL_NAME" || fields["current_iph"] != "ERR_REQUIRED" {
		t.Fatalf("errors = %+v", errs)
	}

	_, errs = bind(t, `{"current_iph":`)
	if len(errs) != 1 || errs[0].Code != "ERR_BIND" {
		t.Fatalf("malformed body errors = %+v", errs)
	}
}
