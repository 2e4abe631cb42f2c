package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"shiftpost/internal/domain"
	"shiftpost/internal/engine"
	"shiftpost/internal/pay"
	"shiftpost/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid status transition: Open -> Booked"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the shiftpost API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema-level request errors report as 400 bad_request.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Shiftpost API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerQuote(group, cfg.Engine)
	registerJobs(group, cfg.Engine)
	registerAccounts(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		// Missing required input is a malformed request; everything else
		// (pay floor, vocabulary, ranges) is a semantic rejection.
		if strings.Contains(strings.ToLower(verr.Message), "required") {
			return newAPIError(http.StatusBadRequest, "bad_request", verr.Message, nil)
		}
		var details map[string]any
		if verr.Minimum > 0 {
			details = map[string]any{"minimum_offer": verr.Minimum}
		}
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", verr.Message, details)
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidTransition):
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, engine.ErrCancelWindow):
		return newAPIError(http.StatusConflict, "cancel_window", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyReviewed):
		return newAPIError(http.StatusConflict, "already_reviewed", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidState):
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), nil)
	case errors.Is(err, repo.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Shiftpost API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Marketplace status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		jobCounts, err := e.Repo.CountJobsByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		accountCounts, err := e.Repo.CountAccounts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		lastEvent, err := e.Repo.LatestEventID(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"job_counts":     jobCounts,
			"account_counts": accountCounts,
			"last_event_id":  lastEvent,
		}}, nil
	})
}

func registerQuote(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "pay-quote",
		Method:      http.MethodGet,
		Path:        "/pay/quote",
		Summary:     "Quote suggested pay for a shift",
		Errors:      []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Rank      string `query:"rank" example:"SO"`
		StartTime string `query:"start_time" example:"08:00"`
		EndTime   string `query:"end_time" example:"16:00"`
		Urgency   string `query:"urgency" default:"Normal"`
	}) (*struct {
		Body QuoteResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if e.Config == nil {
			return nil, handleError(errors.New("config not loaded"))
		}
		urgency := input.Urgency
		if urgency == "" {
			urgency = domain.UrgencyNormal
		}
		table := e.Config.Table()
		hours, err := pay.Hours(input.StartTime, input.EndTime)
		if err != nil {
			return nil, newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
		}
		suggested, err := table.Suggested(input.Rank, input.StartTime, input.EndTime, urgency)
		if err != nil {
			return nil, newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
		}
		minimum, err := table.MinimumOffer(input.Rank, input.StartTime, input.EndTime, urgency)
		if err != nil {
			return nil, newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
		}
		return &struct {
			Body QuoteResponse `json:"body"`
		}{Body: QuoteResponse{
			Rank:      input.Rank,
			Hours:     hours,
			Urgency:   urgency,
			Suggested: suggested,
			Minimum:   minimum,
		}}, nil
	})
}
