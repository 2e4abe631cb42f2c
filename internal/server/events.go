package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"shiftpost/internal/engine"
)

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Read the event log, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"50"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		events, err := e.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(events)}, nil
	})
}
