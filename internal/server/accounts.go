package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"shiftpost/internal/engine"
	"shiftpost/internal/repo"
)

func registerAccounts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-account",
		Method:        http.MethodPost,
		Path:          "/accounts",
		Summary:       "Register an agency or officer account",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body RegisterAccountRequest `json:"body"`
	}) (*struct {
		Body AccountResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RegisterAccount(ctx, engine.AccountCreateOptions{
			Kind:    input.Body.Kind,
			Name:    input.Body.Name,
			Contact: input.Body.Contact,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AccountResponse `json:"body"`
		}{Body: accountResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-accounts",
		Method:      http.MethodGet,
		Path:        "/accounts",
		Summary:     "List accounts",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Kind   string `query:"kind"`
		Status string `query:"status"`
	}) (*struct {
		Body []AccountResponse `json:"body"`
	}, error) {
		if authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		accounts, err := e.Repo.ListAccounts(ctx, repo.AccountFilters{
			Kind:   input.Kind,
			Status: input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AccountResponse `json:"body"`
		}{Body: mapAccounts(accounts)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-account",
		Method:      http.MethodGet,
		Path:        "/accounts/{id}",
		Summary:     "Get account",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body AccountResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetAccount(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AccountResponse `json:"body"`
		}{Body: accountResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-account",
		Method:      http.MethodPost,
		Path:        "/accounts/{id}/validate",
		Summary:     "Approve a pending registration",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body AccountResponse `json:"body"`
	}, error) {
		if authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ValidateAccount(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AccountResponse `json:"body"`
		}{Body: accountResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-account",
		Method:      http.MethodDelete,
		Path:        "/accounts/{id}",
		Summary:     "Reject a pending registration",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RejectAccount(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
