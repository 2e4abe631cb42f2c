package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"shiftpost/internal/domain"
	"shiftpost/internal/engine"
	"shiftpost/internal/repo"
)

func registerJobs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/jobs",
		Summary:       "Post a job",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateJobRequest `json:"body"`
	}) (*struct {
		Body JobResponse `json:"body"`
	}, error) {
		if authErr := requireRole(ctx, RoleAgency); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.CreateJob(ctx, engine.JobCreateOptions{
			Site:      input.Body.Site,
			SiteType:  input.Body.SiteType,
			Date:      input.Body.Date,
			Rank:      input.Body.Rank,
			StartTime: input.Body.StartTime,
			EndTime:   input.Body.EndTime,
			Urgency:   input.Body.Urgency,
			OfferPay:  input.Body.OfferPay,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobResponse `json:"body"`
		}{Body: jobResponse(e, j)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Rank   string `query:"rank"`
		Limit  int    `query:"limit" default:"0"`
	}) (*struct {
		Body []JobResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		jobs, err := e.Repo.ListJobs(ctx, repo.JobFilters{
			Status: input.Status,
			Rank:   input.Rank,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []JobResponse `json:"body"`
		}{Body: mapJobs(e, jobs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}",
		Summary:     "Get job",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body JobResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		j, err := e.Repo.GetJob(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobResponse `json:"body"`
		}{Body: jobResponse(e, j)}, nil
	})

	type transitionInput struct {
		ID int64 `path:"id"`
	}
	transitionErrors := []int{
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusInternalServerError,
	}
	type jobOutput struct {
		Body JobResponse `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "commit-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{id}/commit",
		Summary:     "Commit to a job",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *transitionInput) (*jobOutput, error) {
		if authErr := requireRole(ctx, RoleOfficer); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.Commit(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: jobResponse(e, j)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{id}/cancel",
		Summary:     "Cancel a pending commitment",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *transitionInput) (*jobOutput, error) {
		if authErr := requireRole(ctx, RoleOfficer); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.Cancel(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: jobResponse(e, j)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{id}/accept",
		Summary:     "Accept a committed officer",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *transitionInput) (*jobOutput, error) {
		if authErr := requireRole(ctx, RoleAgency); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.Accept(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: jobResponse(e, j)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{id}/complete",
		Summary:     "Mark a booked job done",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *transitionInput) (*jobOutput, error) {
		if authErr := requireRole(ctx, RoleAgency); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.Complete(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: jobResponse(e, j)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{id}/reviews/{side}",
		Summary:     "Submit a post-completion review",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64         `path:"id"`
		Side string        `path:"side" enum:"agency,officer"`
		Body ReviewRequest `json:"body"`
	}) (*jobOutput, error) {
		role := RoleAgency
		if input.Side == domain.SideOfficer {
			role = RoleOfficer
		}
		if authErr := requireRole(ctx, role); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.SubmitReview(ctx, input.ID, input.Side, engine.ReviewOptions{
			Rating:   input.Body.Rating,
			Traits:   input.Body.Traits,
			Comments: input.Body.Comments,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &jobOutput{Body: jobResponse(e, j)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-job",
		Method:      http.MethodDelete,
		Path:        "/jobs/{id}",
		Summary:     "Delete a job",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *transitionInput) (*struct{}, error) {
		if authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteJob(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-jobs",
		Method:      http.MethodPost,
		Path:        "/jobs/reset",
		Summary:     "Remove all jobs",
		Errors: []int{
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int64 `json:"body"`
	}, error) {
		if authErr := requireRole(ctx); authErr != nil {
			return nil, authErr
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		removed, err := e.ResetJobs(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int64 `json:"body"`
		}{Body: map[string]int64{"removed": removed}}, nil
	})
}
