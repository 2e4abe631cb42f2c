package server

import (
	"encoding/json"
	"time"

	"shiftpost/internal/domain"
	"shiftpost/internal/engine"
)

type CreateJobRequest struct {
	Site      string  `json:"site" example:"Marina Bay Tower"`
	SiteType  string  `json:"site_type,omitempty" example:"Commercial"`
	Date      string  `json:"date" example:"2024-03-05"`
	Rank      string  `json:"rank" example:"SO"`
	StartTime string  `json:"start_time" example:"08:00"`
	EndTime   string  `json:"end_time" example:"16:00"`
	Urgency   string  `json:"urgency,omitempty" example:"Normal"`
	OfferPay  float64 `json:"offer_pay" example:"120"`
}

type ReviewRequest struct {
	Rating   int      `json:"rating" example:"5"`
	Traits   []string `json:"traits,omitempty"`
	Comments string   `json:"comments,omitempty"`
}

type RegisterAccountRequest struct {
	Kind    string `json:"kind" example:"agency"`
	Name    string `json:"name" example:"Sentinel Security"`
	Contact string `json:"contact,omitempty" example:"ops@sentinel.example"`
}

type ReviewResponse struct {
	Rating    int      `json:"rating"`
	Traits    []string `json:"traits,omitempty"`
	Comments  string   `json:"comments,omitempty"`
	Timestamp string   `json:"timestamp"`
}

type JobResponse struct {
	ID            int64           `json:"id"`
	Site          string          `json:"site"`
	SiteType      string          `json:"site_type"`
	Date          string          `json:"date"`
	Rank          string          `json:"rank"`
	StartTime     string          `json:"start_time"`
	EndTime       string          `json:"end_time"`
	Urgency       string          `json:"urgency"`
	SuggestedPay  float64         `json:"suggested_pay"`
	OfferPay      float64         `json:"offer_pay"`
	Status        string          `json:"status"`
	CommittedBy   *string         `json:"committed_by,omitempty"`
	CommitTime    *string         `json:"commit_time,omitempty"`
	CancellableAt *string         `json:"cancellable_at,omitempty"`
	AgencyReview  *ReviewResponse `json:"agency_review,omitempty"`
	OfficerReview *ReviewResponse `json:"officer_review,omitempty"`
	Revision      int64           `json:"revision"`
	CreatedAt     string          `json:"created_at"`
}

type AccountResponse struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	Name        string  `json:"name"`
	Contact     string  `json:"contact,omitempty"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	ValidatedAt *string `json:"validated_at,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type QuoteResponse struct {
	Rank      string  `json:"rank"`
	Hours     int     `json:"hours"`
	Urgency   string  `json:"urgency"`
	Suggested float64 `json:"suggested_pay"`
	Minimum   float64 `json:"minimum_offer"`
}

func reviewResponse(r *domain.Review) *ReviewResponse {
	if r == nil {
		return nil
	}
	return &ReviewResponse{
		Rating:    r.Rating,
		Traits:    r.Traits,
		Comments:  r.Comments,
		Timestamp: r.Timestamp,
	}
}

func jobResponse(e engine.Engine, j domain.Job) JobResponse {
	resp := JobResponse{
		ID:            j.ID,
		Site:          j.Site,
		SiteType:      j.SiteType,
		Date:          j.Date,
		Rank:          j.Rank,
		StartTime:     j.StartTime,
		EndTime:       j.EndTime,
		Urgency:       j.Urgency,
		SuggestedPay:  j.SuggestedPay,
		OfferPay:      j.OfferPay,
		Status:        j.Status,
		CommittedBy:   j.CommittedBy,
		CommitTime:    j.CommitTime,
		AgencyReview:  reviewResponse(j.AgencyReview),
		OfficerReview: reviewResponse(j.OfficerReview),
		Revision:      j.Revision,
		CreatedAt:     j.CreatedAt,
	}
	if at, ok := e.CancelAvailableAt(j); ok {
		s := at.UTC().Format(time.RFC3339)
		resp.CancellableAt = &s
	}
	return resp
}

func mapJobs(e engine.Engine, jobs []domain.Job) []JobResponse {
	res := []JobResponse{}
	for _, j := range jobs {
		res = append(res, jobResponse(e, j))
	}
	return res
}

func accountResponse(a domain.Account) AccountResponse {
	return AccountResponse{
		ID:          a.ID,
		Kind:        a.Kind,
		Name:        a.Name,
		Contact:     a.Contact,
		Status:      a.Status,
		CreatedAt:   a.CreatedAt,
		ValidatedAt: a.ValidatedAt,
	}
}

func mapAccounts(accounts []domain.Account) []AccountResponse {
	res := []AccountResponse{}
	for _, a := range accounts {
		res = append(res, accountResponse(a))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	resp := EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
	}
	if e.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(e.Payload), &payload); err == nil && len(payload) > 0 {
			resp.Payload = payload
		}
	}
	return resp
}

func mapEvents(events []domain.Event) []EventResponse {
	res := []EventResponse{}
	for _, e := range events {
		res = append(res, eventResponse(e))
	}
	return res
}
