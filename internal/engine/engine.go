package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"shiftpost/internal/config"
	"shiftpost/internal/domain"
	"shiftpost/internal/events"
	"shiftpost/internal/pay"
	"shiftpost/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Bus    *events.Bus
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Bus:    events.NewBus(),
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrCancelWindow      = errors.New("cancellation window has not elapsed")
	ErrInvalidState      = errors.New("invalid job state")
	ErrAlreadyReviewed   = errors.New("review already submitted")
)

// ValidationError rejects a request before it reaches the store. Minimum is
// set when the offer pay fell below the computed floor.
type ValidationError struct {
	Message string
	Minimum float64
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ensureJobTransition guards the Open -> Pending -> Booked -> Completed path
// with its single back-edge Pending -> Open. Completed is terminal.
func ensureJobTransition(from, to string) error {
	switch from {
	case domain.StatusOpen:
		if to == domain.StatusPending {
			return nil
		}
	case domain.StatusPending:
		if to == domain.StatusOpen || to == domain.StatusBooked {
			return nil
		}
	case domain.StatusBooked:
		if to == domain.StatusCompleted {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func (e Engine) cancelWindow() time.Duration {
	minutes := 30
	if e.Config != nil && e.Config.Lifecycle.CancelWindowMinutes > 0 {
		minutes = e.Config.Lifecycle.CancelWindowMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// JobCreateOptions are parameters for posting a deployment.
type JobCreateOptions struct {
	Site      string
	SiteType  string
	Date      string
	Rank      string
	StartTime string
	EndTime   string
	Urgency   string
	OfferPay  float64
	ActorID   string
}

func (e Engine) CreateJob(ctx context.Context, opts JobCreateOptions) (domain.Job, error) {
	if e.Config == nil {
		return domain.Job{}, errors.New("config not loaded")
	}
	if opts.Site == "" || opts.Date == "" || opts.StartTime == "" || opts.EndTime == "" || opts.OfferPay <= 0 {
		return domain.Job{}, validationErrorf("please fill all required fields")
	}
	if opts.SiteType == "" {
		opts.SiteType = "Commercial"
	}
	if opts.Urgency == "" {
		opts.Urgency = domain.UrgencyNormal
	}
	if opts.Urgency != domain.UrgencyNormal && opts.Urgency != domain.UrgencyRush {
		return domain.Job{}, validationErrorf("urgency must be %s or %s", domain.UrgencyNormal, domain.UrgencyRush)
	}
	table := e.Config.Table()
	suggested, err := table.Suggested(opts.Rank, opts.StartTime, opts.EndTime, opts.Urgency)
	if err != nil {
		return domain.Job{}, &ValidationError{Message: err.Error()}
	}
	minimum, err := table.MinimumOffer(opts.Rank, opts.StartTime, opts.EndTime, opts.Urgency)
	if err != nil {
		return domain.Job{}, &ValidationError{Message: err.Error()}
	}
	if opts.OfferPay < minimum {
		return domain.Job{}, &ValidationError{
			Message: fmt.Sprintf("offer pay must be at least $%.2f", minimum),
			Minimum: minimum,
		}
	}
	now := e.now()
	j := domain.Job{
		Site:         opts.Site,
		SiteType:     opts.SiteType,
		Date:         opts.Date,
		Rank:         opts.Rank,
		StartTime:    opts.StartTime,
		EndTime:      opts.EndTime,
		Urgency:      opts.Urgency,
		SuggestedPay: suggested,
		OfferPay:     pay.Round2(opts.OfferPay),
		Status:       domain.StatusOpen,
		Revision:     1,
		CreatedAt:    now.UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()

	// Ids are creation-millis; bump on same-millisecond collisions.
	id := now.UnixMilli()
	for {
		exists, err := e.Repo.JobExists(ctx, tx, id)
		if err != nil {
			return domain.Job{}, err
		}
		if !exists {
			break
		}
		id++
	}
	j.ID = id
	if err := e.Repo.InsertJob(ctx, tx, j); err != nil {
		return domain.Job{}, fmt.Errorf("insert job: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "job.created", "job", jobEntityID(j.ID), opts.ActorID, events.EventPayload{
		"site":   j.Site,
		"rank":   j.Rank,
		"status": j.Status,
	}); err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	e.publish("job.created", "job", jobEntityID(j.ID))
	return j, nil
}

// Commit reserves an Open job for an officer and starts the confirmation
// window.
func (e Engine) Commit(ctx context.Context, jobID int64, officerID string) (domain.Job, error) {
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return j, err
	}
	if err := ensureJobTransition(j.Status, domain.StatusPending); err != nil {
		return j, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	j.Status = domain.StatusPending
	j.CommitTime = &now
	if officerID != "" {
		j.CommittedBy = &officerID
	}
	return e.saveJob(ctx, j, "job.committed", officerID, events.EventPayload{"officer": officerID})
}

// CancelAvailableAt reports when a pending commitment becomes cancellable.
// The second return is false when the job holds no commitment.
func (e Engine) CancelAvailableAt(j domain.Job) (time.Time, bool) {
	if j.Status != domain.StatusPending || j.CommitTime == nil {
		return time.Time{}, false
	}
	committed, err := time.Parse(time.RFC3339, *j.CommitTime)
	if err != nil {
		return time.Time{}, false
	}
	return committed.Add(e.cancelWindow()), true
}

// Cancel reverts a Pending job to Open once the confirmation window has
// elapsed. The window is evaluated against the clock at the moment of the
// attempt.
func (e Engine) Cancel(ctx context.Context, jobID int64, actorID string) (domain.Job, error) {
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return j, err
	}
	if err := ensureJobTransition(j.Status, domain.StatusOpen); err != nil {
		return j, err
	}
	availableAt, ok := e.CancelAvailableAt(j)
	if !ok {
		return j, fmt.Errorf("%w: job %d has no commit time", ErrInvalidState, jobID)
	}
	if !e.now().After(availableAt) {
		return j, fmt.Errorf("%w; cancellable at %s", ErrCancelWindow, availableAt.UTC().Format(time.RFC3339))
	}
	j.Status = domain.StatusOpen
	j.CommitTime = nil
	j.CommittedBy = nil
	return e.saveJob(ctx, j, "job.cancelled", actorID, nil)
}

// Accept confirms a Pending commitment, booking the officer.
func (e Engine) Accept(ctx context.Context, jobID int64, actorID string) (domain.Job, error) {
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return j, err
	}
	if err := ensureJobTransition(j.Status, domain.StatusBooked); err != nil {
		return j, err
	}
	j.Status = domain.StatusBooked
	return e.saveJob(ctx, j, "job.accepted", actorID, nil)
}

// Complete marks a Booked job done, opening it for reviews from both sides.
func (e Engine) Complete(ctx context.Context, jobID int64, actorID string) (domain.Job, error) {
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return j, err
	}
	if err := ensureJobTransition(j.Status, domain.StatusCompleted); err != nil {
		return j, err
	}
	j.Status = domain.StatusCompleted
	return e.saveJob(ctx, j, "job.completed", actorID, nil)
}

// ReviewOptions are parameters for attaching a post-completion review.
type ReviewOptions struct {
	Rating   int
	Traits   []string
	Comments string
	ActorID  string
}

// SubmitReview attaches a one-time review to a Completed job. side selects
// which party is writing: the agency reviews the officer and vice versa.
func (e Engine) SubmitReview(ctx context.Context, jobID int64, side string, opts ReviewOptions) (domain.Job, error) {
	if e.Config == nil {
		return domain.Job{}, errors.New("config not loaded")
	}
	if side != domain.SideAgency && side != domain.SideOfficer {
		return domain.Job{}, validationErrorf("side must be %s or %s", domain.SideAgency, domain.SideOfficer)
	}
	if opts.Rating < 1 || opts.Rating > 5 {
		return domain.Job{}, validationErrorf("rating must be between 1 and 5")
	}
	allowed := e.Config.Traits(side)
	for _, trait := range opts.Traits {
		if !containsString(allowed, trait) {
			return domain.Job{}, validationErrorf("unknown trait %q for %s review", trait, side)
		}
	}
	j, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return j, err
	}
	if j.Status != domain.StatusCompleted {
		return j, fmt.Errorf("%w: job must be %s before review, is %s", ErrInvalidState, domain.StatusCompleted, j.Status)
	}
	review := &domain.Review{
		Rating:    opts.Rating,
		Traits:    opts.Traits,
		Comments:  opts.Comments,
		Timestamp: e.now().UTC().Format(time.RFC3339),
	}
	switch side {
	case domain.SideAgency:
		if j.AgencyReview != nil {
			return j, fmt.Errorf("%w: agency review exists for job %d", ErrAlreadyReviewed, jobID)
		}
		j.AgencyReview = review
	case domain.SideOfficer:
		if j.OfficerReview != nil {
			return j, fmt.Errorf("%w: officer review exists for job %d", ErrAlreadyReviewed, jobID)
		}
		j.OfficerReview = review
	}
	return e.saveJob(ctx, j, "review.submitted", opts.ActorID, events.EventPayload{
		"side":   side,
		"rating": opts.Rating,
	})
}

// DeleteJob removes a single job. Administrative purge, outside the
// lifecycle paths.
func (e Engine) DeleteJob(ctx context.Context, jobID int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteJob(ctx, tx, jobID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "job.deleted", "job", jobEntityID(jobID), actorID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.publish("job.deleted", "job", jobEntityID(jobID))
	return nil
}

// ResetJobs clears the whole collection and reports how many jobs went.
func (e Engine) ResetJobs(ctx context.Context, actorID string) (int64, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	removed, err := e.Repo.ResetJobs(ctx, tx)
	if err != nil {
		return 0, err
	}
	if err := e.Events.Append(ctx, tx, "jobs.reset", "job", "", actorID, events.EventPayload{"removed": removed}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	e.publish("jobs.reset", "job", "")
	return removed, nil
}

// AccountCreateOptions are parameters for a registration.
type AccountCreateOptions struct {
	Kind    string
	Name    string
	Contact string
	ActorID string
}

// RegisterAccount files a pending agency or officer registration awaiting
// administrative validation.
func (e Engine) RegisterAccount(ctx context.Context, opts AccountCreateOptions) (domain.Account, error) {
	if opts.Kind != domain.AccountAgency && opts.Kind != domain.AccountOfficer {
		return domain.Account{}, validationErrorf("kind must be %s or %s", domain.AccountAgency, domain.AccountOfficer)
	}
	if opts.Name == "" {
		return domain.Account{}, validationErrorf("name is required")
	}
	a := domain.Account{
		ID:        uuid.New().String(),
		Kind:      opts.Kind,
		Name:      opts.Name,
		Contact:   opts.Contact,
		Status:    domain.AccountPending,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Account{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAccount(ctx, tx, a); err != nil {
		return domain.Account{}, fmt.Errorf("insert account: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "account.registered", "account", a.ID, opts.ActorID, events.EventPayload{
		"kind": a.Kind,
		"name": a.Name,
	}); err != nil {
		return domain.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Account{}, err
	}
	e.publish("account.registered", "account", a.ID)
	return a, nil
}

// ValidateAccount approves a pending registration.
func (e Engine) ValidateAccount(ctx context.Context, id, actorID string) (domain.Account, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Account{}, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.MarkAccountVerified(ctx, tx, id, now); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Account{}, fmt.Errorf("%w: account %s already validated", ErrInvalidTransition, id)
		}
		return domain.Account{}, err
	}
	if err := e.Events.Append(ctx, tx, "account.validated", "account", id, actorID, nil); err != nil {
		return domain.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Account{}, err
	}
	e.publish("account.validated", "account", id)
	return e.Repo.GetAccount(ctx, id)
}

// RejectAccount removes a pending registration.
func (e Engine) RejectAccount(ctx context.Context, id, actorID string) error {
	a, err := e.Repo.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != domain.AccountPending {
		return fmt.Errorf("%w: account %s is %s", ErrInvalidTransition, id, a.Status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAccount(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "account.rejected", "account", id, actorID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.publish("account.rejected", "account", id)
	return nil
}

// saveJob writes a mutated job back under its read revision, logs the event,
// and notifies subscribers once committed.
func (e Engine) saveJob(ctx context.Context, j domain.Job, evtType, actorID string, payload events.EventPayload) (domain.Job, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return j, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateJob(ctx, tx, j); err != nil {
		return j, err
	}
	if err := e.Events.Append(ctx, tx, evtType, "job", jobEntityID(j.ID), actorID, payload); err != nil {
		return j, err
	}
	if err := tx.Commit(); err != nil {
		return j, err
	}
	j.Revision++
	e.publish(evtType, "job", jobEntityID(j.ID))
	return j, nil
}

func (e Engine) publish(evtType, entityKind, entityID string) {
	if e.Bus == nil {
		return
	}
	e.Bus.Publish(events.Change{Type: evtType, EntityKind: entityKind, EntityID: entityID})
}

func jobEntityID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
