package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"shiftpost/internal/config"
	"shiftpost/internal/db"
	"shiftpost/internal/domain"
	"shiftpost/internal/migrate"
	"shiftpost/internal/repo"
)

type testEnv struct {
	eng Engine
	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := &testEnv{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	env.eng = New(conn, config.Default())
	env.eng.Now = func() time.Time { return env.now }
	env.eng.Events.Now = env.eng.Now
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
}

func postJob(t *testing.T, env *testEnv, opts JobCreateOptions) domain.Job {
	t.Helper()
	if opts.Site == "" {
		opts.Site = "Marina Bay Tower"
	}
	if opts.Date == "" {
		opts.Date = "2024-03-05"
	}
	if opts.Rank == "" {
		opts.Rank = "SO"
	}
	if opts.StartTime == "" {
		opts.StartTime = "08:00"
	}
	if opts.EndTime == "" {
		opts.EndTime = "16:00"
	}
	if opts.Urgency == "" {
		opts.Urgency = domain.UrgencyNormal
	}
	if opts.OfferPay == 0 {
		opts.OfferPay = 120
	}
	j, err := env.eng.CreateJob(context.Background(), opts)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func TestCreateJobBelowFloor(t *testing.T) {
	env := newTestEnv(t)
	// SO at 12.5/h over 8 hours: floor is 100.
	_, err := env.eng.CreateJob(context.Background(), JobCreateOptions{
		Site: "Harbour Front", Date: "2024-03-05", Rank: "SO",
		StartTime: "08:00", EndTime: "16:00", Urgency: domain.UrgencyNormal,
		OfferPay: 90,
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Minimum != 100 {
		t.Fatalf("minimum = %v, want 100", verr.Minimum)
	}
	if !strings.Contains(verr.Message, "$100.00") {
		t.Fatalf("message %q should cite the floor", verr.Message)
	}
}

func TestCreateJobAtFloor(t *testing.T) {
	env := newTestEnv(t)
	j := postJob(t, env, JobCreateOptions{OfferPay: 100})
	if j.Status != domain.StatusOpen {
		t.Fatalf("status = %s, want %s", j.Status, domain.StatusOpen)
	}
	if j.SuggestedPay != 100 {
		t.Fatalf("suggested pay = %v, want 100", j.SuggestedPay)
	}
	if j.Revision != 1 {
		t.Fatalf("revision = %d, want 1", j.Revision)
	}
}

func TestCreateJobRushFloorIsUnscaled(t *testing.T) {
	env := newTestEnv(t)
	// CSO 20:00-04:00 Rush: suggested 18*8*1.2 = 172.80, floor stays at 144.
	j, err := env.eng.CreateJob(context.Background(), JobCreateOptions{
		Site: "Night Depot", Date: "2024-03-05", Rank: "CSO",
		StartTime: "20:00", EndTime: "04:00", Urgency: domain.UrgencyRush,
		OfferPay: 150,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if j.SuggestedPay != 172.80 {
		t.Fatalf("suggested pay = %v, want 172.80", j.SuggestedPay)
	}
	_, err = env.eng.CreateJob(context.Background(), JobCreateOptions{
		Site: "Night Depot", Date: "2024-03-05", Rank: "CSO",
		StartTime: "20:00", EndTime: "04:00", Urgency: domain.UrgencyRush,
		OfferPay: 143,
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Minimum != 144 {
		t.Fatalf("expected floor 144, got %v", err)
	}
}

func TestCreateJobMissingFields(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.eng.CreateJob(context.Background(), JobCreateOptions{Site: "Harbour Front"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateJobIDsAreUniquePerMillisecond(t *testing.T) {
	env := newTestEnv(t)
	a := postJob(t, env, JobCreateOptions{})
	b := postJob(t, env, JobCreateOptions{})
	if a.ID == b.ID {
		t.Fatalf("ids collide: %d", a.ID)
	}
	if b.ID != a.ID+1 {
		t.Fatalf("second id = %d, want %d", b.ID, a.ID+1)
	}
}

func TestLifecyclePath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := postJob(t, env, JobCreateOptions{})

	j, err := env.eng.Commit(ctx, j.ID, "officer-7")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if j.Status != domain.StatusPending {
		t.Fatalf("status = %s, want %s", j.Status, domain.StatusPending)
	}
	if j.CommitTime == nil || j.CommittedBy == nil || *j.CommittedBy != "officer-7" {
		t.Fatalf("commit metadata missing: %+v", j)
	}

	j, err = env.eng.Accept(ctx, j.ID, "agency-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if j.Status != domain.StatusBooked {
		t.Fatalf("status = %s, want %s", j.Status, domain.StatusBooked)
	}

	j, err = env.eng.Complete(ctx, j.ID, "agency-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if j.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want %s", j.Status, domain.StatusCompleted)
	}

	stored, err := env.eng.Repo.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Revision != 4 {
		t.Fatalf("revision = %d, want 4", stored.Revision)
	}
}

func TestInvalidTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := postJob(t, env, JobCreateOptions{})

	if _, err := env.eng.Accept(ctx, j.ID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("accept on Open: got %v", err)
	}
	if _, err := env.eng.Complete(ctx, j.ID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete on Open: got %v", err)
	}
	if _, err := env.eng.Cancel(ctx, j.ID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel on Open: got %v", err)
	}

	if _, err := env.eng.Commit(ctx, j.ID, "officer-7"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := env.eng.Commit(ctx, j.ID, "officer-8"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double commit: got %v", err)
	}
	if _, err := env.eng.Accept(ctx, j.ID, ""); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.eng.Complete(ctx, j.ID, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := env.eng.Complete(ctx, j.ID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete on Completed: got %v", err)
	}
}

func TestCancelWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := postJob(t, env, JobCreateOptions{})
	if _, err := env.eng.Commit(ctx, j.ID, "officer-7"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	env.advance(10 * time.Minute)
	if _, err := env.eng.Cancel(ctx, j.ID, "officer-7"); !errors.Is(err, ErrCancelWindow) {
		t.Fatalf("cancel at 10m: got %v", err)
	}

	env.advance(20 * time.Minute)
	// Exactly at the boundary the window has not yet elapsed.
	if _, err := env.eng.Cancel(ctx, j.ID, "officer-7"); !errors.Is(err, ErrCancelWindow) {
		t.Fatalf("cancel at 30m: got %v", err)
	}

	env.advance(time.Minute)
	j, err := env.eng.Cancel(ctx, j.ID, "officer-7")
	if err != nil {
		t.Fatalf("cancel at 31m: %v", err)
	}
	if j.Status != domain.StatusOpen {
		t.Fatalf("status = %s, want %s", j.Status, domain.StatusOpen)
	}
	if j.CommitTime != nil || j.CommittedBy != nil {
		t.Fatalf("commit metadata should be cleared: %+v", j)
	}

	// Re-commit restarts the window from the new commit time.
	if _, err := env.eng.Commit(ctx, j.ID, "officer-9"); err != nil {
		t.Fatalf("recommit: %v", err)
	}
	env.advance(10 * time.Minute)
	if _, err := env.eng.Cancel(ctx, j.ID, "officer-9"); !errors.Is(err, ErrCancelWindow) {
		t.Fatalf("cancel after recommit: got %v", err)
	}
}

func TestCancelAvailableAt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := postJob(t, env, JobCreateOptions{})
	if _, ok := env.eng.CancelAvailableAt(j); ok {
		t.Fatal("open job should have no cancel deadline")
	}
	j, err := env.eng.Commit(ctx, j.ID, "officer-7")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	at, ok := env.eng.CancelAvailableAt(j)
	if !ok {
		t.Fatal("pending job should have a cancel deadline")
	}
	if want := env.now.Add(30 * time.Minute); !at.Equal(want) {
		t.Fatalf("deadline = %s, want %s", at, want)
	}
}

func completedJob(t *testing.T, env *testEnv) domain.Job {
	t.Helper()
	ctx := context.Background()
	j := postJob(t, env, JobCreateOptions{})
	var err error
	if j, err = env.eng.Commit(ctx, j.ID, "officer-7"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if j, err = env.eng.Accept(ctx, j.ID, "agency-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if j, err = env.eng.Complete(ctx, j.ID, "agency-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	return j
}

func TestSubmitReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := completedJob(t, env)

	j, err := env.eng.SubmitReview(ctx, j.ID, domain.SideAgency, ReviewOptions{
		Rating: 5, Traits: []string{"Punctual", "Alert"}, Comments: "solid shift", ActorID: "agency-1",
	})
	if err != nil {
		t.Fatalf("agency review: %v", err)
	}
	if j.AgencyReview == nil || j.AgencyReview.Rating != 5 {
		t.Fatalf("agency review not stored: %+v", j.AgencyReview)
	}
	if j.AgencyReview.Timestamp != env.now.UTC().Format(time.RFC3339) {
		t.Fatalf("review timestamp = %s", j.AgencyReview.Timestamp)
	}

	_, err = env.eng.SubmitReview(ctx, j.ID, domain.SideAgency, ReviewOptions{Rating: 4, ActorID: "agency-1"})
	if !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("duplicate agency review: got %v", err)
	}

	// The other side is independent.
	j, err = env.eng.SubmitReview(ctx, j.ID, domain.SideOfficer, ReviewOptions{
		Rating: 4, Traits: []string{"Fair Pay"}, ActorID: "officer-7",
	})
	if err != nil {
		t.Fatalf("officer review: %v", err)
	}
	if j.OfficerReview == nil || j.AgencyReview == nil {
		t.Fatalf("both reviews should be present: %+v", j)
	}
}

func TestSubmitReviewGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := postJob(t, env, JobCreateOptions{})

	if _, err := env.eng.SubmitReview(ctx, j.ID, domain.SideAgency, ReviewOptions{Rating: 5}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("review on Open job: got %v", err)
	}

	j = completedJob(t, env)
	var verr *ValidationError
	if _, err := env.eng.SubmitReview(ctx, j.ID, domain.SideAgency, ReviewOptions{Rating: 0}); !errors.As(err, &verr) {
		t.Fatalf("rating 0: got %v", err)
	}
	if _, err := env.eng.SubmitReview(ctx, j.ID, domain.SideAgency, ReviewOptions{Rating: 6}); !errors.As(err, &verr) {
		t.Fatalf("rating 6: got %v", err)
	}
	if _, err := env.eng.SubmitReview(ctx, j.ID, "vendor", ReviewOptions{Rating: 3}); !errors.As(err, &verr) {
		t.Fatalf("bad side: got %v", err)
	}
	// Trait vocabularies are per side.
	if _, err := env.eng.SubmitReview(ctx, j.ID, domain.SideAgency, ReviewOptions{
		Rating: 3, Traits: []string{"Fair Pay"},
	}); !errors.As(err, &verr) {
		t.Fatalf("officer trait on agency review: got %v", err)
	}
}

func TestDeleteAndResetJobs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := postJob(t, env, JobCreateOptions{})
	postJob(t, env, JobCreateOptions{Site: "Second Site"})

	if err := env.eng.DeleteJob(ctx, a.ID, "admin"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.eng.DeleteJob(ctx, a.ID, "admin"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("double delete: got %v", err)
	}
	jobs, err := env.eng.Repo.ListJobs(ctx, repo.JobFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(jobs))
	}

	removed, err := env.eng.ResetJobs(ctx, "admin")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
}

func TestStaleRevisionConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := postJob(t, env, JobCreateOptions{})

	stale, err := env.eng.Repo.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := env.eng.Commit(ctx, j.ID, "officer-7"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx, err := env.eng.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	stale.Status = domain.StatusBooked
	if err := env.eng.Repo.UpdateJob(ctx, tx, stale); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("stale update: got %v", err)
	}
}

func TestAccountRegistration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.eng.RegisterAccount(ctx, AccountCreateOptions{
		Kind: domain.AccountAgency, Name: "Sentinel Security", Contact: "ops@sentinel.test",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if a.Status != domain.AccountPending {
		t.Fatalf("status = %s, want %s", a.Status, domain.AccountPending)
	}

	a, err = env.eng.ValidateAccount(ctx, a.ID, "admin")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if a.Status != domain.AccountVerified || a.ValidatedAt == nil {
		t.Fatalf("account not verified: %+v", a)
	}
	if _, err := env.eng.ValidateAccount(ctx, a.ID, "admin"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("revalidate: got %v", err)
	}
	if err := env.eng.RejectAccount(ctx, a.ID, "admin"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reject verified: got %v", err)
	}

	b, err := env.eng.RegisterAccount(ctx, AccountCreateOptions{Kind: domain.AccountOfficer, Name: "Lee Wei"})
	if err != nil {
		t.Fatalf("register officer: %v", err)
	}
	if err := env.eng.RejectAccount(ctx, b.ID, "admin"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := env.eng.Repo.GetAccount(ctx, b.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("rejected account still present: %v", err)
	}

	var verr *ValidationError
	if _, err := env.eng.RegisterAccount(ctx, AccountCreateOptions{Kind: "vendor", Name: "X"}); !errors.As(err, &verr) {
		t.Fatalf("bad kind: got %v", err)
	}
}

func TestEventsLogged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := postJob(t, env, JobCreateOptions{})
	if _, err := env.eng.Commit(ctx, j.ID, "officer-7"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	events, err := env.eng.Repo.LatestEvents(ctx, 10, "", "", "")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Type != "job.committed" || events[1].Type != "job.created" {
		t.Fatalf("event order: %s, %s", events[0].Type, events[1].Type)
	}
	if events[0].ActorID != "officer-7" {
		t.Fatalf("actor = %q, want officer-7", events[0].ActorID)
	}

	after, err := env.eng.Repo.EventsAfter(ctx, 10, events[1].ID)
	if err != nil {
		t.Fatalf("events after: %v", err)
	}
	if len(after) != 1 || after[0].Type != "job.committed" {
		t.Fatalf("cursor read: %+v", after)
	}
}

func TestBusPublishesCommittedWrites(t *testing.T) {
	env := newTestEnv(t)
	ch, cancel := env.eng.Bus.Subscribe(4)
	defer cancel()

	postJob(t, env, JobCreateOptions{})

	select {
	case c := <-ch:
		if c.Type != "job.created" || c.EntityKind != "job" {
			t.Fatalf("change = %+v", c)
		}
	default:
		t.Fatal("no change published")
	}
}
