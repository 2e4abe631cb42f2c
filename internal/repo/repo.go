package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"shiftpost/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a stale revision on update: another writer got
	// there first and the caller should re-read before retrying.
	ErrConflict = errors.New("revision conflict")
)

const jobColumns = `id,site,site_type,date,rank,start_time,end_time,urgency,suggested_pay,offer_pay,status,committed_by,commit_time,agency_review_json,officer_review_json,revision,created_at`

type jobScanner interface {
	Scan(dest ...any) error
}

func scanJob(row jobScanner) (domain.Job, error) {
	var j domain.Job
	var committedBy, commitTime, agencyReview, officerReview sql.NullString
	err := row.Scan(&j.ID, &j.Site, &j.SiteType, &j.Date, &j.Rank, &j.StartTime, &j.EndTime,
		&j.Urgency, &j.SuggestedPay, &j.OfferPay, &j.Status, &committedBy, &commitTime,
		&agencyReview, &officerReview, &j.Revision, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	if committedBy.Valid {
		j.CommittedBy = &committedBy.String
	}
	if commitTime.Valid {
		j.CommitTime = &commitTime.String
	}
	if agencyReview.Valid {
		j.AgencyReview, err = unmarshalReview(agencyReview.String)
		if err != nil {
			return j, fmt.Errorf("job %d agency review: %w", j.ID, err)
		}
	}
	if officerReview.Valid {
		j.OfficerReview, err = unmarshalReview(officerReview.String)
		if err != nil {
			return j, fmt.Errorf("job %d officer review: %w", j.ID, err)
		}
	}
	return j, nil
}

func unmarshalReview(raw string) (*domain.Review, error) {
	var r domain.Review
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func marshalReview(r *domain.Review) (any, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r Repo) InsertJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	agencyReview, err := marshalReview(j.AgencyReview)
	if err != nil {
		return err
	}
	officerReview, err := marshalReview(j.OfficerReview)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO jobs(`+jobColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.Site, j.SiteType, j.Date, j.Rank, j.StartTime, j.EndTime, j.Urgency,
		j.SuggestedPay, j.OfferPay, j.Status, nullableStringPtr(j.CommittedBy), nullableStringPtr(j.CommitTime),
		agencyReview, officerReview, j.Revision, j.CreatedAt)
	return err
}

// UpdateJob writes a job back using its read revision as a guard. The row's
// revision is bumped; a stale revision yields ErrConflict.
func (r Repo) UpdateJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	agencyReview, err := marshalReview(j.AgencyReview)
	if err != nil {
		return err
	}
	officerReview, err := marshalReview(j.OfficerReview)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE jobs SET status=?, committed_by=?, commit_time=?, agency_review_json=?, officer_review_json=?, revision=revision+1
WHERE id=? AND revision=?`,
		j.Status, nullableStringPtr(j.CommittedBy), nullableStringPtr(j.CommitTime),
		agencyReview, officerReview, j.ID, j.Revision)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id=?`, j.ID).Scan(&one)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (r Repo) GetJob(ctx context.Context, id int64) (domain.Job, error) {
	return scanJob(r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id))
}

func (r Repo) GetJobTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Job, error) {
	return scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id))
}

func (r Repo) JobExists(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type JobFilters struct {
	Status string
	Rank   string
	Limit  int
}

// ListJobs returns jobs in insertion order (ids are creation-millis).
func (r Repo) ListJobs(ctx context.Context, f JobFilters) ([]domain.Job, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Rank != "" {
		clauses = append(clauses, "rank=?")
		args = append(args, f.Rank)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + jobColumns + ` FROM jobs ` + where + ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

func (r Repo) DeleteJob(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetJobs clears the collection and reports how many jobs were removed.
func (r Repo) ResetJobs(ctx context.Context, tx *sql.Tx) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r Repo) CountJobsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
