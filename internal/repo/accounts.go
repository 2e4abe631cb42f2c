package repo

import (
	"context"
	"database/sql"
	"strings"

	"shiftpost/internal/domain"
)

func (r Repo) InsertAccount(ctx context.Context, tx *sql.Tx, a domain.Account) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO accounts(id,kind,name,contact,status,created_at,validated_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.Kind, a.Name, nullable(a.Contact), a.Status, a.CreatedAt, nullableStringPtr(a.ValidatedAt))
	return err
}

func (r Repo) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	var a domain.Account
	var contact, validatedAt sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,kind,name,contact,status,created_at,validated_at FROM accounts WHERE id=?`, id).
		Scan(&a.ID, &a.Kind, &a.Name, &contact, &a.Status, &a.CreatedAt, &validatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if contact.Valid {
		a.Contact = contact.String
	}
	if validatedAt.Valid {
		a.ValidatedAt = &validatedAt.String
	}
	return a, nil
}

type AccountFilters struct {
	Kind   string
	Status string
}

func (r Repo) ListAccounts(ctx context.Context, f AccountFilters) ([]domain.Account, error) {
	var clauses []string
	var args []any
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,kind,name,contact,status,created_at,validated_at FROM accounts `+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Account
	for rows.Next() {
		var a domain.Account
		var contact, validatedAt sql.NullString
		if err := rows.Scan(&a.ID, &a.Kind, &a.Name, &contact, &a.Status, &a.CreatedAt, &validatedAt); err != nil {
			return nil, err
		}
		if contact.Valid {
			a.Contact = contact.String
		}
		if validatedAt.Valid {
			a.ValidatedAt = &validatedAt.String
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// MarkAccountVerified flips a pending account to verified. Returns
// ErrNotFound for unknown ids and ErrConflict when already verified.
func (r Repo) MarkAccountVerified(ctx context.Context, tx *sql.Tx, id, validatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE accounts SET status=?, validated_at=? WHERE id=? AND status=?`,
		domain.AccountVerified, validatedAt, id, domain.AccountPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id=?`, id).Scan(&one)
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

func (r Repo) DeleteAccount(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountAccounts reports account totals grouped by kind and status.
func (r Repo) CountAccounts(ctx context.Context) (map[string]map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT kind, status, count(*) FROM accounts GROUP BY kind, status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]map[string]int{}
	for rows.Next() {
		var kind, status string
		var count int
		if err := rows.Scan(&kind, &status, &count); err != nil {
			return nil, err
		}
		if res[kind] == nil {
			res[kind] = map[string]int{}
		}
		res[kind][status] = count
	}
	return res, rows.Err()
}
