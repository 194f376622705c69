package repo

import (
	"context"
	"database/sql"

	"bookline/internal/domain"
)

const applicationColumns = `id,session_id,operator_id,status,applied_at,accepted_at,rejected_at`

func scanApplication(scan func(dest ...any) error) (domain.OperatorApplication, error) {
	var a domain.OperatorApplication
	var acceptedAt, rejectedAt sql.NullString
	err := scan(&a.ID, &a.SessionID, &a.OperatorID, &a.Status, &a.AppliedAt, &acceptedAt, &rejectedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if acceptedAt.Valid {
		a.AcceptedAt = &acceptedAt.String
	}
	if rejectedAt.Valid {
		a.RejectedAt = &rejectedAt.String
	}
	return a, nil
}

func (r Repo) InsertApplicationTx(ctx context.Context, tx *sql.Tx, a domain.OperatorApplication) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO session_operators(`+applicationColumns+`) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.SessionID, a.OperatorID, a.Status, a.AppliedAt,
		nullableStringPtr(a.AcceptedAt), nullableStringPtr(a.RejectedAt))
	return err
}

// GetApplication looks up the single row for a (session, operator) pair.
func (r Repo) GetApplication(ctx context.Context, sessionID, operatorID string) (domain.OperatorApplication, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM session_operators WHERE session_id=? AND operator_id=?`,
		sessionID, operatorID)
	return scanApplication(row.Scan)
}

func (r Repo) GetApplicationTx(ctx context.Context, tx *sql.Tx, sessionID, operatorID string) (domain.OperatorApplication, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM session_operators WHERE session_id=? AND operator_id=?`,
		sessionID, operatorID)
	return scanApplication(row.Scan)
}

// UpdateApplicationDecisionTx moves an application out of pending,
// stamping the matching decision timestamp.
func (r Repo) UpdateApplicationDecisionTx(ctx context.Context, tx *sql.Tx, id, status string, decidedAt string) error {
	var res sql.Result
	var err error
	switch status {
	case domain.ApplicationAccepted:
		res, err = tx.ExecContext(ctx, `UPDATE session_operators SET status=?, accepted_at=? WHERE id=?`, status, decidedAt, id)
	case domain.ApplicationRejected:
		res, err = tx.ExecContext(ctx, `UPDATE session_operators SET status=?, rejected_at=? WHERE id=?`, status, decidedAt, id)
	default:
		res, err = tx.ExecContext(ctx, `UPDATE session_operators SET status=? WHERE id=?`, status, id)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListApplicationsBySession(ctx context.Context, sessionID string) ([]domain.OperatorApplication, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+applicationColumns+` FROM session_operators WHERE session_id=? ORDER BY applied_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OperatorApplication
	for rows.Next() {
		a, err := scanApplication(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountApplications returns the number of application rows for a session,
// optionally restricted to one status.
func (r Repo) CountApplications(ctx context.Context, sessionID, status string) (int, error) {
	query := `SELECT count(*) FROM session_operators WHERE session_id=?`
	args := []any{sessionID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	var n int
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
