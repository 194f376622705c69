package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"bookline/internal/domain"
)

const sessionColumns = `id,client_id,region_id,offer_id,date,status,marketplace_visible,setup_ids_json,min_operators,preferred_operators,created_at,updated_at`

func scanSession(scan func(dest ...any) error) (domain.Session, error) {
	var s domain.Session
	var regionID, offerID, setupIDs sql.NullString
	var visible int
	err := scan(&s.ID, &s.ClientID, &regionID, &offerID, &s.Date, &s.Status, &visible,
		&setupIDs, &s.MinOperators, &s.PreferredOperators, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if regionID.Valid {
		s.RegionID = regionID.String
	}
	if offerID.Valid {
		s.OfferID = &offerID.String
	}
	s.MarketplaceVisible = visible != 0
	if setupIDs.Valid && setupIDs.String != "" {
		if err := json.Unmarshal([]byte(setupIDs.String), &s.SetupIDs); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (r Repo) InsertSessionTx(ctx context.Context, tx *sql.Tx, s domain.Session) error {
	setupJSON, err := json.Marshal(s.SetupIDs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO sessions(`+sessionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ClientID, nullable(s.RegionID), nullableStringPtr(s.OfferID), s.Date, s.Status,
		boolToInt(s.MarketplaceVisible), string(setupJSON), s.MinOperators, s.PreferredOperators,
		s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id)
	return scanSession(row.Scan)
}

func (r Repo) GetSessionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Session, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id)
	return scanSession(row.Scan)
}

// UpdateSessionStatusTx persists a status change together with the
// visibility flag; the two fields always move as one business fact.
func (r Repo) UpdateSessionStatusTx(ctx context.Context, tx *sql.Tx, id, status string, visible bool, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET status=?, marketplace_visible=?, updated_at=? WHERE id=?`,
		status, boolToInt(visible), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteSessionTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarketplaceFilters restricts the operator-facing listing. The
// confirmed+visible predicate is fixed; only date/region/paging vary.
type MarketplaceFilters struct {
	DateFrom   string
	RegionID   string
	Limit      int
	CursorDate string
	CursorID   string
}

// ListMarketplaceSessions returns confirmed, visible sessions ordered by
// date ascending with a composite (date,id) cursor.
func (r Repo) ListMarketplaceSessions(ctx context.Context, f MarketplaceFilters) ([]domain.Session, error) {
	clauses := []string{"status=?", "marketplace_visible=1"}
	args := []any{domain.SessionConfirmed}
	if f.DateFrom != "" {
		clauses = append(clauses, "date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.RegionID != "" {
		clauses = append(clauses, "region_id=?")
		args = append(args, f.RegionID)
	}
	if f.CursorDate != "" && f.CursorID != "" {
		clauses = append(clauses, "(date > ? OR (date = ? AND id > ?))")
		args = append(args, f.CursorDate, f.CursorDate, f.CursorID)
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY date ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.querySessions(ctx, query, args...)
}

type SessionFilters struct {
	ClientID        string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListSessions(ctx context.Context, f SessionFilters) ([]domain.Session, error) {
	var clauses []string
	var args []any
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.querySessions(ctx, query, args...)
}

func (r Repo) querySessions(ctx context.Context, query string, args ...any) ([]domain.Session, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
