package repo

import (
	"context"
	"database/sql"

	"bookline/internal/domain"
)

const offerColumns = `id,client_id,type,nb_sessions,sessions_consumed,created_at`

func scanOffer(scan func(dest ...any) error) (domain.Offer, error) {
	var o domain.Offer
	err := scan(&o.ID, &o.ClientID, &o.Type, &o.NbSessions, &o.SessionsConsumed, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) InsertOffer(ctx context.Context, o domain.Offer) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO offers(`+offerColumns+`) VALUES (?,?,?,?,?,?)`,
		o.ID, o.ClientID, o.Type, o.NbSessions, o.SessionsConsumed, o.CreatedAt)
	return err
}

func (r Repo) InsertOfferTx(ctx context.Context, tx *sql.Tx, o domain.Offer) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO offers(`+offerColumns+`) VALUES (?,?,?,?,?,?)`,
		o.ID, o.ClientID, o.Type, o.NbSessions, o.SessionsConsumed, o.CreatedAt)
	return err
}

func (r Repo) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id=?`, id)
	return scanOffer(row.Scan)
}

func (r Repo) GetOfferTx(ctx context.Context, tx *sql.Tx, id string) (domain.Offer, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id=?`, id)
	return scanOffer(row.Scan)
}

// ConsumeCreditTx increments the consumed counter, clamped to capacity.
func (r Repo) ConsumeCreditTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE offers SET sessions_consumed = min(sessions_consumed+1, nb_sessions) WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RollbackCreditTx decrements the consumed counter, clamped at zero.
func (r Repo) RollbackCreditTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE offers SET sessions_consumed = max(sessions_consumed-1, 0) WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListOffers(ctx context.Context, clientID string) ([]domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers`
	var args []any
	if clientID != "" {
		query += ` WHERE client_id=?`
		args = append(args, clientID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
