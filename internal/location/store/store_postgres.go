package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/location/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/sentinel"
)

// PostgresStore keeps each connector as a JSONB document keyed by its URL
// segments. last_updated is duplicated into a column for range queries.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, key models.Key) (*models.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT document, etag FROM connectors
		WHERE country_code = $1 AND party_id = $2 AND location_id = $3 AND evse_uid = $4 AND connector_id = $5
	`, keyArgs(key)...)
	return scanRecord(row, key)
}

func (s *PostgresStore) Put(ctx context.Context, rec models.Record) (bool, error) {
	doc, err := json.Marshal(rec.Connector)
	if err != nil {
		return false, fmt.Errorf("marshal connector: %w", err)
	}
	args := append(keyArgs(rec.Key), doc, rec.ETag, rec.Connector.LastUpdated.Time)

	// xmax is zero only for rows created by this statement.
	var inserted bool
	err = s.pool.QueryRow(ctx, `
		INSERT INTO connectors (country_code, party_id, location_id, evse_uid, connector_id, document, etag, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (country_code, party_id, location_id, evse_uid, connector_id)
		DO UPDATE SET document = EXCLUDED.document, etag = EXCLUDED.etag, last_updated = EXCLUDED.last_updated
		RETURNING (xmax = 0)
	`, args...).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert connector %s: %w", rec.Key, err)
	}
	return inserted, nil
}

// Execute locks the row, applies fn and writes the result back in one
// transaction.
func (s *PostgresStore) Execute(ctx context.Context, key models.Key, fn func(*models.Record) error) (*models.Record, error) {
	var result *models.Record
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT document, etag FROM connectors
			WHERE country_code = $1 AND party_id = $2 AND location_id = $3 AND evse_uid = $4 AND connector_id = $5
			FOR UPDATE
		`, keyArgs(key)...)
		rec, err := scanRecord(row, key)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		if rec.Key != key {
			return fmt.Errorf("connector key changed from %s to %s: %w", key, rec.Key, sentinel.ErrInvalidState)
		}
		doc, err := json.Marshal(rec.Connector)
		if err != nil {
			return fmt.Errorf("marshal connector: %w", err)
		}
		args := append(keyArgs(key), doc, rec.ETag, rec.Connector.LastUpdated.Time)
		if _, err := tx.Exec(ctx, `
			UPDATE connectors SET document = $6, etag = $7, last_updated = $8
			WHERE country_code = $1 AND party_id = $2 AND location_id = $3 AND evse_uid = $4 AND connector_id = $5
		`, args...); err != nil {
			return fmt.Errorf("update connector %s: %w", key, err)
		}
		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) List(ctx context.Context, q Query) ([]models.Record, int, error) {
	where := `country_code = $1 AND party_id = $2
		AND ($3::timestamptz IS NULL OR last_updated >= $3)
		AND ($4::timestamptz IS NULL OR last_updated < $4)`
	args := []any{q.Owner.CountryCode.String(), q.Owner.PartyID.String(), q.From, q.To}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM connectors WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count connectors: %w", err)
	}

	limit := any(nil)
	if q.Limit > 0 {
		limit = q.Limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT country_code, party_id, location_id, evse_uid, connector_id, document, etag
		FROM connectors WHERE `+where+`
		ORDER BY last_updated, location_id, evse_uid, connector_id
		OFFSET $5 LIMIT $6
	`, append(args, q.Offset, limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list connectors: %w", err)
	}
	defer rows.Close()

	out := make([]models.Record, 0)
	for rows.Next() {
		var (
			cc, pid, loc, evse, conn string
			doc                      []byte
			rec                      models.Record
		)
		if err := rows.Scan(&cc, &pid, &loc, &evse, &conn, &doc, &rec.ETag); err != nil {
			return nil, 0, fmt.Errorf("scan connector: %w", err)
		}
		if rec.Key, err = models.ParseKey(cc, pid, loc, evse, conn); err != nil {
			return nil, 0, fmt.Errorf("stored connector key: %w", err)
		}
		if err := json.Unmarshal(doc, &rec.Connector); err != nil {
			return nil, 0, fmt.Errorf("decode connector %s: %w", rec.Key, err)
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func keyArgs(key models.Key) []any {
	return []any{
		key.Owner.CountryCode.String(),
		key.Owner.PartyID.String(),
		key.LocationID.String(),
		key.EVSEUID.String(),
		key.ConnectorID.String(),
	}
}

func scanRecord(row pgx.Row, key models.Key) (*models.Record, error) {
	var (
		doc []byte
		rec = models.Record{Key: key}
	)
	if err := row.Scan(&doc, &rec.ETag); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("connector %s: %w", key, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("load connector %s: %w", key, err)
	}
	if err := json.Unmarshal(doc, &rec.Connector); err != nil {
		return nil, fmt.Errorf("decode connector %s: %w", key, err)
	}
	return &rec, nil
}
