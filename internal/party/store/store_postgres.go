package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/models"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists parties as JSONB documents with a separate token
// table whose primary key enforces global (token, encoding) uniqueness.
// Tokens are indexed by digest only.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, party *models.RemoteParty) error {
	doc, err := json.Marshal(party)
	if err != nil {
		return fmt.Errorf("marshal party: %w", err)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO remote_parties (country_code, party_id, role, status, document, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, party.Key.CountryCode.String(), party.Key.PartyID.String(), party.Key.Role.String(),
			string(party.Status), doc, party.CreatedAt, party.UpdatedAt)
		if err != nil {
			return translate(err, "insert party "+party.Key.String())
		}
		return insertTokens(ctx, tx, party)
	})
}

func (s *PostgresStore) FindByKey(ctx context.Context, key domain.PartyKey) (*models.RemoteParty, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT document FROM remote_parties
		WHERE country_code = $1 AND party_id = $2 AND role = $3
	`, key.CountryCode.String(), key.PartyID.String(), key.Role.String())
	return scanParty(row, "party "+key.String())
}

func (s *PostgresStore) FindByToken(ctx context.Context, tk models.TokenKey) (*models.RemoteParty, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT p.document
		FROM party_access_tokens t
		JOIN remote_parties p
		  ON p.country_code = t.country_code AND p.party_id = t.party_id AND p.role = t.role
		WHERE t.token_digest = $1 AND t.base64 = $2
	`, tk.Token.Digest(), tk.Base64)
	return scanParty(row, "token "+tk.String())
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.RemoteParty, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document FROM remote_parties
		ORDER BY country_code, party_id, role
	`)
	if err != nil {
		return nil, fmt.Errorf("list parties: %w", err)
	}
	defer rows.Close()

	var out []*models.RemoteParty
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		var p models.RemoteParty
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("decode party: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Execute locks the party row, applies fn and rewrites the document and its
// token rows in one transaction.
func (s *PostgresStore) Execute(ctx context.Context, key domain.PartyKey, fn func(*models.RemoteParty) error) (*models.RemoteParty, error) {
	var result *models.RemoteParty
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT document FROM remote_parties
			WHERE country_code = $1 AND party_id = $2 AND role = $3
			FOR UPDATE
		`, key.CountryCode.String(), key.PartyID.String(), key.Role.String())
		party, err := scanParty(row, "party "+key.String())
		if err != nil {
			return err
		}
		if err := fn(party); err != nil {
			return err
		}
		if party.Key != key {
			return fmt.Errorf("party key changed from %s to %s: %w", key, party.Key, sentinel.ErrInvalidState)
		}
		doc, err := json.Marshal(party)
		if err != nil {
			return fmt.Errorf("marshal party: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE remote_parties SET status = $4, document = $5, updated_at = $6
			WHERE country_code = $1 AND party_id = $2 AND role = $3
		`, key.CountryCode.String(), key.PartyID.String(), key.Role.String(),
			string(party.Status), doc, party.UpdatedAt); err != nil {
			return fmt.Errorf("update party: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM party_access_tokens
			WHERE country_code = $1 AND party_id = $2 AND role = $3
		`, key.CountryCode.String(), key.PartyID.String(), key.Role.String()); err != nil {
			return fmt.Errorf("clear party tokens: %w", err)
		}
		if err := insertTokens(ctx, tx, party); err != nil {
			return err
		}
		result = party
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func insertTokens(ctx context.Context, tx pgx.Tx, party *models.RemoteParty) error {
	batch := &pgx.Batch{}
	for _, tk := range party.TokenKeys() {
		batch.Queue(`
			INSERT INTO party_access_tokens (token_digest, base64, country_code, party_id, role)
			VALUES ($1, $2, $3, $4, $5)
		`, tk.Token.Digest(), tk.Base64,
			party.Key.CountryCode.String(), party.Key.PartyID.String(), party.Key.Role.String())
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return translate(err, "insert tokens for "+party.Key.String())
	}
	return nil
}

func scanParty(row pgx.Row, what string) (*models.RemoteParty, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("load %s: %w", what, err)
	}
	var p models.RemoteParty
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return &p, nil
}

func translate(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}
