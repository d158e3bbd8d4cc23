package postgres

import (
	"context"
	"errors"

	"dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// TerritoryRepo resolves operator territories using pgx and plain SQL.
type TerritoryRepo struct{}

// NewTerritoryRepo constructs a new TerritoryRepo.
func NewTerritoryRepo() ports.TerritoryRepository {
	return &TerritoryRepo{}
}

// ResolveOperator returns the operator whose territory circle contains the
// point. When circles overlap the one whose center is nearest wins. Returns ""
// when no territory matches, meaning the job goes to the open market.
func (repo *TerritoryRepo) ResolveOperator(ctx context.Context, lat, lng float64) (string, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return "", err
	}

	var operatorID string
	err = tx.QueryRow(ctx, `
		SELECT operator_id
		FROM territories,
		     LATERAL (
		         SELECT 6371 * 2 * asin(sqrt(
		             power(sin(radians(center_lat - $1) / 2), 2) +
		             cos(radians($1)) * cos(radians(center_lat)) *
		             power(sin(radians(center_lng - $2) / 2), 2)
		         )) AS distance_km
		     ) d
		WHERE active
		  AND d.distance_km <= radius_km
		ORDER BY d.distance_km ASC
		LIMIT 1
	`, lat, lng).Scan(&operatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}

	return operatorID, nil
}
