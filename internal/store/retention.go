package store

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RetentionPolicy bounds each scope's memory collection.
type RetentionPolicy struct {
	Capacity int           // max records per scope; 0 disables capacity eviction
	Floor    float64       // scores below this are swept; 0 disables the sweep
	MinAge   time.Duration // records touched within MinAge are never swept
}

// RunRetention applies the policy to every scope that holds records. Failures
// are logged and skipped so one bad scope cannot stall the rest.
func (s *SQLiteStore) RunRetention(ctx context.Context, pol RetentionPolicy) {
	scopes, err := s.memoryScopes(ctx)
	if err != nil {
		log.Error().Err(err).Msg("retention: list scopes")
		return
	}

	for _, scope := range scopes {
		if pol.Capacity > 0 {
			evicted, err := s.EvictOverCapacity(ctx, scope, pol.Capacity)
			if err != nil {
				log.Error().Err(err).Str("scope", scope).Msg("retention: evict")
			} else if len(evicted) > 0 {
				log.Info().Str("scope", scope).Int("evicted", len(evicted)).Msg("retention: capacity eviction")
			}
		}
		if pol.Floor > 0 {
			n, err := s.SweepBelowFloor(ctx, scope, pol.Floor, pol.MinAge)
			if err != nil {
				log.Error().Err(err).Str("scope", scope).Msg("retention: sweep")
			} else if n > 0 {
				log.Info().Str("scope", scope).Int("swept", n).Msg("retention: floor sweep")
			}
		}
	}
}

func (s *SQLiteStore) memoryScopes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT scope FROM memories ORDER BY scope`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var sc string
		if err := rows.Scan(&sc); err != nil {
			return nil, err
		}
		scopes = append(scopes, sc)
	}
	return scopes, rows.Err()
}
