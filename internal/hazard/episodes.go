package hazard

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// BuildResult is the output of one episode-building run over a record
// corpus. Episodes are pooled across entities; Insufficient lists entities
// that produced no episodes (single observation, or an immediate absorbing
// state), which is reported rather than treated as fatal.
type BuildResult struct {
	Episodes     []TransitionEpisode `json:"episodes"`
	Insufficient []string            `json:"insufficient_entities,omitempty"`
	Entities     int                 `json:"n_entities"`
}

// BuildEpisodes converts raw state-history records into time-to-event
// episodes, pooled across entities. Records are grouped by entity; each
// entity's records must have strictly increasing observation dates, or the
// whole build fails with MalformedHistoryError.
//
// An episode opens at the first record and closes at the next record whose
// grade differs from the open entry grade; consecutive same-grade records
// extend the open episode. An entity whose history ends without a further
// state change yields a final censored episode at its last observed date.
// Covariates are fixed at episode entry; intra-episode snapshots do not
// update an open episode (piecewise-constant covariate process).
func BuildEpisodes(ctx context.Context, records []StateHistoryRecord, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	byEntity := make(map[string][]StateHistoryRecord)
	var order []string
	for _, r := range records {
		if _, seen := byEntity[r.EntityID]; !seen {
			order = append(order, r.EntityID)
		}
		byEntity[r.EntityID] = append(byEntity[r.EntityID], r)
	}
	// Deterministic pooling order regardless of input interleaving
	sort.Strings(order)

	result := &BuildResult{Entities: len(order)}

	for _, id := range order {
		episodes, err := buildEntityEpisodes(id, byEntity[id])
		if err != nil {
			return nil, err
		}
		if len(episodes) == 0 {
			result.Insufficient = append(result.Insufficient, id)
			logger.DebugContext(ctx, "entity produced no episodes",
				"entity_id", id,
				"records", len(byEntity[id]),
			)
			continue
		}
		result.Episodes = append(result.Episodes, episodes...)
	}

	logger.InfoContext(ctx, "built transition episodes",
		"entities", result.Entities,
		"episodes", len(result.Episodes),
		"insufficient", len(result.Insufficient),
	)
	return result, nil
}

// buildEntityEpisodes walks one entity's chronological records
func buildEntityEpisodes(entityID string, records []StateHistoryRecord) ([]TransitionEpisode, error) {
	if err := validateHistory(entityID, records); err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	var episodes []TransitionEpisode

	// Open the first episode unless the entity is already absorbed
	entry := records[0]
	if entry.Grade.IsAbsorbing() {
		return nil, nil
	}

	for i := 1; i < len(records); i++ {
		cur := records[i]
		if cur.Grade == entry.Grade {
			// Same state: the open episode extends; a final same-state
			// record censors it at that date.
			if i == len(records)-1 {
				episodes = append(episodes, newEpisode(entry, cur.Date, ExitCensored))
			}
			continue
		}

		episodes = append(episodes, newEpisode(entry, cur.Date, ExitEventFor(entry.Grade, cur.Grade)))

		if cur.Grade.IsAbsorbing() {
			// Absorbing states end the episode sequence; later records
			// (if any) carry no further transitions.
			return episodes, nil
		}
		// The next episode opens exactly where this one closed. A
		// transition observed at the very last record opens a tail with
		// zero elapsed time, which cannot form a valid episode.
		entry = cur
	}

	return episodes, nil
}

// newEpisode closes an episode opened at entry. Covariates are copied so
// the episode stays immutable if the caller reuses the snapshot map.
func newEpisode(entry StateHistoryRecord, exitDate time.Time, exit ExitEvent) TransitionEpisode {
	covs := make(map[string]float64, len(entry.Covariates))
	for k, v := range entry.Covariates {
		covs[k] = v
	}
	return TransitionEpisode{
		EntityID:   entry.EntityID,
		EntryDate:  entry.Date,
		ExitDate:   exitDate,
		EntryGrade: entry.Grade,
		Exit:       exit,
		Covariates: covs,
	}
}

// validateHistory enforces strictly increasing observation dates
func validateHistory(entityID string, records []StateHistoryRecord) error {
	for i := 1; i < len(records); i++ {
		prev, cur := records[i-1], records[i]
		if cur.Date.Equal(prev.Date) {
			return &MalformedHistoryError{
				EntityID: entityID,
				Index:    i,
				Date:     cur.Date,
				Reason:   "duplicate observation date",
			}
		}
		if cur.Date.Before(prev.Date) {
			return &MalformedHistoryError{
				EntityID: entityID,
				Index:    i,
				Date:     cur.Date,
				Reason:   "observation dates out of order",
			}
		}
	}
	return nil
}
