package memory

import (
	"context"
	"sort"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

type outboxRepository struct {
	repositories
}

func (r *outboxRepository) Create(_ context.Context, entry *models.OutboxEntry) error {
	return r.with(func(s *state) error {
		if _, ok := s.runs[entry.RunID]; !ok {
			return persistence.NewRunError("CreateOutboxEntry", entry.RunID, persistence.ErrRunNotFound)
		}

		stored := *entry
		s.outbox[entry.ID] = &stored
		s.nextSeq++
		s.seq[entry.ID] = s.nextSeq

		return nil
	})
}

func (r *outboxRepository) Pending(_ context.Context, limit int) ([]*models.OutboxEntry, error) {
	var entries []*models.OutboxEntry

	err := r.with(func(s *state) error {
		for _, entry := range s.outbox {
			copied := *entry
			entries = append(entries, &copied)
		}

		sort.Slice(entries, func(i, j int) bool {
			if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
				return entries[i].CreatedAt.Before(entries[j].CreatedAt)
			}

			return s.seq[entries[i].ID] < s.seq[entries[j].ID]
		})

		return nil
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, err
}

func (r *outboxRepository) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	var deleted int64

	err := r.with(func(s *state) error {
		for _, id := range ids {
			if _, ok := s.outbox[id]; ok {
				delete(s.outbox, id)
				delete(s.seq, id)
				deleted++
			}
		}

		return nil
	})

	return deleted, err
}

func (r *outboxRepository) DeleteByWorkflow(_ context.Context, workflowID string) (int64, error) {
	var deleted int64

	err := r.with(func(s *state) error {
		for id, entry := range s.outbox {
			if run, ok := s.runs[entry.RunID]; ok && run.WorkflowID == workflowID {
				delete(s.outbox, id)
				delete(s.seq, id)
				deleted++
			}
		}

		return nil
	})

	return deleted, err
}
