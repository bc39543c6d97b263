package webapi

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cognitive_backend/aggregator"
	"cognitive_backend/db"
)

// RunSignalFeed subscribes to the aggregator and broadcasts every captured
// signal as a signal_captured message until ctx is cancelled. Without a
// broadcaster it returns immediately.
func (s *Server) RunSignalFeed(ctx context.Context) {
	if s.deps.Broadcaster == nil {
		return
	}
	events, cancel := s.deps.Aggregator.Subscribe(0)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.deps.Broadcaster.Broadcast(NewWSMessage(MessageTypeSignalCaptured, ev.Signal.Timestamp, ev))
		}
	}
}

func (s *Server) classify(snap aggregator.Snapshot) ClassificationData {
	return ClassificationData{
		SubjectID:      snap.SubjectID,
		SessionID:      snap.SessionID,
		State:          snap.State,
		Classification: s.deps.Scorer.Classify(snap.State),
	}
}

// AfterSweep is the IdleSweeper hook: it scores every swept subject, counts
// and persists the classification, and broadcasts it.
func (s *Server) AfterSweep(ctx context.Context, snapshots []aggregator.Snapshot) {
	now := s.now().UTC()
	for _, snap := range snapshots {
		data := s.classify(snap)
		s.deps.Metrics.RecordClassification()

		if s.deps.Store != nil {
			_, err := s.deps.Store.InsertClassification(ctx, classificationRecord(data, now))
			if err != nil {
				s.log.Error("Failed to persist classification",
					zap.String("subject_id", snap.SubjectID),
					zap.Error(err))
			}
		}
		if s.deps.Broadcaster != nil {
			s.deps.Broadcaster.Broadcast(NewWSMessage(MessageTypeClassification, now, data))
		}
	}
	s.refreshSubjects()
}

func classificationRecord(data ClassificationData, at time.Time) db.ClassificationRecord {
	return db.ClassificationRecord{
		SubjectID:     data.SubjectID,
		SessionID:     data.SessionID,
		ActivityScore: data.Classification.ActivityScore,
		Productivity:  data.Classification.Productivity,
		Risk:          data.Classification.Risk,
		RiskScore:     data.Classification.RiskScore,
		IsIdle:        data.State.IsIdle,
		IdleMs:        data.State.IdleTimeMs,
		CreatedAt:     at,
	}
}
