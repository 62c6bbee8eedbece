// Package scheduler routes jobs to workers while enforcing session affinity.
//
// All jobs belonging to one stateful voice session land on the same worker,
// across worker crashes and pool churn. The affinity binding is the single
// compare-and-set resource; losing the acquisition race converts into a
// no-op join, never a failure, because near-simultaneous command bursts for
// the same voice channel are expected.
package scheduler

import (
	"context"
	"time"

	"go.anankor.net/dispatch/pkg/job"
	"go.anankor.net/dispatch/pkg/session"
	"go.anankor.net/dispatch/pkg/stream"
	"go.anankor.net/dispatch/pkg/workerpool"
	"go.uber.org/zap"
)

// DefaultGuildCap is the default maximum of concurrent sessions per guild.
const DefaultGuildCap = 5

// Notifier posts a best-effort crash notice to a session's text channel.
// Delivery failure must never abort session recovery.
type Notifier interface {
	NotifySessionCrash(ctx context.Context, meta *session.Metadata) error
}

// Scheduler resolves the owning worker for incoming jobs and republishes
// them onto the correct stream.
type Scheduler struct {
	// Required components
	Sessions *session.Store
	Pool     *workerpool.Registry
	Streams  *stream.Client
	Log      *zap.Logger
	// Optional components
	Notifier Notifier
	// Required config
	GuildCap  int
	Group     string // shared consumer group
	JobStream string // global stream name, base of per-worker streams
}

type binding struct {
	SessionKey string
	WorkerID   string
	Meta       *session.Metadata
	IsNew      bool
}

// TrySchedule routes one job. Jobs outside the stateful-session family are
// declined (handled=false) so default routing can process them. The returned
// entry id identifies the republished stream entry.
func (s *Scheduler) TrySchedule(ctx context.Context, jb job.Job) (entryID string, handled bool, err error) {
	switch j := jb.(type) {
	case *job.MusicPlay:
		return s.scheduleStart(ctx, j, j.Query)
	case *job.MusicFavoritePlay:
		return s.scheduleStart(ctx, j, j.Name)
	case *job.MusicPlaylistPlay:
		return s.scheduleStart(ctx, j, j.Name)
	case *job.RadioStart:
		return s.scheduleStart(ctx, j, j.Genre)
	case *job.MusicPause:
		return s.scheduleControl(ctx, j)
	case *job.MusicResume:
		return s.scheduleControl(ctx, j)
	case *job.MusicSkip:
		return s.scheduleControl(ctx, j)
	case *job.MusicStop:
		return s.scheduleControl(ctx, j)
	case *job.MusicQueue:
		return s.scheduleControl(ctx, j)
	case *job.MusicVolume:
		return s.scheduleControl(ctx, j)
	case *job.RadioStop:
		return s.scheduleControl(ctx, j)
	default:
		return "", false, nil
	}
}

// scheduleStart ensures a session (creating one if needed), appends the work
// to the session queue and republishes onto the owning worker's stream.
func (s *Scheduler) scheduleStart(ctx context.Context, j job.GuildJob, query string) (string, bool, error) {
	g := j.Guild()
	b, err := s.ensureSession(ctx, g, true)
	if err != nil {
		return "", true, s.countFailure(err)
	}
	now := time.Now()
	entry := &session.Entry{
		ID:            g.ID,
		Query:         query,
		UserID:        g.Requester.UserID,
		Username:      g.Requester.Username,
		TextChannelID: g.TextChannelID,
		Locale:        g.Locale,
		Source:        string(g.Source),
		EnqueuedAt:    now,
	}
	length, err := s.Sessions.AppendEntry(ctx, b.SessionKey, entry)
	if err != nil {
		return "", true, err
	}
	if err := s.Sessions.Touch(ctx, b.SessionKey); err != nil {
		return "", true, err
	}
	// Responses follow the channel the latest start command came from.
	b.Meta.TextChannelID = g.TextChannelID
	if g.Locale != "" {
		b.Meta.Locale = g.Locale
	}
	b.Meta.LastActive = now
	if err := s.Sessions.SetMetadata(ctx, b.Meta); err != nil {
		return "", true, err
	}
	if length == 1 {
		if err := s.Sessions.SetCurrentEntry(ctx, b.SessionKey, entry); err != nil {
			return "", true, err
		}
	}
	env := g.Env()
	env.SessionKey = b.SessionKey
	env.TargetWorkerID = b.WorkerID
	env.QueueEntryID = entry.ID
	env.QueuePosition = int(length)
	id, err := s.republish(ctx, j, b.WorkerID)
	if err != nil {
		return "", true, err
	}
	scheduledJobs.WithLabelValues(string(env.Type)).Inc()
	s.Log.Info("Scheduled session job",
		zap.String("job_type", string(env.Type)),
		zap.String("session_key", b.SessionKey),
		zap.String("worker", b.WorkerID),
		zap.Int64("queue_position", length),
		zap.Bool("new_session", b.IsNew))
	return id, true, nil
}

// scheduleControl resolves the existing session without creating one and
// republishes onto the owning worker's stream. No queue mutation happens.
func (s *Scheduler) scheduleControl(ctx context.Context, j job.GuildJob) (string, bool, error) {
	g := j.Guild()
	b, err := s.ensureSession(ctx, g, false)
	if err != nil {
		return "", true, s.countFailure(err)
	}
	if err := s.Sessions.Touch(ctx, b.SessionKey); err != nil {
		return "", true, err
	}
	env := g.Env()
	env.SessionKey = b.SessionKey
	env.TargetWorkerID = b.WorkerID
	id, err := s.republish(ctx, j, b.WorkerID)
	if err != nil {
		return "", true, err
	}
	scheduledJobs.WithLabelValues(string(env.Type)).Inc()
	return id, true, nil
}

func (s *Scheduler) republish(ctx context.Context, j job.Job, workerID string) (string, error) {
	streamKey := stream.WorkerStream(s.JobStream, workerID)
	if err := s.Streams.EnsureGroup(ctx, s.Group, streamKey); err != nil {
		return "", err
	}
	payload, err := job.Encode(j)
	if err != nil {
		return "", err
	}
	return s.Streams.Publish(ctx, streamKey, payload)
}

// ensureSession resolves the worker owning the job's session, creating a
// binding when allowed. The affinity binding is never trusted alone: the
// bound worker's presence decides whether the session is live or orphaned.
func (s *Scheduler) ensureSession(ctx context.Context, g *job.GuildCommand, allowCreate bool) (*binding, error) {
	sessionKey := session.ComputeKey(g.GuildID, g.VoiceChannelID)
	workerID, err := s.Sessions.GetBinding(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	wasBound := workerID != ""
	crashed := false
	if workerID != "" {
		present, err := s.Pool.IsPresent(ctx, workerID)
		if err != nil {
			return nil, err
		}
		if present {
			meta, err := s.Sessions.GetMetadata(ctx, sessionKey)
			if err != nil {
				return nil, err
			}
			if meta != nil {
				return &binding{sessionKey, workerID, meta, false}, nil
			}
		} else {
			// The owner is gone. Release everything and fail over as if no
			// binding existed; the persisted queue was already dropped with it.
			crashed = true
			meta, err := s.Sessions.GetMetadata(ctx, sessionKey)
			if err != nil {
				return nil, err
			}
			if err := s.Sessions.Release(ctx, sessionKey, meta); err != nil {
				return nil, err
			}
			s.notifyCrash(ctx, meta)
			workerID = ""
		}
	}
	if !allowCreate && !wasBound {
		return nil, errSessionStale("No active session for this voice channel")
	}
	if crashed {
		s.Log.Warn("Recovered crashed session", zap.String("session_key", sessionKey))
	}
	if err := s.pruneStaleGuildSessions(ctx, g.GuildID); err != nil {
		return nil, err
	}
	active, err := s.Sessions.GuildSessionCount(ctx, g.GuildID)
	if err != nil {
		return nil, err
	}
	if active >= int64(s.GuildCap) {
		return nil, errGuildAtCap()
	}
	selected, err := s.selectWorker(ctx)
	if err != nil {
		return nil, err
	}
	if selected == "" {
		return nil, errNoWorkers()
	}
	ok, err := s.Sessions.TrySetBinding(ctx, sessionKey, selected)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Race loss: another caller bound the session first. Join it.
		existing, err := s.Sessions.GetBinding(ctx, sessionKey)
		if err != nil {
			return nil, err
		}
		if existing == "" {
			return nil, errNoWorkers()
		}
		meta, err := s.Sessions.GetMetadata(ctx, sessionKey)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			// The winner has not persisted metadata yet. Both racers
			// describe the same session, so synthesize the same view.
			meta = &session.Metadata{
				SessionKey:     sessionKey,
				GuildID:        g.GuildID,
				VoiceChannelID: g.VoiceChannelID,
				WorkerID:       existing,
				TextChannelID:  g.TextChannelID,
				Locale:         g.Locale,
				LastActive:     time.Now(),
			}
		}
		return &binding{sessionKey, existing, meta, false}, nil
	}
	if err := s.Sessions.AddGuildSession(ctx, g.GuildID, sessionKey); err != nil {
		return nil, err
	}
	if err := s.Sessions.AddWorkerSession(ctx, selected, sessionKey); err != nil {
		return nil, err
	}
	meta := &session.Metadata{
		SessionKey:     sessionKey,
		GuildID:        g.GuildID,
		VoiceChannelID: g.VoiceChannelID,
		WorkerID:       selected,
		TextChannelID:  g.TextChannelID,
		Locale:         g.Locale,
		LastActive:     time.Now(),
	}
	if err := s.Sessions.SetMetadata(ctx, meta); err != nil {
		return nil, err
	}
	if err := s.Sessions.Touch(ctx, sessionKey); err != nil {
		return nil, err
	}
	return &binding{sessionKey, selected, meta, true}, nil
}

// selectWorker picks the present worker with the strictly lowest session
// count; the first enumerated wins ties. Absent pool members are pruned as a
// side effect.
func (s *Scheduler) selectWorker(ctx context.Context) (string, error) {
	pool, err := s.Pool.Pool(ctx)
	if err != nil {
		return "", err
	}
	var best string
	bestLoad := int64(-1)
	for _, workerID := range pool {
		present, err := s.Pool.IsPresent(ctx, workerID)
		if err != nil {
			return "", err
		}
		if !present {
			if err := s.Pool.Prune(ctx, workerID); err != nil {
				s.Log.Warn("Failed to prune stale pool member",
					zap.String("worker", workerID), zap.Error(err))
			}
			continue
		}
		load, err := s.Pool.SessionCount(ctx, workerID)
		if err != nil {
			return "", err
		}
		if bestLoad < 0 || load < bestLoad {
			best, bestLoad = workerID, load
		}
	}
	return best, nil
}

// pruneStaleGuildSessions reclaims guild slots held by sessions whose
// binding TTL already lapsed without an explicit release.
func (s *Scheduler) pruneStaleGuildSessions(ctx context.Context, guildID string) error {
	sessionKeys, err := s.Sessions.GuildSessions(ctx, guildID)
	if err != nil {
		return err
	}
	for _, sessionKey := range sessionKeys {
		exists, err := s.Sessions.BindingExists(ctx, sessionKey)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		meta, err := s.Sessions.GetMetadata(ctx, sessionKey)
		if err != nil {
			return err
		}
		if err := s.Sessions.Release(ctx, sessionKey, meta); err != nil {
			return err
		}
		// The guild index entry must go even when metadata already expired.
		if err := s.Sessions.RemoveGuildSession(ctx, guildID, sessionKey); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) notifyCrash(ctx context.Context, meta *session.Metadata) {
	crashFailovers.Inc()
	if meta == nil || s.Notifier == nil {
		return
	}
	if err := s.Notifier.NotifySessionCrash(ctx, meta); err != nil {
		s.Log.Warn("Failed to deliver crash notice",
			zap.String("guild", meta.GuildID),
			zap.String("text_channel", meta.TextChannelID),
			zap.Error(err))
	}
}

func (s *Scheduler) countFailure(err error) error {
	if schedErr, ok := AsError(err); ok {
		scheduleFailures.WithLabelValues(string(schedErr.Code)).Inc()
	}
	return err
}
