package worker

import (
	"context"
	"fmt"

	"go.anankor.net/dispatch/pkg/job"
	"go.anankor.net/dispatch/pkg/player"
	"go.anankor.net/dispatch/pkg/session"
	"go.uber.org/zap"
)

// MusicHandler drives the media backend for session-bound jobs.
//
// It trusts the routing fields resolved by the scheduler and rehydrates the
// persisted session queue instead of keeping in-process playback state, so a
// restarted worker picks up exactly where the previous owner left off.
type MusicHandler struct {
	// Required components
	Player   player.Player
	Sessions *session.Store
	Log      *zap.Logger
}

// RegisterAll installs the handler for every session-bound job type.
func (h *MusicHandler) RegisterAll(c *Consumer) {
	for _, t := range []job.Type{
		job.TypeMusicPlay,
		job.TypeMusicPause,
		job.TypeMusicResume,
		job.TypeMusicSkip,
		job.TypeMusicStop,
		job.TypeMusicQueue,
		job.TypeMusicVolume,
		job.TypeMusicFavoritePlay,
		job.TypeMusicPlaylistPlay,
		job.TypeRadioStart,
		job.TypeRadioStop,
	} {
		c.Register(t, h)
	}
}

// HandleJob executes one session-bound job.
func (h *MusicHandler) HandleJob(ctx context.Context, jb job.Job) error {
	switch j := jb.(type) {
	case *job.MusicPlay:
		return h.handleStart(ctx, &j.GuildCommand)
	case *job.MusicFavoritePlay:
		return h.handleStart(ctx, &j.GuildCommand)
	case *job.MusicPlaylistPlay:
		return h.handleStart(ctx, &j.GuildCommand)
	case *job.RadioStart:
		return h.handleStart(ctx, &j.GuildCommand)
	case *job.MusicPause:
		return h.Player.Pause(ctx, j.GuildID)
	case *job.MusicResume:
		return h.Player.Resume(ctx, j.GuildID)
	case *job.MusicSkip:
		count := j.Count
		if count == 0 {
			count = 1
		}
		return h.skip(ctx, &j.GuildCommand, count)
	case *job.MusicStop:
		return h.stop(ctx, &j.GuildCommand, j.ClearQueue)
	case *job.MusicQueue:
		length, err := h.Sessions.QueueLen(ctx, j.SessionKey)
		if err != nil {
			return err
		}
		h.Log.Info("Queue view requested",
			zap.String("session_key", j.SessionKey),
			zap.Int64("queue_length", length))
		return nil
	case *job.MusicVolume:
		return h.Player.SetVolume(ctx, j.GuildID, j.Level)
	case *job.RadioStop:
		return h.stop(ctx, &j.GuildCommand, true)
	default:
		return fmt.Errorf("unexpected job type %s", jb.Env().Type)
	}
}

// handleStart connects to the voice channel and starts playback when the
// scheduler marked this entry as the new queue head.
func (h *MusicHandler) handleStart(ctx context.Context, g *job.GuildCommand) error {
	if err := h.Player.Connect(ctx, g.GuildID, g.VoiceChannelID); err != nil {
		return fmt.Errorf("failed to connect to voice channel: %w", err)
	}
	if g.QueuePosition != 1 {
		// Not the head; the entry plays when the queue reaches it.
		return nil
	}
	current, err := h.Sessions.CurrentEntry(ctx, g.SessionKey)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("no current entry for session %s", g.SessionKey)
	}
	return h.Player.Play(ctx, g.GuildID, current.Query)
}

// skip drops entries off the queue head and plays whatever remains.
func (h *MusicHandler) skip(ctx context.Context, g *job.GuildCommand, count int) error {
	for i := 0; i < count; i++ {
		entry, err := h.Sessions.ShiftEntry(ctx, g.SessionKey)
		if err != nil {
			return err
		}
		if entry == nil {
			break
		}
	}
	next, err := h.Sessions.Entries(ctx, g.SessionKey, 0, 0)
	if err != nil {
		return err
	}
	if len(next) == 0 {
		if err := h.Sessions.ClearCurrentEntry(ctx, g.SessionKey); err != nil {
			return err
		}
		return h.Player.Stop(ctx, g.GuildID)
	}
	if err := h.Sessions.SetCurrentEntry(ctx, g.SessionKey, &next[0]); err != nil {
		return err
	}
	return h.Player.Play(ctx, g.GuildID, next[0].Query)
}

func (h *MusicHandler) stop(ctx context.Context, g *job.GuildCommand, clearQueue bool) error {
	if err := h.Player.Stop(ctx, g.GuildID); err != nil {
		return err
	}
	if clearQueue {
		if err := h.Sessions.ClearQueue(ctx, g.SessionKey); err != nil {
			return err
		}
		if err := h.Sessions.ClearCurrentEntry(ctx, g.SessionKey); err != nil {
			return err
		}
	}
	return h.Player.Disconnect(ctx, g.GuildID)
}
