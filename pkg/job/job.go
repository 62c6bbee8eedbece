// Package job defines the closed catalog of work items flowing through the
// dispatch pipeline.
//
// Every job is a tagged value: the envelope carries the routing and
// deduplication fields shared by all types, and each type adds its own typed
// payload. The catalog is closed; decoding an unknown tag is an error, and
// dispatch over variants happens with exhaustive type switches so adding a
// type is a compile-time-checked change.
package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type tags one job variant.
type Type string

// The job catalog.
const (
	TypePingRespond Type = "ping.respond"

	TypeMusicPlay   Type = "music.play"
	TypeMusicPause  Type = "music.pause"
	TypeMusicResume Type = "music.resume"
	TypeMusicSkip   Type = "music.skip"
	TypeMusicStop   Type = "music.stop"
	TypeMusicQueue  Type = "music.queue"
	TypeMusicVolume Type = "music.volume"

	TypeMusicFavoriteAdd    Type = "music.favorite.add"
	TypeMusicFavoritePlay   Type = "music.favorite.play"
	TypeMusicPlaylistCreate Type = "music.playlist.create"
	TypeMusicPlaylistAdd    Type = "music.playlist.add"
	TypeMusicPlaylistList   Type = "music.playlist.list"
	TypeMusicPlaylistPlay   Type = "music.playlist.play"

	TypeRadioStart     Type = "radio.start"
	TypeRadioStop      Type = "radio.stop"
	TypeRadioGenreList Type = "radio.genre.list"

	TypeGameTurtleStart      Type = "game.turtle.start"
	TypeGameTurtleHint       Type = "game.turtle.hint"
	TypeGameTurtleSummary    Type = "game.turtle.summary"
	TypeGameWerewolfSetup    Type = "game.werewolf.setup"
	TypeGameWerewolfStart    Type = "game.werewolf.start"
	TypeGameWerewolfVote     Type = "game.werewolf.vote"
	TypeGameWerewolfStatus   Type = "game.werewolf.status"
	TypeGameUndercoverStart  Type = "game.undercover.start"
	TypeGameUndercoverVote   Type = "game.undercover.vote"
	TypeGameUndercoverStatus Type = "game.undercover.status"
)

// Source tells which front-end surface produced a command.
type Source string

// Command sources.
const (
	SourceInteraction Source = "interaction"
	SourcePrefix      Source = "prefix"
)

// Requester identifies the user whose action produced a job.
type Requester struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Envelope carries the fields common to every job type.
//
// The routing fields stay empty until the scheduler resolves the session; a
// worker must treat them as read-only.
type Envelope struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	IdempotencyKey string    `json:"idempotencyKey"`
	CreatedAt      time.Time `json:"createdAt"`

	// Routing, populated by the scheduler.
	SessionKey     string `json:"sessionKey,omitempty"`
	TargetWorkerID string `json:"targetWorkerId,omitempty"`
	QueueEntryID   string `json:"queueEntryId,omitempty"`
	QueuePosition  int    `json:"queuePosition,omitempty"`
}

// Env returns the shared envelope fields.
func (e *Envelope) Env() *Envelope { return e }

func (e *Envelope) validate() error {
	if e.ID == "" {
		return errors.New("missing job id")
	}
	if e.Type == "" {
		return errors.New("missing job type")
	}
	if e.IdempotencyKey == "" {
		return errors.New("missing idempotency key")
	}
	if e.CreatedAt.IsZero() {
		return errors.New("missing creation time")
	}
	return nil
}

// Job is one unit of asynchronous work, consumed by exactly one worker
// execution attempt (at-least-once: a crash before acknowledge redelivers).
type Job interface {
	Env() *Envelope
	Validate() error
}

// GuildCommand carries the fields shared by all guild-scoped command jobs.
type GuildCommand struct {
	Envelope
	GuildID        string    `json:"guildId"`
	TextChannelID  string    `json:"textChannelId"`
	Requester      Requester `json:"requester"`
	Source         Source    `json:"source"`
	Locale         string    `json:"locale,omitempty"`
	VoiceChannelID string    `json:"voiceChannelId,omitempty"`
}

// Guild returns the shared guild command fields.
func (g *GuildCommand) Guild() *GuildCommand { return g }

// Validate checks the identity fields required on every guild command.
func (g *GuildCommand) Validate() error {
	if err := g.Envelope.validate(); err != nil {
		return err
	}
	if g.GuildID == "" {
		return errors.New("missing guild id")
	}
	if g.TextChannelID == "" {
		return errors.New("missing text channel id")
	}
	if g.Requester.UserID == "" || g.Requester.Username == "" {
		return errors.New("missing requester identity")
	}
	switch g.Source {
	case SourceInteraction, SourcePrefix:
	default:
		return fmt.Errorf("invalid command source: %q", g.Source)
	}
	return nil
}

// GuildJob is implemented by all guild-scoped command variants.
type GuildJob interface {
	Job
	Guild() *GuildCommand
}

// VoiceCommand is a guild command that must reference a voice channel.
type VoiceCommand struct {
	GuildCommand
}

// Validate additionally requires the voice channel id.
func (v *VoiceCommand) Validate() error {
	if err := v.GuildCommand.Validate(); err != nil {
		return err
	}
	if v.VoiceChannelID == "" {
		return errors.New("missing voice channel id")
	}
	return nil
}

// NewID returns a fresh opaque job id.
func NewID() string {
	return uuid.New().String()
}

// IdempotencyKey formats the deduplication token for a job of the given type
// triggered by one originating user event. Replays of the same event collapse
// to the same key.
func IdempotencyKey(t Type, eventID string) string {
	return string(t) + ":" + eventID
}
