package job

import (
	"errors"
	"fmt"
)

// PingRespond asks any worker to answer a liveness probe. It carries no
// session affinity and travels on the global stream only.
type PingRespond struct {
	Envelope
	GuildID   string    `json:"guildId"`
	ChannelID string    `json:"channelId"`
	Requester Requester `json:"requester"`
}

// Validate checks the required identity fields.
func (j *PingRespond) Validate() error {
	if err := j.Envelope.validate(); err != nil {
		return err
	}
	if j.GuildID == "" || j.ChannelID == "" {
		return errors.New("missing guild or channel id")
	}
	if j.Requester.UserID == "" || j.Requester.Username == "" {
		return errors.New("missing requester identity")
	}
	return nil
}

// MusicPlay starts or extends playback in a voice channel.
type MusicPlay struct {
	VoiceCommand
	Query string `json:"query"`
}

// Validate additionally requires a non-empty query.
func (j *MusicPlay) Validate() error {
	if err := j.VoiceCommand.Validate(); err != nil {
		return err
	}
	if j.Query == "" {
		return errors.New("missing play query")
	}
	return nil
}

// MusicPause pauses the current track.
type MusicPause struct {
	VoiceCommand
}

// MusicResume resumes a paused track.
type MusicResume struct {
	VoiceCommand
}

// MusicSkip skips one or more queued tracks.
type MusicSkip struct {
	VoiceCommand
	Count int  `json:"count,omitempty"`
	Force bool `json:"force,omitempty"`
}

// Validate bounds the skip count.
func (j *MusicSkip) Validate() error {
	if err := j.VoiceCommand.Validate(); err != nil {
		return err
	}
	if j.Count < 0 || j.Count > 25 {
		return fmt.Errorf("skip count out of range: %d", j.Count)
	}
	return nil
}

// MusicStop halts playback. ClearQueue defaults to true on decode.
type MusicStop struct {
	VoiceCommand
	ClearQueue bool `json:"clearQueue"`
}

// MusicQueue requests a view of the pending queue.
type MusicQueue struct {
	VoiceCommand
	Page int `json:"page,omitempty"`
}

// MusicVolume adjusts or reads the playback volume.
type MusicVolume struct {
	VoiceCommand
	Level int `json:"level,omitempty"`
}

// Validate bounds the volume level.
func (j *MusicVolume) Validate() error {
	if err := j.VoiceCommand.Validate(); err != nil {
		return err
	}
	if j.Level < 0 || j.Level > 200 {
		return fmt.Errorf("volume level out of range: %d", j.Level)
	}
	return nil
}

// MusicFavoriteAdd saves the current or named track as a favorite.
type MusicFavoriteAdd struct {
	GuildCommand
	TrackID string `json:"trackId,omitempty"`
}

// MusicFavoritePlay plays a saved favorite.
type MusicFavoritePlay struct {
	VoiceCommand
	Name string `json:"name,omitempty"`
}

// MusicPlaylistCreate creates a named playlist.
type MusicPlaylistCreate struct {
	GuildCommand
	Name       string `json:"name"`
	Visibility string `json:"visibility,omitempty"`
}

// Validate requires the playlist name.
func (j *MusicPlaylistCreate) Validate() error {
	if err := j.GuildCommand.Validate(); err != nil {
		return err
	}
	if j.Name == "" {
		return errors.New("missing playlist name")
	}
	return nil
}

// MusicPlaylistAdd appends a track to a playlist.
type MusicPlaylistAdd struct {
	GuildCommand
	Name  string `json:"name"`
	Query string `json:"query,omitempty"`
}

// MusicPlaylistList lists playlists or one playlist's tracks.
type MusicPlaylistList struct {
	GuildCommand
	Name string `json:"name,omitempty"`
}

// MusicPlaylistPlay starts playback of a whole playlist.
type MusicPlaylistPlay struct {
	VoiceCommand
	Name string `json:"name"`
}

// Validate requires the playlist name.
func (j *MusicPlaylistPlay) Validate() error {
	if err := j.VoiceCommand.Validate(); err != nil {
		return err
	}
	if j.Name == "" {
		return errors.New("missing playlist name")
	}
	return nil
}

// RadioStart tunes a voice channel to a radio genre.
type RadioStart struct {
	VoiceCommand
	Genre string `json:"genre"`
}

// Validate requires the genre.
func (j *RadioStart) Validate() error {
	if err := j.VoiceCommand.Validate(); err != nil {
		return err
	}
	if j.Genre == "" {
		return errors.New("missing radio genre")
	}
	return nil
}

// RadioStop stops a running radio session.
type RadioStop struct {
	VoiceCommand
}

// RadioGenreList lists the available radio genres.
type RadioGenreList struct {
	GuildCommand
}

// GameTurtleStart starts a Turtle Soup round.
type GameTurtleStart struct {
	GuildCommand
	Prompt string `json:"prompt,omitempty"`
}

// GameTurtleHint requests a hint for the running round.
type GameTurtleHint struct {
	GuildCommand
	Request string `json:"request,omitempty"`
}

// GameTurtleSummary asks for the round summary.
type GameTurtleSummary struct {
	GuildCommand
	Summary string `json:"summary,omitempty"`
}

// GameWerewolfSetup prepares a Werewolf lobby.
type GameWerewolfSetup struct {
	GuildCommand
	Preset      string `json:"preset,omitempty"`
	PlayerCount int    `json:"playerCount,omitempty"`
}

// GameWerewolfStart begins a prepared Werewolf game.
type GameWerewolfStart struct {
	GuildCommand
}

// GameWerewolfVote casts a vote against a player.
type GameWerewolfVote struct {
	GuildCommand
	TargetUserID string `json:"targetUserId,omitempty"`
	TargetName   string `json:"targetName,omitempty"`
}

// GameWerewolfStatus reports the game state.
type GameWerewolfStatus struct {
	GuildCommand
}

// GameUndercoverStart begins an Undercover game.
type GameUndercoverStart struct {
	GuildCommand
	WordSet string `json:"wordSet,omitempty"`
}

// GameUndercoverVote casts a vote against a player.
type GameUndercoverVote struct {
	GuildCommand
	TargetUserID string `json:"targetUserId,omitempty"`
	TargetName   string `json:"targetName,omitempty"`
}

// GameUndercoverStatus reports the game state.
type GameUndercoverStatus struct {
	GuildCommand
}
