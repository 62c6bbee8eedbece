// Package player defines the media backend integration boundary.
package player

import "context"

// Player is the single adapter interface workers use to drive playback.
// The concrete media backend implements it once; no capability probing
// happens anywhere else in the pipeline.
type Player interface {
	Connect(ctx context.Context, guildID, voiceChannelID string) error
	Play(ctx context.Context, guildID, query string) error
	Pause(ctx context.Context, guildID string) error
	Resume(ctx context.Context, guildID string) error
	Stop(ctx context.Context, guildID string) error
	SetVolume(ctx context.Context, guildID string, level int) error
	Disconnect(ctx context.Context, guildID string) error
}
