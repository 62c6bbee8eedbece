package player

import (
	"context"

	"go.uber.org/zap"
)

// LogPlayer is a stand-in backend that records playback actions to the log.
// Deployments swap in a real media backend behind the same interface.
type LogPlayer struct {
	Log *zap.Logger
}

func (p *LogPlayer) Connect(_ context.Context, guildID, voiceChannelID string) error {
	p.Log.Info("Connect",
		zap.String("guild_id", guildID),
		zap.String("voice_channel_id", voiceChannelID))
	return nil
}

func (p *LogPlayer) Play(_ context.Context, guildID, query string) error {
	p.Log.Info("Play",
		zap.String("guild_id", guildID),
		zap.String("query", query))
	return nil
}

func (p *LogPlayer) Pause(_ context.Context, guildID string) error {
	p.Log.Info("Pause", zap.String("guild_id", guildID))
	return nil
}

func (p *LogPlayer) Resume(_ context.Context, guildID string) error {
	p.Log.Info("Resume", zap.String("guild_id", guildID))
	return nil
}

func (p *LogPlayer) Stop(_ context.Context, guildID string) error {
	p.Log.Info("Stop", zap.String("guild_id", guildID))
	return nil
}

func (p *LogPlayer) SetVolume(_ context.Context, guildID string, level int) error {
	p.Log.Info("SetVolume",
		zap.String("guild_id", guildID),
		zap.Int("level", level))
	return nil
}

func (p *LogPlayer) Disconnect(_ context.Context, guildID string) error {
	p.Log.Info("Disconnect", zap.String("guild_id", guildID))
	return nil
}
