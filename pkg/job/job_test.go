package job

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPlay() *MusicPlay {
	return &MusicPlay{
		VoiceCommand: VoiceCommand{
			GuildCommand: GuildCommand{
				Envelope: Envelope{
					ID:             NewID(),
					Type:           TypeMusicPlay,
					IdempotencyKey: IdempotencyKey(TypeMusicPlay, "evt-1"),
					CreatedAt:      time.Now(),
				},
				GuildID:        "g1",
				TextChannelID:  "t1",
				Requester:      Requester{UserID: "u1", Username: "alice"},
				Source:         SourceInteraction,
				VoiceChannelID: "v1",
			},
		},
		Query: "some song",
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	play := validPlay()
	payload, err := Encode(play)
	require.NoError(t, err)
	decoded, err := Decode(payload)
	require.NoError(t, err)
	got, ok := decoded.(*MusicPlay)
	require.True(t, ok, "expected *MusicPlay, got %T", decoded)
	assert.Equal(t, play.ID, got.ID)
	assert.Equal(t, play.Query, got.Query)
	assert.Equal(t, TypeMusicPlay, got.Env().Type)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"music.teleport"}`))
	assert.True(t, errors.Is(err, ErrUnknownType), "got %v", err)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	play := validPlay()
	play.Query = ""
	payload, err := json.Marshal(play)
	require.NoError(t, err)
	_, err = Decode(payload)
	assert.Error(t, err)
}

func TestEncodeRejectsInvalid(t *testing.T) {
	play := validPlay()
	play.VoiceChannelID = ""
	_, err := Encode(play)
	assert.Error(t, err)
}

func TestMusicStopClearQueueDefault(t *testing.T) {
	play := validPlay()
	stop := &MusicStop{VoiceCommand: play.VoiceCommand}
	stop.Type = TypeMusicStop
	payload, err := json.Marshal(stop)
	require.NoError(t, err)
	// clearQueue absent from the payload defaults to true.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &raw))
	delete(raw, "clearQueue")
	payload, err = json.Marshal(raw)
	require.NoError(t, err)
	decoded, err := Decode(payload)
	require.NoError(t, err)
	assert.True(t, decoded.(*MusicStop).ClearQueue)
}

func TestMusicStopClearQueueExplicitFalse(t *testing.T) {
	play := validPlay()
	stop := &MusicStop{VoiceCommand: play.VoiceCommand, ClearQueue: false}
	stop.Type = TypeMusicStop
	payload, err := json.Marshal(stop)
	require.NoError(t, err)
	decoded, err := Decode(payload)
	require.NoError(t, err)
	assert.False(t, decoded.(*MusicStop).ClearQueue)
}

func TestSkipCountRange(t *testing.T) {
	play := validPlay()
	skip := &MusicSkip{VoiceCommand: play.VoiceCommand}
	skip.Type = TypeMusicSkip
	skip.Count = 25
	assert.NoError(t, skip.Validate())
	skip.Count = 26
	assert.Error(t, skip.Validate())
	skip.Count = -1
	assert.Error(t, skip.Validate())
}

func TestVolumeLevelRange(t *testing.T) {
	play := validPlay()
	vol := &MusicVolume{VoiceCommand: play.VoiceCommand}
	vol.Type = TypeMusicVolume
	vol.Level = 200
	assert.NoError(t, vol.Validate())
	vol.Level = 201
	assert.Error(t, vol.Validate())
}

func TestIdempotencyKeyStable(t *testing.T) {
	assert.Equal(t, "music.play:evt-9", IdempotencyKey(TypeMusicPlay, "evt-9"))
	assert.Equal(t,
		IdempotencyKey(TypeMusicPlay, "evt-9"),
		IdempotencyKey(TypeMusicPlay, "evt-9"))
	assert.NotEqual(t,
		IdempotencyKey(TypeMusicPlay, "evt-9"),
		IdempotencyKey(TypeMusicPause, "evt-9"))
}

func TestGuildCommandValidate(t *testing.T) {
	play := validPlay()
	play.Source = "carrier-pigeon"
	assert.Error(t, play.Validate())
	play = validPlay()
	play.Requester.Username = ""
	assert.Error(t, play.Validate())
	play = validPlay()
	play.CreatedAt = time.Time{}
	assert.Error(t, play.Validate())
}
