package job

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType gets raised when a payload carries a tag outside the catalog.
var ErrUnknownType = errors.New("unknown job type")

// Decode parses a stream payload into its typed variant.
// Malformed payloads and unknown tags are rejected, never coerced.
func Decode(payload []byte) (Job, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, fmt.Errorf("malformed job payload: %w", err)
	}
	j, err := newForType(head.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, j); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", head.Type, err)
	}
	if err := j.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s job: %w", head.Type, err)
	}
	return j, nil
}

// Encode validates a job and serializes it for publishing.
func Encode(j Job) ([]byte, error) {
	if err := j.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s job: %w", j.Env().Type, err)
	}
	return json.Marshal(j)
}

func newForType(t Type) (Job, error) {
	switch t {
	case TypePingRespond:
		return new(PingRespond), nil
	case TypeMusicPlay:
		return new(MusicPlay), nil
	case TypeMusicPause:
		return new(MusicPause), nil
	case TypeMusicResume:
		return new(MusicResume), nil
	case TypeMusicSkip:
		return new(MusicSkip), nil
	case TypeMusicStop:
		return &MusicStop{ClearQueue: true}, nil
	case TypeMusicQueue:
		return new(MusicQueue), nil
	case TypeMusicVolume:
		return new(MusicVolume), nil
	case TypeMusicFavoriteAdd:
		return new(MusicFavoriteAdd), nil
	case TypeMusicFavoritePlay:
		return new(MusicFavoritePlay), nil
	case TypeMusicPlaylistCreate:
		return new(MusicPlaylistCreate), nil
	case TypeMusicPlaylistAdd:
		return new(MusicPlaylistAdd), nil
	case TypeMusicPlaylistList:
		return new(MusicPlaylistList), nil
	case TypeMusicPlaylistPlay:
		return new(MusicPlaylistPlay), nil
	case TypeRadioStart:
		return new(RadioStart), nil
	case TypeRadioStop:
		return new(RadioStop), nil
	case TypeRadioGenreList:
		return new(RadioGenreList), nil
	case TypeGameTurtleStart:
		return new(GameTurtleStart), nil
	case TypeGameTurtleHint:
		return new(GameTurtleHint), nil
	case TypeGameTurtleSummary:
		return new(GameTurtleSummary), nil
	case TypeGameWerewolfSetup:
		return new(GameWerewolfSetup), nil
	case TypeGameWerewolfStart:
		return new(GameWerewolfStart), nil
	case TypeGameWerewolfVote:
		return new(GameWerewolfVote), nil
	case TypeGameWerewolfStatus:
		return new(GameWerewolfStatus), nil
	case TypeGameUndercoverStart:
		return new(GameUndercoverStart), nil
	case TypeGameUndercoverVote:
		return new(GameUndercoverVote), nil
	case TypeGameUndercoverStatus:
		return new(GameUndercoverStatus), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}
