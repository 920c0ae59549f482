package notify

import (
	"errors"
	"io"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// ErrUnsupportedFormat формат звукового файла не поддерживается.
var ErrUnsupportedFormat = errors.New("unsupported format for direct playback; use mp3 or wav")

// Player воспроизводит аудио потоком в зависимости от формата.
type Player interface {
	Play(format string, r io.ReadCloser) error
}

// SpeakerPlayer реализует Player через системный вывод звука (mp3 и wav).
type SpeakerPlayer struct{ volumeDB float64 }

// NewSpeakerPlayer создаёт плеер с громкостью в dB (отрицательные — тише).
func NewSpeakerPlayer(db float64) *SpeakerPlayer { return &SpeakerPlayer{volumeDB: db} }

func (p *SpeakerPlayer) Play(format string, r io.ReadCloser) error {
	var (
		streamer beep.StreamSeekCloser
		fmtInfo  beep.Format
		err      error
	)
	switch format {
	case "wav", "WAV":
		streamer, fmtInfo, err = wav.Decode(r)
	case "mp3", "MP3":
		streamer, fmtInfo, err = mp3.Decode(r)
	default:
		return ErrUnsupportedFormat
	}
	if err != nil {
		return err
	}
	defer streamer.Close()

	if err := speaker.Init(fmtInfo.SampleRate, fmtInfo.SampleRate.N(time.Second/10)); err != nil {
		return err
	}
	vol := &effects.Volume{
		Streamer: streamer,
		Base:     2,
		Volume:   p.volumeDB,
	}
	done := make(chan struct{})
	speaker.Play(beep.Seq(vol, beep.Callback(func() { close(done) })))
	<-done
	return nil
}
