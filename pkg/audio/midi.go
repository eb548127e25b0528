package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/zurustar/soundscape/pkg/fileutil"
)

// midiTail is rendered after the last MIDI event so releases can decay.
const midiTail = SampleRate

// midiChunk is the number of frames rendered per synthesizer call.
const midiChunk = 4096

// loadSoundFont reads and parses a SoundFont. A nil fsys reads path from the
// real file system as given.
func loadSoundFont(fsys fileutil.FileSystem, path string) (*meltysynth.SoundFont, error) {
	var (
		data []byte
		err  error
	)
	if fsys == nil {
		data, err = os.ReadFile(path)
	} else {
		data, err = fsys.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSoundFont, err)
	}
	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse SoundFont: %v", ErrNoSoundFont, err)
	}
	return sf, nil
}

// renderMIDI synthesizes a whole Standard MIDI File to 16-bit stereo PCM.
// Each call uses its own synthesizer; the SoundFont is only read.
func renderMIDI(sf *meltysynth.SoundFont, data []byte) ([]byte, error) {
	midi, err := meltysynth.NewMidiFile(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	settings := meltysynth.NewSynthesizerSettings(SampleRate)
	synth, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}

	seq := meltysynth.NewMidiFileSequencer(synth)
	seq.Play(midi, false)

	total := int(midi.GetLength().Seconds()*SampleRate) + midiTail
	pcm := make([]byte, 0, total*bytesPerFrame)
	left := make([]float32, midiChunk)
	right := make([]float32, midiChunk)

	for rendered := 0; rendered < total; rendered += midiChunk {
		n := min(midiChunk, total-rendered)
		seq.Render(left[:n], right[:n])
		for i := 0; i < n; i++ {
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(toInt16(left[i])))
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(toInt16(right[i])))
		}
	}
	return pcm, nil
}

func toInt16(v float32) int16 {
	if v < -1 {
		v = -1
	} else if v > 1 {
		v = 1
	}
	return int16(v * 32767)
}
