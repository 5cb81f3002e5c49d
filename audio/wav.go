package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/youpy/go-wav"
)

const wavFormatPCM = 1

// EncodeWAV wraps mono 16-bit samples in a RIFF/WAV container.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	wavSamples := make([]wav.Sample, len(samples))
	for i, s := range samples {
		wavSamples[i] = wav.Sample{Values: [2]int{int(s), 0}}
	}
	writer := wav.NewWriter(&buf, uint32(len(wavSamples)), 1, uint32(sampleRate), 16)
	if err := writer.WriteSamples(wavSamples); err != nil {
		return nil, fmt.Errorf("write wav samples: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeWAV(payload []byte) (PCM, error) {
	reader := wav.NewReader(bytes.NewReader(payload))
	format, err := reader.Format()
	if err != nil {
		return PCM{}, fmt.Errorf("wav format: %w", err)
	}
	if format.AudioFormat != wavFormatPCM || format.BitsPerSample != 16 {
		return PCM{}, fmt.Errorf("%w: wav encoding %d with %d bits", ErrUnsupportedFormat, format.AudioFormat, format.BitsPerSample)
	}
	channels := int(format.NumChannels)
	if channels < 1 || channels > 2 {
		return PCM{}, fmt.Errorf("%w: %d wav channels", ErrUnsupportedFormat, channels)
	}

	pcm := PCM{SampleRate: int(format.SampleRate), Channels: channels}
	for {
		samples, err := reader.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return PCM{}, fmt.Errorf("read wav samples: %w", err)
		}
		for _, s := range samples {
			for ch := 0; ch < channels; ch++ {
				pcm.Samples = append(pcm.Samples, int16(s.Values[ch]))
			}
		}
	}
	return pcm, nil
}
