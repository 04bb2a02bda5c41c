// Package audio decodes a downloaded call recording into 16-bit linear PCM,
// regardless of which codec the voice provider recorded in, and wraps PCM
// back into a WAV container for transcriber backends that take encoded
// audio.
package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// AudioFrame is one chunk of PCM audio plus the format it was captured in.
type AudioFrame struct {
	Data       []byte
	SampleRate int
	Channels   int
	Timestamp  float64
}

// FormatConverter converts AudioFrames to a target format. It logs a warning
// on the first format mismatch and validates PCM data alignment.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts a frame to the target format. If the source format already
// matches the target, the frame is returned unchanged (zero allocation).
// Conversion order: resample first, then channel convert.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	// Validate: odd byte count for int16 PCM.
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"sampleRate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return AudioFrame{
			Data:       nil,
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  frame.Timestamp,
		}
	}

	// Fast path: source matches target.
	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	// Log warning on first mismatch.
	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := frame.Data
	currentRate := frame.SampleRate
	currentChannels := frame.Channels

	// Step 1: Resample first (avoids resampling stereo when target is mono).
	if currentRate != c.Target.SampleRate {
		if currentChannels == 1 {
			pcm = ResampleMono16(pcm, currentRate, c.Target.SampleRate)
		} else {
			pcm = ResampleStereo16(pcm, currentRate, c.Target.SampleRate)
		}
		currentRate = c.Target.SampleRate
	}

	// Step 2: Channel conversion.
	if currentChannels != c.Target.Channels {
		if currentChannels == 1 && c.Target.Channels == 2 {
			pcm = MonoToStereo(pcm)
		} else if currentChannels == 2 && c.Target.Channels == 1 {
			pcm = StereoToMono(pcm)
		}
		currentChannels = c.Target.Channels
	}

	return AudioFrame{
		Data:       pcm,
		SampleRate: currentRate,
		Channels:   currentChannels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream wraps an input channel with a conversion goroutine. It closes
// the returned channel when in closes. Uses cap(in) for the output channel
// buffer. Frames with empty data (e.g. from odd byte count) are dropped.
func ConvertStream(in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		conv := FormatConverter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
// Input must be little-endian int16 PCM (2 bytes per sample).
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	// Each stereo frame is 4 bytes (2 bytes L + 2 bytes R).
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		lSample := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		rSample := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (lSample + rSample) / 2

		// Clamp to int16 range.
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// ResampleStereo16 resamples 16-bit stereo PCM from srcRate to dstRate using
// linear interpolation. Each stereo frame is 4 bytes (L+R interleaved).
// If srcRate == dstRate, the input is returned unchanged.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 4 {
		return pcm
	}
	srcFrames := len(pcm) / 4
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*4)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		// Left channel
		l0 := int16(pcm[srcIdx*4]) | int16(pcm[srcIdx*4+1])<<8
		// Right channel
		r0 := int16(pcm[srcIdx*4+2]) | int16(pcm[srcIdx*4+3])<<8

		var l1, r1 int16
		if srcIdx+1 < srcFrames {
			l1 = int16(pcm[(srcIdx+1)*4]) | int16(pcm[(srcIdx+1)*4+1])<<8
			r1 = int16(pcm[(srcIdx+1)*4+2]) | int16(pcm[(srcIdx+1)*4+3])<<8
		} else {
			l1 = l0
			r1 = r0
		}

		lInterp := int16(float64(l0)*(1-frac) + float64(l1)*frac)
		rInterp := int16(float64(r0)*(1-frac) + float64(r1)*frac)

		out[i*4] = byte(lInterp)
		out[i*4+1] = byte(lInterp >> 8)
		out[i*4+2] = byte(rInterp)
		out[i*4+3] = byte(rInterp >> 8)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}

// muLawDecodeTable maps every possible 8-bit G.711 mu-law sample to its
// 16-bit linear PCM equivalent, computed once at package init.
var muLawDecodeTable = buildMuLawDecodeTable()

func buildMuLawDecodeTable() [256]int16 {
	var table [256]int16
	for i := range 256 {
		mu := ^byte(i)
		sign := int32(1)
		if mu&0x80 != 0 {
			sign = -1
		}
		exponent := int32((mu >> 4) & 0x07)
		mantissa := int32(mu & 0x0F)
		magnitude := ((mantissa << 3) + 0x84) << exponent
		magnitude -= 0x84
		sample := sign * magnitude
		if sample > 32767 {
			sample = 32767
		} else if sample < -32768 {
			sample = -32768
		}
		table[i] = int16(sample)
	}
	return table
}

// DecodeMuLaw converts G.711 mu-law encoded samples (one byte per sample, the
// common telephony PCMU wire format) into little-endian 16-bit linear PCM.
func DecodeMuLaw(encoded []byte) []byte {
	out := make([]byte, len(encoded)*2)
	for i, b := range encoded {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(muLawDecodeTable[b]))
	}
	return out
}

// wavFormatPCM and wavFormatMuLaw are the WAVE_FORMAT tags this decoder
// recognises in a WAV "fmt " chunk.
const (
	wavFormatPCM   = 1
	wavFormatMuLaw = 7
)

// DecodeWAV parses a canonical RIFF/WAVE container and returns its audio
// data as little-endian 16-bit linear PCM, resolving mu-law-encoded bodies
// (format tag 7, as Twilio-style telephony recordings commonly use)
// through [DecodeMuLaw] along the way.
func DecodeWAV(data []byte) (pcm []byte, format Format, err error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("audio: not a RIFF/WAVE container")
	}

	var (
		formatTag  uint16
		channels   uint16
		sampleRate uint32
		bitDepth   uint16
		haveFmt    bool
		body       []byte
	)

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		bodyStart := offset + 8
		bodyEnd := bodyStart + chunkSize
		if bodyEnd > len(data) {
			bodyEnd = len(data)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, Format{}, fmt.Errorf("audio: fmt chunk too short: %d bytes", chunkSize)
			}
			fmtBody := data[bodyStart:bodyEnd]
			formatTag = binary.LittleEndian.Uint16(fmtBody[0:2])
			channels = binary.LittleEndian.Uint16(fmtBody[2:4])
			sampleRate = binary.LittleEndian.Uint32(fmtBody[4:8])
			bitDepth = binary.LittleEndian.Uint16(fmtBody[14:16])
			haveFmt = true
		case "data":
			body = data[bodyStart:bodyEnd]
		}

		offset = bodyEnd
		if chunkSize%2 == 1 {
			offset++ // chunks are word-aligned
		}
	}

	if !haveFmt {
		return nil, Format{}, fmt.Errorf("audio: missing fmt chunk")
	}
	if body == nil {
		return nil, Format{}, fmt.Errorf("audio: missing data chunk")
	}

	format = Format{SampleRate: int(sampleRate), Channels: int(channels)}

	switch formatTag {
	case wavFormatMuLaw:
		return DecodeMuLaw(body), format, nil
	case wavFormatPCM:
		if bitDepth != 16 {
			return nil, Format{}, fmt.Errorf("audio: unsupported PCM bit depth %d", bitDepth)
		}
		return body, format, nil
	default:
		return nil, Format{}, fmt.Errorf("audio: unsupported WAVE format tag %d", formatTag)
	}
}

// RecordingToPCM16 decodes a downloaded call recording — "wav" (including
// mu-law-encoded WAV bodies) or a bare "mulaw"/"pcmu" byte stream — into
// little-endian 16-bit PCM at targetRate, mono, resampling and downmixing
// through [FormatConverter]. The result has no container; a
// transcriber.Provider takes encoded audio such as "wav", so callers wrap it
// with [EncodeWAV] first.
func RecordingToPCM16(recording []byte, format string, targetRate int) ([]byte, error) {
	var pcm []byte
	var src Format

	switch format {
	case "wav", "wave":
		decoded, f, err := DecodeWAV(recording)
		if err != nil {
			return nil, fmt.Errorf("audio: decode wav recording: %w", err)
		}
		pcm, src = decoded, f
	case "mulaw", "pcmu":
		// Bare mu-law stream: assume narrowband telephony defaults.
		pcm, src = DecodeMuLaw(recording), Format{SampleRate: 8000, Channels: 1}
	default:
		return nil, fmt.Errorf("audio: unsupported recording format %q", format)
	}

	conv := FormatConverter{Target: Format{SampleRate: targetRate, Channels: 1}}
	out := conv.Convert(AudioFrame{Data: pcm, SampleRate: src.SampleRate, Channels: src.Channels})
	return out.Data, nil
}

// EncodeWAV wraps little-endian 16-bit linear PCM in a canonical RIFF/WAVE
// container, the counterpart to [DecodeWAV]. Used to repackage a bare
// "mulaw"/"pcmu" telephony recording, once normalized through
// [RecordingToPCM16], into a container a batch transcription backend's
// format allowlist actually accepts.
func EncodeWAV(pcm []byte, format Format) []byte {
	const bitDepth = 16
	byteRate := format.SampleRate * format.Channels * bitDepth / 8
	blockAlign := format.Channels * bitDepth / 8

	buf := make([]byte, 0, 44+len(pcm))
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+len(pcm)))
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, wavFormatPCM)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(format.Channels))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(format.SampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(byteRate))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(blockAlign))
	buf = binary.LittleEndian.AppendUint16(buf, bitDepth)

	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(pcm)))
	buf = append(buf, pcm...)

	return buf
}
