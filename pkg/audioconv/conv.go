package audioconv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// Clip is decoded mono PCM with its sample rate.
type Clip struct {
	Samples []float32 // [-1, 1]
	Rate    int
}

type Options struct {
	TargetRate int // resample to this rate; 0 keeps the source rate
	MaxSamples int // truncate after resampling; 0 = unlimited
}

// DecodeFile loads an audio file (wav/mp3/ogg-vorbis/ogg-opus) into mono
// PCM. Unknown extensions are sniffed by magic bytes.
func DecodeFile(path string, opt Options) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return DecodeWAV(f, opt)
	case ".mp3":
		return DecodeMP3(f, opt)
	case ".ogg", ".oga":
		return decodeOgg(f, opt)
	default:
		br := bufio.NewReader(f)
		magic, _ := br.Peek(4)
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return Clip{}, err
		}
		switch string(magic) {
		case "RIFF":
			return DecodeWAV(f, opt)
		case "OggS":
			return decodeOgg(f, opt)
		default:
			return Clip{}, fmt.Errorf("unsupported format: %s (supported: wav/mp3/ogg)", path)
		}
	}
}

// DecodeWAV decodes a RIFF/WAVE stream.
func DecodeWAV(r io.ReadSeeker, opt Options) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, err
	}
	if pb == nil || pb.Data == nil {
		return Clip{}, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	x := intSliceToFloat32(pb.Data, bd)

	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	if ch > 1 {
		x = downmixInterleaved(x, ch)
	}
	return finish(x, sr, opt), nil
}

// DecodeMP3 decodes an MP3 stream. The go-mp3 decoder always emits
// interleaved 16-bit stereo.
func DecodeMP3(r io.Reader, opt Options) (Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return Clip{}, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return Clip{}, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return Clip{}, err
	}
	x := downmixInterleaved(int16SliceToFloat32(ints), 2)

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	return finish(x, sr, opt), nil
}

func decodeOgg(f *os.File, opt Options) (Clip, error) {
	if c, err := decodeOggVorbis(f, opt); err == nil {
		return c, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Clip{}, err
	}
	c, err := decodeOggOpus(f, opt)
	if err != nil {
		return Clip{}, fmt.Errorf("cannot decode ogg as vorbis or opus: %w", err)
	}
	return c, nil
}

func decodeOggVorbis(r io.Reader, opt Options) (Clip, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return Clip{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return Clip{}, errors.New("invalid ogg/vorbis stream")
	}
	x := pcm
	if format.Channels > 1 {
		x = downmixInterleaved(pcm, format.Channels)
	}
	return finish(x, format.SampleRate, opt), nil
}

func decodeOggOpus(rs io.ReadSeeker, opt Options) (Clip, error) {
	dec, err := popus.NewDecoder(rs)
	if err != nil {
		return Clip{}, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	// Opus always decodes at 48 kHz.
	var (
		pcm48 []float32
		buf   = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm48 = append(pcm48, int16SliceToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Clip{}, err
		}
	}
	if len(pcm48) == 0 {
		return Clip{}, errors.New("empty opus stream")
	}
	if ch > 1 {
		pcm48 = downmixInterleaved(pcm48, ch)
	}
	return finish(pcm48, 48000, opt), nil
}

// EncodeWAV writes mono PCM as a 16-bit WAV file.
func EncodeWAV(w io.WriteSeeker, samples []float32, rate int) error {
	enc := wav.NewEncoder(w, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(clamp(float64(s), -1, 1) * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// Resample converts between sample rates with linear interpolation.
func Resample(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func finish(x []float32, rate int, opt Options) Clip {
	if opt.TargetRate > 0 && opt.TargetRate != rate {
		x = Resample(x, rate, opt.TargetRate)
		rate = opt.TargetRate
	}
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return Clip{Samples: x, Rate: rate}
}

func intSliceToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func int16SliceToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	nFrames := len(in) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
