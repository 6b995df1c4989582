package media

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/vizrig/vizrig/pkg/asset"
	"github.com/vizrig/vizrig/pkg/event"
	"github.com/vizrig/vizrig/pkg/gfx"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/monitoring"
	"github.com/vizrig/vizrig/pkg/rational"
)

const (
	maxDecodeErrors = 2
	maxSeekWraps    = 100
	maxSeekSteps    = 1000
	// seek stops this fraction of a frame before the target
	seekTolerance = 20
)

// Stream is the decode state of one video asset.
// It opens lazily and is only touched by the frame goroutine.
type Stream struct {
	info  asset.VidInfo
	demux Demuxer
	log   *logger.Logger

	in *input
}

type input struct {
	src      Source
	tex      gfx.Texture
	timeBase rational.Rational
	duration int64
	// frameTicks is the nominal frame length in timebase units
	frameTicks int64

	clock        int64
	lastPTS      int64
	lastDuration int64
	lastReal     int64
	hasReal      bool
	prevSource   int64
	hasPrev      bool
}

func NewStream(info asset.VidInfo, d Demuxer, log *logger.Logger) *Stream {
	return &Stream{
		info:  info,
		demux: d,
		log:   log.Extend(log.With().Str("m", "Stream").Str("c", info.Name)),
	}
}

func (s *Stream) Info() asset.VidInfo { return s.info }

// Prepare opens the source once.
func (s *Stream) Prepare() error {
	if s.in != nil {
		return nil
	}
	src, err := s.demux.Open(ParamsOf(s.info))
	if err != nil {
		return wrapOpen(err)
	}
	si := src.Info()
	if si.FrameRate.Sign() <= 0 || si.TimeBase.Sign() <= 0 {
		_ = src.Close()
		return fmt.Errorf("%w: no frame rate or timebase in %v", ErrSourceOpen, s.info.Path)
	}
	ticks := si.FrameRate.Mul(si.TimeBase).Invert().Floor()
	s.in = &input{
		src:        src,
		timeBase:   si.TimeBase,
		duration:   s.info.Duration().Floor(),
		frameTicks: max(ticks, 1),
	}
	s.log.Debug().Msgf("opened %v %dx%d tb %v fps %v duration %d", s.info.Path, si.W, si.H,
		si.TimeBase, si.FrameRate, s.in.duration)
	return nil
}

// DecodeFrame advances by exactly one output frame.
// At the end of a non repeating stream the last frame stays up
// while the clock keeps going.
func (s *Stream) DecodeFrame(up Uploader) error {
	if err := s.Prepare(); err != nil {
		return err
	}
	in := s.in

	errs, rewound := 0, false
	for {
		for {
			f, err := in.src.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, ErrAgain) {
				continue
			}
			if err != nil {
				errs++
				monitoring.DecodeErrors.WithLabelValues(s.info.Name).Inc()
				s.log.Warn().Err(err).Msgf("decode error %d", errs)
				if errs > maxDecodeErrors {
					return fmt.Errorf("decode %v: %w", s.info.Name, err)
				}
				continue
			}
			if s.info.Realtime {
				if !in.hasPrev {
					in.prevSource, in.hasPrev = f.PTS, true
					continue
				}
				delta := f.PTS - in.prevSource
				in.prevSource = f.PTS
				in.lastReal, in.hasReal = in.clock, true
				in.lastPTS = in.clock
				in.lastDuration = delta
				in.clock += delta
			} else {
				d := f.Duration
				if d <= 0 {
					d = in.frameTicks
				}
				in.lastReal, in.hasReal = in.clock, true
				if f.HasPTS {
					in.lastReal = f.PTS
				}
				in.lastPTS = in.clock
				in.lastDuration = d
				in.clock += d
			}
			return s.upload(up, f.Image)
		}

		// a pass right after a rewind that yields nothing would spin forever
		if !s.info.Repeat || in.duration <= 0 || rewound {
			break
		}
		if err := in.src.Seek(0); err != nil {
			return fmt.Errorf("rewind %v: %w", s.info.Name, err)
		}
		if err := in.src.Flush(); err != nil {
			return fmt.Errorf("rewind %v: %w", s.info.Name, err)
		}
		rewound = true
	}

	in.clock += in.lastDuration
	in.lastPTS = in.clock
	return nil
}

func (s *Stream) upload(up Uploader, img image.Image) error {
	if img == nil {
		return nil
	}
	if s.in.tex == nil {
		b := img.Bounds()
		tex, err := up.NewTexture(uint32(b.Dx()), uint32(b.Dy()))
		if err != nil {
			return err
		}
		s.in.tex = tex
	}
	return up.Upload(s.in.tex, img)
}

// Seek moves a repeating stream to sec seconds, from the start when exact
// and from the last decoded frame otherwise. Targets outside the stream wrap.
func (s *Stream) Seek(sec float64, exact bool, up Uploader) error {
	if s.info.Realtime || !s.info.Repeat {
		return nil
	}
	if err := s.Prepare(); err != nil {
		return err
	}
	in := s.in

	target := rational.FromFloat(sec).Div(in.timeBase)
	if !exact && in.hasReal {
		target = target.Add(rational.Int(in.lastReal))
	}
	duration := rational.Int(in.duration)
	if in.duration > 0 {
		for i := 0; target.Sign() < 0; i++ {
			if i >= maxSeekWraps {
				return fmt.Errorf("seek %v: %v s is too far back", s.info.Name, sec)
			}
			target = target.Add(duration)
		}
		for i := 0; duration.Less(target); i++ {
			if i >= maxSeekWraps {
				return fmt.Errorf("seek %v: %v s is too far ahead", s.info.Name, sec)
			}
			target = target.Sub(duration)
		}
	} else if target.Sign() < 0 {
		target = rational.Zero
	}

	if err := in.src.Seek(target.Floor()); err != nil {
		return fmt.Errorf("seek %v: %w", s.info.Name, err)
	}
	if err := in.src.Flush(); err != nil {
		return fmt.Errorf("seek %v: %w", s.info.Name, err)
	}

	// a seek lands on a key frame, decode forward to the target
	ptsMin := target.Sub(rational.New(in.frameTicks, seekTolerance))
	if ptsMin.Sign() < 0 {
		ptsMin = rational.Zero
	} else if in.duration > 0 && !ptsMin.Less(duration) {
		s.log.Warn().Msgf("seek target %v beyond duration %d, scanning from start", ptsMin, in.duration)
		ptsMin = rational.Zero
	}
	var prev int64
	for i := 0; ; i++ {
		if err := s.DecodeFrame(up); err != nil {
			return err
		}
		last := in.lastReal
		if !rational.Int(last).Less(ptsMin) {
			return nil
		}
		if i > 0 && last < prev {
			return nil
		}
		prev = last
		if i >= maxSeekSteps {
			s.log.Warn().Msgf("seek gave up at %d, target %v, duration %d", last, target, in.duration)
			return nil
		}
	}
}

// Reset drops all decode state, the next decode reopens the source.
func (s *Stream) Reset(up Uploader) error {
	if s.in == nil {
		return nil
	}
	in := s.in
	s.in = nil
	result := multierror.Append(nil, in.src.Close())
	if in.tex != nil && up != nil {
		result = multierror.Append(result, up.DeleteTexture(in.tex))
	}
	return result.ErrorOrNil()
}

// LastFrame is the texture of the last decoded frame, nil before any.
func (s *Stream) LastFrame() gfx.Texture {
	if s.in == nil {
		return nil
	}
	return s.in.tex
}

func (s *Stream) LastFramePTS() int64 {
	if s.in == nil {
		return 0
	}
	return s.in.lastPTS
}

func (s *Stream) LastFrameDuration() int64 {
	if s.in == nil {
		return 0
	}
	return s.in.lastDuration
}

// LastRealPTS is the source timestamp of the last frame.
func (s *Stream) LastRealPTS() (int64, bool) {
	if s.in == nil {
		return 0, false
	}
	return s.in.lastReal, s.in.hasReal
}

// TimeBase is zero until the stream is prepared.
func (s *Stream) TimeBase() rational.Rational {
	if s.in == nil {
		return rational.Zero
	}
	return s.in.timeBase
}

// FrameEvent reports the last frame in seconds.
func (s *Stream) FrameEvent() event.Frame {
	tb := s.TimeBase()
	realPTS, _ := s.LastRealPTS()
	return event.Frame{
		Stream:       s.info.Name,
		RealTs:       rational.Int(realPTS).Mul(tb).Pair(),
		ContinuousTs: rational.Int(s.LastFramePTS()).Mul(tb).Pair(),
	}
}
