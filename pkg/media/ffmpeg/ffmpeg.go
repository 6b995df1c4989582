// Package ffmpeg decodes video through libav.
package ffmpeg

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/media"
	"github.com/vizrig/vizrig/pkg/rational"
)

var initOnce sync.Once

func initLib() {
	initOnce.Do(func() {
		astiav.RegisterAllDevices()
		astiav.SetLogLevel(astiav.LogLevelError)
	})
}

// Demuxer opens files, urls and capture devices.
type Demuxer struct {
	// HwDevice is the hardware device type used when a stream asks for
	// hardware decoding, e.g. videotoolbox, vaapi or cuda.
	HwDevice string
	log      *logger.Logger
}

func New(hwDevice string, log *logger.Logger) *Demuxer {
	initLib()
	return &Demuxer{HwDevice: hwDevice, log: log.Extend(log.With().Str("m", "FFmpeg"))}
}

type source struct {
	demux  *Demuxer
	fc     *astiav.FormatContext
	stream *astiav.Stream
	codec  *astiav.Codec
	cc     *astiav.CodecContext
	// hw is owned by cc and released with it
	hw    *astiav.HardwareDeviceContext
	hwOn  bool
	sws   *astiav.SoftwareScaleContext
	pkt   *astiav.Packet
	frame *astiav.Frame
	sw    *astiav.Frame
	rgba  *astiav.Frame

	index    int
	info     media.StreamInfo
	draining bool
	pending  durations
}

func (d *Demuxer) Open(p media.Params) (media.Source, error) {
	s := &source{demux: d, fc: astiav.AllocFormatContext(), hwOn: p.HardwareDecode}
	if s.fc == nil {
		return nil, fmt.Errorf("%w: alloc format context", media.ErrSourceOpen)
	}
	if err := s.open(d, p); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v: %w", media.ErrSourceOpen, p.Path, err)
	}
	return s, nil
}

func (s *source) open(d *Demuxer, p media.Params) error {
	var format *astiav.InputFormat
	if p.Format != nil {
		if format = astiav.FindInputFormat(*p.Format); format == nil {
			return fmt.Errorf("unknown format %q", *p.Format)
		}
	}
	opts := astiav.NewDictionary()
	defer opts.Free()
	for _, o := range p.Opts {
		if err := opts.Set(o[0], o[1], astiav.NewDictionaryFlags()); err != nil {
			return fmt.Errorf("option %v: %w", o[0], err)
		}
	}
	if err := s.fc.OpenInput(p.Path, format, opts); err != nil {
		return err
	}
	if err := s.fc.FindStreamInfo(nil); err != nil {
		return err
	}

	var stream *astiav.Stream
	for _, st := range s.fc.Streams() {
		if st.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			stream = st
			break
		}
	}
	if stream == nil {
		return errors.New("no video stream")
	}
	s.index = stream.Index()
	s.stream = stream

	if p.Codec != nil {
		s.codec = astiav.FindDecoderByName(*p.Codec)
	} else {
		s.codec = astiav.FindDecoder(stream.CodecParameters().CodecID())
	}
	if s.codec == nil {
		return errors.New("no decoder")
	}
	if err := s.openCodec(); err != nil {
		return err
	}

	fps := rate(stream.RFrameRate())
	if fps.Sign() <= 0 {
		fps = rate(stream.AvgFrameRate())
	}
	if fps.Sign() <= 0 {
		return errors.New("no frame rate")
	}
	tb := rate(stream.TimeBase())
	duration := stream.Duration()
	if duration <= 0 && s.fc.Duration() > 0 {
		duration = astiav.RescaleQ(s.fc.Duration(), astiav.NewRational(1, astiav.TimeBase), stream.TimeBase())
	}
	s.info = media.StreamInfo{
		W:         uint32(s.cc.Width()),
		H:         uint32(s.cc.Height()),
		TimeBase:  tb,
		Duration:  max(duration, 0),
		FrameRate: fps,
	}

	s.pkt = astiav.AllocPacket()
	s.frame = astiav.AllocFrame()
	s.sw = astiav.AllocFrame()
	s.rgba = astiav.AllocFrame()
	return nil
}

// openCodec sets up a fresh decoder for the selected stream.
func (s *source) openCodec() error {
	cc := astiav.AllocCodecContext(s.codec)
	if cc == nil {
		return errors.New("alloc codec context")
	}
	s.cc = cc
	err := s.stream.CodecParameters().ToCodecContext(cc)
	if err == nil {
		if s.hwOn {
			s.initHardware(s.demux)
		}
		err = cc.Open(s.codec, nil)
	}
	if err != nil {
		cc.Free()
		s.cc, s.hw = nil, nil
	}
	return err
}

// initHardware falls back to software decoding when the device is missing.
func (s *source) initHardware(d *Demuxer) {
	t := astiav.FindHardwareDeviceTypeByName(d.HwDevice)
	if t == astiav.HardwareDeviceTypeNone {
		d.log.Warn().Msgf("unknown hw device %q, decoding in software", d.HwDevice)
		return
	}
	hw, err := astiav.CreateHardwareDeviceContext(t, "", nil)
	if err != nil {
		d.log.Warn().Err(err).Msgf("no %v device, decoding in software", d.HwDevice)
		return
	}
	s.hw = hw
	s.cc.SetHardwareDeviceContext(hw)
}

func rate(r astiav.Rational) rational.Rational {
	if r.Den() == 0 {
		return rational.Zero
	}
	return rational.New(int64(r.Num()), int64(r.Den()))
}

func (s *source) Info() media.StreamInfo { return s.info }

func (s *source) Next() (media.Frame, error) {
	if s.cc == nil {
		return media.Frame{}, errors.New("decoder closed after a failed flush")
	}
	for {
		err := s.cc.ReceiveFrame(s.frame)
		if err == nil {
			return s.convert()
		}
		if errors.Is(err, astiav.ErrEof) {
			return media.Frame{}, io.EOF
		}
		if !errors.Is(err, astiav.ErrEagain) {
			return media.Frame{}, err
		}

		if err = s.fc.ReadFrame(s.pkt); err != nil {
			if !errors.Is(err, astiav.ErrEof) {
				return media.Frame{}, err
			}
			if s.draining {
				return media.Frame{}, io.EOF
			}
			// push out frames still held by the decoder
			s.draining = true
			if err = s.cc.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
				return media.Frame{}, err
			}
			continue
		}
		if s.pkt.StreamIndex() != s.index {
			s.pkt.Unref()
			continue
		}
		s.pending.add(s.pkt.Pts(), s.pkt.Duration())
		err = s.cc.SendPacket(s.pkt)
		s.pkt.Unref()
		if err != nil && !errors.Is(err, astiav.ErrEagain) {
			return media.Frame{}, err
		}
	}
}

func (s *source) convert() (media.Frame, error) {
	defer s.frame.Unref()

	src := s.frame
	if s.hw != nil {
		// frames stay on the device unless copied, software frames refuse the transfer
		if err := s.frame.TransferHardwareData(s.sw); err == nil {
			defer s.sw.Unref()
			src = s.sw
		}
	}

	if s.sws == nil || s.rgba.Width() != src.Width() || s.rgba.Height() != src.Height() {
		if s.sws != nil {
			s.sws.Free()
			s.rgba.Unref()
		}
		s.rgba.SetWidth(src.Width())
		s.rgba.SetHeight(src.Height())
		s.rgba.SetPixelFormat(astiav.PixelFormatRgba)
		if err := s.rgba.AllocBuffer(1); err != nil {
			return media.Frame{}, err
		}
		sws, err := astiav.CreateSoftwareScaleContext(src.Width(), src.Height(), src.PixelFormat(),
			src.Width(), src.Height(), astiav.PixelFormatRgba,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear))
		if err != nil {
			return media.Frame{}, err
		}
		s.sws = sws
	}
	if err := s.sws.ScaleFrame(src, s.rgba); err != nil {
		return media.Frame{}, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, src.Width(), src.Height()))
	if err := s.rgba.Data().ToImage(img); err != nil {
		return media.Frame{}, err
	}
	pts := s.frame.Pts()
	f := media.Frame{Image: img, PTS: pts, HasPTS: pts != astiav.NoPtsValue}
	if f.HasPTS {
		f.Duration = s.pending.take(pts)
	}
	return f, nil
}

func (s *source) Seek(ts int64) error {
	s.draining = false
	return s.fc.SeekFrame(s.index, ts, astiav.NewSeekFlags(astiav.SeekFlagBackward))
}

// Flush reopens the decoder, dropping every frame it still holds.
func (s *source) Flush() error {
	s.draining = false
	s.pending.reset()
	if s.cc != nil {
		s.cc.Free()
		s.cc, s.hw = nil, nil
	}
	return s.openCodec()
}

func (s *source) Close() error {
	for _, f := range []*astiav.Frame{s.frame, s.sw, s.rgba} {
		if f != nil {
			f.Free()
		}
	}
	if s.pkt != nil {
		s.pkt.Free()
	}
	if s.sws != nil {
		s.sws.Free()
	}
	if s.cc != nil {
		s.cc.Free()
	}
	if s.fc != nil {
		s.fc.CloseInput()
		s.fc.Free()
	}
	return nil
}
