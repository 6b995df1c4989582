package media

import (
	"errors"
	"fmt"

	"github.com/vizrig/vizrig/pkg/asset"
	"github.com/vizrig/vizrig/pkg/rational"
)

// Probe resolves a video descriptor into its info without keeping the
// source open. It does no GPU work and may run off the frame goroutine.
func Probe(d Demuxer, v asset.Video) (asset.VidInfo, error) {
	if err := v.Validate(); err != nil {
		return asset.VidInfo{}, err
	}
	paths := asset.VideoPaths(v.Path)
	if len(paths) != 1 {
		return asset.VidInfo{}, fmt.Errorf("%w: %v matches %d files, want one", ErrSourceOpen, v.Path, len(paths))
	}

	info := asset.VidInfo{
		Name:           v.Name,
		Path:           paths[0],
		Repeat:         v.Repeat,
		Codec:          v.Codec,
		Format:         v.Format,
		Opts:           v.Opts,
		Realtime:       v.Realtime,
		HardwareDecode: v.HardwareDecode,
		SoftwareFilter: v.SoftwareFilter,
	}
	src, err := d.Open(ParamsOf(info))
	if err != nil {
		return asset.VidInfo{}, wrapOpen(err)
	}
	defer func() { _ = src.Close() }()

	si := src.Info()
	if si.FrameRate.Sign() <= 0 {
		return asset.VidInfo{}, fmt.Errorf("%w: no frame rate in %v", ErrSourceOpen, info.Path)
	}
	info.Size = [2]uint32{si.W, si.H}
	info.DurationTbuQ = rational.Int(max(si.Duration, 0)).Pair()
	info.TimebaseQ = si.TimeBase.Pair()
	return info, nil
}

func wrapOpen(err error) error {
	if errors.Is(err, ErrSourceOpen) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSourceOpen, err)
}
