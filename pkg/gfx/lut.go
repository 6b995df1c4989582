package gfx

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var ErrCube = errors.New("bad cube file")

// Cube is a parsed 3D .cube color table.
// Data holds Size^3 rgb triplets, red changing fastest.
type Cube struct {
	Path      string
	Title     string
	Size      int
	DomainMin [3]float32
	DomainMax [3]float32
	Data      []float32
}

func LoadCube(path string) (*Cube, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	c, err := ParseCube(f)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	c.Path = path
	return c, nil
}

func ParseCube(r io.Reader) (*Cube, error) {
	c := Cube{DomainMax: [3]float32{1, 1, 1}}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || s[0] == '#' {
			continue
		}
		fields := strings.Fields(s)
		switch fields[0] {
		case "TITLE":
			c.Title = strings.Trim(strings.TrimSpace(strings.TrimPrefix(s, "TITLE")), `"`)
		case "LUT_3D_SIZE":
			if len(fields) != 2 {
				return nil, fmt.Errorf("%w: line %d", ErrCube, line)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 2 || n > 256 {
				return nil, fmt.Errorf("%w: size %q", ErrCube, fields[1])
			}
			c.Size = n
			c.Data = make([]float32, 0, n*n*n*3)
		case "LUT_1D_SIZE":
			return nil, fmt.Errorf("%w: 1D tables are not supported", ErrCube)
		case "DOMAIN_MIN", "DOMAIN_MAX":
			v, err := triplet(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrCube, line, err)
			}
			if fields[0] == "DOMAIN_MIN" {
				c.DomainMin = v
			} else {
				c.DomainMax = v
			}
		default:
			if c.Size == 0 {
				return nil, fmt.Errorf("%w: data before LUT_3D_SIZE at line %d", ErrCube, line)
			}
			v, err := triplet(fields)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrCube, line, err)
			}
			c.Data = append(c.Data, v[:]...)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if c.Size == 0 || len(c.Data) != c.Size*c.Size*c.Size*3 {
		return nil, fmt.Errorf("%w: got %d values for size %d", ErrCube, len(c.Data)/3, c.Size)
	}
	return &c, nil
}

func triplet(f []string) (v [3]float32, err error) {
	if len(f) != 3 {
		return v, fmt.Errorf("want 3 values, got %d", len(f))
	}
	for i := range v {
		x, err := strconv.ParseFloat(f[i], 32)
		if err != nil {
			return v, err
		}
		v[i] = float32(x)
	}
	return v, nil
}

// Apply looks up an rgb color with trilinear interpolation.
func (c *Cube) Apply(rgb [3]float32) [3]float32 {
	n := c.Size - 1
	var idx [3]int
	var frac [3]float32
	for i := range rgb {
		x := (rgb[i] - c.DomainMin[i]) / (c.DomainMax[i] - c.DomainMin[i])
		x = min(max(x, 0), 1) * float32(n)
		idx[i] = min(int(x), n-1)
		frac[i] = x - float32(idx[i])
	}
	at := func(r, g, b int) [3]float32 {
		o := ((b*c.Size+g)*c.Size + r) * 3
		return [3]float32{c.Data[o], c.Data[o+1], c.Data[o+2]}
	}
	var out [3]float32
	for corner := 0; corner < 8; corner++ {
		w := float32(1)
		var p [3]int
		for i := 0; i < 3; i++ {
			if corner&(1<<i) != 0 {
				p[i] = idx[i] + 1
				w *= frac[i]
			} else {
				p[i] = idx[i]
				w *= 1 - frac[i]
			}
		}
		if w == 0 {
			continue
		}
		v := at(p[0], p[1], p[2])
		for i := range out {
			out[i] += w * v[i]
		}
	}
	return out
}
