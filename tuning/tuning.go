// Package tuning loads terrain profiles from YAML files.
package tuning

import (
	"bytes"
	"io"
	"os"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/lodterrain/streaming"
	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

const (
	// ErrTypeInvalidProfile is the error type returned when a profile can't
	// be decoded.
	ErrTypeInvalidProfile = "tuning_invalid_profile"
)

// Profile describes a terrain. Fields left out of the file keep the value
// of the configuration the profile is applied to.
type Profile struct {
	Name           string   `yaml:"name"`
	Root           *Root    `yaml:"root"`
	MinChunkSize   float64  `yaml:"min_chunk_size"`
	SizeMultiplier *float64 `yaml:"size_multiplier"`
	LODBaseSize    int      `yaml:"lod_base_size"`
	MaxLODLevel    *int     `yaml:"max_lod_level"`
	PoolCapacity   int      `yaml:"pool_capacity"`
	MeshWorkers    int      `yaml:"mesh_workers"`
}

// Root is the square covered by the terrain.
type Root struct {
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	Size float64 `yaml:"size"`
}

// Load reads the profile stored at the given path.
func Load(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, errors.New("reading terrain profile failed").
			WithTag("path", path).
			Wrap(err)
	}

	p, err := Parse(raw)
	if err != nil {
		return Profile{}, errors.New("loading terrain profile failed").
			WithTag("path", path).
			Wrap(err)
	}
	return p, nil
}

// Parse decodes a profile. Unknown keys are rejected.
func Parse(raw []byte) (Profile, error) {
	var p Profile

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return Profile{}, errors.New("decoding terrain profile failed").
			WithType(ErrTypeInvalidProfile).
			Wrap(err)
	}
	return p, nil
}

// Apply overrides the configuration with the fields set in the profile.
func (p Profile) Apply(conf *streaming.Config) {
	if p.Name != "" {
		conf.Name = p.Name
	}

	if p.Root != nil {
		conf.RootPosition = mgl64.Vec2{p.Root.X, p.Root.Y}
		conf.RootSize = p.Root.Size
	}

	if p.MinChunkSize != 0 {
		conf.MinChunkSize = p.MinChunkSize
	}

	if p.SizeMultiplier != nil {
		conf.SizeMultiplier = *p.SizeMultiplier
	}

	if p.LODBaseSize != 0 {
		conf.LODBaseSize = p.LODBaseSize
	}

	if p.MaxLODLevel != nil {
		level := *p.MaxLODLevel
		conf.MaxLODLevel = &level
	}

	if p.PoolCapacity != 0 {
		conf.PoolCapacity = p.PoolCapacity
	}

	if p.MeshWorkers != 0 {
		conf.MeshWorkers = p.MeshWorkers
	}
}
