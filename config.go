package gsdae

import (
	"io"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Config is the YAML-serializable subset of a Solver's tunables, mirroring
// the teacher's Config struct (Domain/Log/Behaviour/Algorithm sections) but
// scoped to this solver's step-control and tolerance knobs.
type Config struct {
	Step struct {
		Initial float64 `yaml:"initial"`
		Min     float64 `yaml:"min"`
		Max     float64 `yaml:"max"`
	} `yaml:"step"`
	Condition struct {
		Max float64 `yaml:"max"`
	} `yaml:"condition"`
	Tolerance struct {
		AbsX float64 `yaml:"abs_x"`
		RelX float64 `yaml:"rel_x"`
		AbsY float64 `yaml:"abs_y"`
		RelY float64 `yaml:"rel_y"`
	} `yaml:"tolerance"`
	Log struct {
		Steps bool `yaml:"steps"`
	} `yaml:"log"`
}

// DefaultConfig returns the spec's documented first-call defaults: hmin =
// 1e-16, h = 10*hmin, cdmax = 1e6.
func DefaultConfig() Config {
	var c Config
	c.Step.Min = 1e-16
	c.Step.Initial = 10 * c.Step.Min
	c.Step.Max = 0
	c.Condition.Max = 1e6
	c.Tolerance.AbsX, c.Tolerance.RelX = 1e-10, 1e-8
	c.Tolerance.AbsY, c.Tolerance.RelY = 1e-10, 1e-8
	return c
}

// LoadConfig reads a YAML configuration from r, starting from DefaultConfig
// so unset fields keep their documented defaults.
func LoadConfig(r io.Reader) (Config, error) {
	c := DefaultConfig()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return c, err
	}
	return c, nil
}

// Tolerances holds the per-component absolute/relative tolerance arrays
// (mode 1/2 of spec.md §4.9's infoinput index 3) alongside the scalar x
// tolerances. scalarY selects mode 1 (same scalar broadcast to every
// component) over mode 2 (independently supplied atoly/rtoly matrices).
type Tolerances struct {
	AbsX, RelX float64
	AbsY, RelY *mat.Dense // shape (o+1) x n, mode 2 only
	scalarY    bool
	scalarAbsY, scalarRelY float64
}

// NewScalarTolerances builds mode-0/1 tolerances: one (atol,rtol) pair for x
// and a second pair broadcast to every y/y'/.../y^(o) component.
func NewScalarTolerances(atolX, rtolX, atolY, rtolY float64) Tolerances {
	return Tolerances{
		AbsX: atolX, RelX: rtolX,
		scalarY: true, scalarAbsY: atolY, scalarRelY: rtolY,
	}
}

// NewComponentTolerances builds mode-2 tolerances with independent per-
// component absolute/relative arrays for y.
func NewComponentTolerances(atolX, rtolX float64, atolY, rtolY *mat.Dense) Tolerances {
	return Tolerances{AbsX: atolX, RelX: rtolX, AbsY: atolY, RelY: rtolY}
}

func (t Tolerances) atolY(j, i int) float64 {
	if t.scalarY {
		return t.scalarAbsY
	}
	return t.AbsY.At(j, i)
}

func (t Tolerances) rtolY(j, i int) float64 {
	if t.scalarY {
		return t.scalarRelY
	}
	return t.RelY.At(j, i)
}
