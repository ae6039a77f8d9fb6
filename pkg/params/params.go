// Package params loads and validates the process-wide, immutable
// Parameters every role agrees on for the duration of one benchmark run:
// encryption variant, integer bit width, batch shape, and data-handling
// mode. Parameters are read from a YAML file, defaulted and validated on
// load, and never mutated afterward.
package params

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Variant selects which pipeline a run measures.
type Variant string

const (
	HE  Variant = "HE"
	HHE Variant = "HHE"
)

// DataHandling selects how a role moves ciphertexts between batch
// production and the downstream party.
type DataHandling string

const (
	AllAtOnce        DataHandling = "ALL_AT_ONCE"
	SingleComponent  DataHandling = "SINGLE_COMPONENT"
	TransmitTFHE     DataHandling = "TRANSMIT_TFHE"
	TransmitKreyvium DataHandling = "TRANSMIT_KREYVIUM"
)

// Endpoints holds the queue endpoints the three roles bind and connect to.
// The upstream party in each leg binds; the downstream party connects, per
// the transport's design notes.
type Endpoints struct {
	KreyviumBind string `yaml:"kreyvium_bind"` // Client binds, Server connects
	HEBind       string `yaml:"he_bind"`       // Client binds, TTP connects (HE)
	TFHEBind     string `yaml:"tfhe_bind"`     // Server binds, TTP connects (HHE)
}

// MetricsConfig enables the optional Redis/Postgres sidecar mirror of
// PerfLogger batch-completion events. Disabled by default; never required
// for correctness.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Redis    string `yaml:"redis_addr"`
	Postgres string `yaml:"postgres_dsn"`
}

// Parameters is the immutable, process-wide configuration every role loads
// at start and never mutates thereafter. All three roles of a run must
// agree on every field.
type Parameters struct {
	Variant      Variant      `yaml:"variant"`
	IntBits      int          `yaml:"int_bits"`
	BatchSize    int          `yaml:"batch_size"`
	BatchCount   int          `yaml:"batch_count"`
	DataHandling DataHandling `yaml:"data_handling"`
	StorageRoot  string       `yaml:"storage_root"`
	Endpoints    Endpoints    `yaml:"endpoints"`
	Metrics      MetricsConfig `yaml:"metrics"`
}

// Default returns the parameter set a fresh -generate-config run writes:
// an HHE benchmark with a small batch shape, suitable as a starting point
// for a real run's YAML file.
func Default() *Parameters {
	return &Parameters{
		Variant:      HHE,
		IntBits:      8,
		BatchSize:    4,
		BatchCount:   4,
		DataHandling: AllAtOnce,
		StorageRoot:  "./storage",
		Endpoints: Endpoints{
			KreyviumBind: "ws://0.0.0.0:5556/kreyvium",
			HEBind:       "ws://0.0.0.0:5557/tfhe",
			TFHEBind:     "ws://0.0.0.0:5557/tfhe",
		},
	}
}

// Load reads and validates Parameters from a YAML file at path, applying
// Default's values for any field the file omits.
func Load(path string) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameters file %q: %w", path, err)
	}

	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing parameters file %q: %w", path, err)
	}

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return p, nil
}

// Write serializes p as YAML to path, creating the file if it does not
// exist. Used by each role's -generate-config bootstrap flag.
func Write(p *Parameters, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling parameters: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing parameters file %q: %w", path, err)
	}
	return nil
}

var validIntBits = map[int]bool{8: true, 16: true, 32: true, 64: true, 128: true}

func (p *Parameters) validate() error {
	if p.Variant != HE && p.Variant != HHE {
		return fmt.Errorf("variant must be HE or HHE, got %q", p.Variant)
	}
	if !validIntBits[p.IntBits] {
		return fmt.Errorf("int_bits must be one of 8,16,32,64,128, got %d", p.IntBits)
	}
	if p.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1, got %d", p.BatchSize)
	}
	if p.BatchCount < 1 {
		return fmt.Errorf("batch_count must be >= 1, got %d", p.BatchCount)
	}
	switch p.DataHandling {
	case AllAtOnce, SingleComponent, TransmitTFHE, TransmitKreyvium:
	default:
		return fmt.Errorf("data_handling must be one of ALL_AT_ONCE, SINGLE_COMPONENT, TRANSMIT_TFHE, TRANSMIT_KREYVIUM, got %q", p.DataHandling)
	}
	if p.Variant == HE && (p.DataHandling == TransmitKreyvium) {
		return fmt.Errorf("data_handling TRANSMIT_KREYVIUM is not valid for variant HE")
	}
	if p.StorageRoot == "" {
		return fmt.Errorf("storage_root must not be empty")
	}
	return nil
}

// IntBytes returns the width of one IntegerBlock in bytes.
func (p *Parameters) IntBytes() int { return p.IntBits / 8 }
