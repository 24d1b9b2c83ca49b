package solver

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/micromech/spectral/constitutive"
	"github.com/micromech/spectral/grid"
	"github.com/micromech/spectral/tensor"
)

// Restart record names. Each record is a flat dump of the corresponding
// field or tensor in storage order, written at successful increment
// boundaries and read back in full before the first residual evaluation of a
// restarted run.
const (
	recDefgrad        = "convergedDefgrad"
	recDefgradLastInc = "convergedDefgradLastInc"
	recLambda         = "convergedDefgradLambda"
	recLambdaLastInc  = "convergedDefgradLambdaLastInc"
	recFaim           = "F_aim"
	recFaimLastInc    = "F_aim_lastInc"
	recCref           = "C_ref"
)

// RecordStore persists named flat float64 records.
type RecordStore interface {
	Write(name string, data []float64) error
	Read(name string) ([]float64, error)
}

// DirStore keeps one little-endian binary file per record in a directory.
type DirStore struct {
	Dir string
}

// NewDirStore creates the backing directory if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("solver: restart directory: %w", err)
	}
	return &DirStore{Dir: dir}, nil
}

// Write dumps data as consecutive little-endian float64 values.
func (s *DirStore) Write(name string, data []float64) error {
	buf := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	if err := os.WriteFile(filepath.Join(s.Dir, name+".bin"), buf, 0o644); err != nil {
		return fmt.Errorf("solver: writing restart record %q: %w", name, err)
	}
	return nil
}

// Read loads a record in full. A missing or truncated record is an error;
// callers treat that as fatal for a restart.
func (s *DirStore) Read(name string) ([]float64, error) {
	buf, err := os.ReadFile(filepath.Join(s.Dir, name+".bin"))
	if err != nil {
		return nil, fmt.Errorf("solver: reading restart record %q: %w", name, err)
	}
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("solver: restart record %q is corrupt: %d bytes", name, len(buf))
	}
	data := make([]float64, len(buf)/8)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return data, nil
}

// WriteRestart serializes the converged state. Call at successful increment
// boundaries only, after FinishIncrement.
func (c *Context) WriteRestart(store RecordStore) error {
	records := []struct {
		name string
		data []float64
	}{
		{recDefgrad, c.F.Data},
		{recDefgradLastInc, c.FLastInc.Data},
		{recLambda, c.Flambda.Data},
		{recLambdaLastInc, c.FlambdaLastInc.Data},
		{recFaim, c.Faim[:]},
		{recFaimLastInc, c.FaimLastInc[:]},
		{recCref, c.Cscale[:]},
	}
	for _, rec := range records {
		if err := store.Write(rec.name, rec.data); err != nil {
			return err
		}
	}
	return nil
}

// RestoreContext rebuilds a solve from persisted records instead of identity
// initial conditions. Every record must be present and sized to the grid.
func RestoreContext(g *grid.Grid, cfg Config, resp constitutive.Responder, store RecordStore) (*Context, error) {
	cref, err := readTensor3333(store, recCref)
	if err != nil {
		return nil, err
	}
	c, err := NewContext(g, cfg, resp, cref)
	if err != nil {
		return nil, err
	}
	if err := readField(store, recDefgrad, c.F); err != nil {
		return nil, err
	}
	if err := readField(store, recDefgradLastInc, c.FLastInc); err != nil {
		return nil, err
	}
	if err := readField(store, recLambda, c.Flambda); err != nil {
		return nil, err
	}
	if err := readField(store, recLambdaLastInc, c.FlambdaLastInc); err != nil {
		return nil, err
	}
	if c.Faim, err = readTensor33(store, recFaim); err != nil {
		return nil, err
	}
	if c.FaimLastInc, err = readTensor33(store, recFaimLastInc); err != nil {
		return nil, err
	}
	return c, nil
}

func readField(store RecordStore, name string, dst *grid.Field) error {
	data, err := store.Read(name)
	if err != nil {
		return err
	}
	if len(data) != len(dst.Data) {
		return fmt.Errorf("solver: restart record %q has %d values, grid needs %d", name, len(data), len(dst.Data))
	}
	copy(dst.Data, data)
	return nil
}

func readTensor33(store RecordStore, name string) (tensor.T33, error) {
	var t tensor.T33
	data, err := store.Read(name)
	if err != nil {
		return t, err
	}
	if len(data) != 9 {
		return t, fmt.Errorf("solver: restart record %q has %d values, want 9", name, len(data))
	}
	copy(t[:], data)
	return t, nil
}

func readTensor3333(store RecordStore, name string) (tensor.T3333, error) {
	var t tensor.T3333
	data, err := store.Read(name)
	if err != nil {
		return t, err
	}
	if len(data) != 81 {
		return t, fmt.Errorf("solver: restart record %q has %d values, want 81", name, len(data))
	}
	copy(t[:], data)
	return t, nil
}
