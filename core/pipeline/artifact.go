package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kilianp07/eta/core/preprocess"
	"github.com/kilianp07/eta/core/regression"
)

// DefaultPath is where Save and Load place the artifact unless configured.
const DefaultPath = "models/huber_pipeline.json"

type artifact struct {
	Schema      Schema           `json:"schema"`
	Transformer preprocess.State `json:"transformer"`
	Model       regression.State `json:"model"`
	Metadata    Metadata         `json:"metadata"`
}

// Encode writes the pipeline as a single JSON document.
func (p *Pipeline) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(artifact{
		Schema:      p.schema,
		Transformer: p.transformer.State(),
		Model:       p.model.State(),
		Metadata:    p.meta,
	})
}

// Decode reads an artifact and checks it against expected. The columns must
// match exactly and every learned level must be accepted by the expected
// enumerations.
func Decode(r io.Reader, expected Schema) (*Pipeline, error) {
	var a artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := a.Schema.CheckColumns(expected); err != nil {
		return nil, err
	}
	t, err := preprocess.FromState(a.Transformer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	m, err := regression.FromState(a.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return New(expected, t, m, a.Metadata)
}

// Save writes p to path, creating parent directories. The file is replaced
// atomically.
func Save(p *Pipeline, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pipeline-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := p.Encode(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads the artifact at path. See Decode.
func Load(path string, expected Schema) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, expected)
}
