package regression

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

var ErrInvalidArtifact = errors.New("invalid model artifact")

// Metrics are the hold-out scores recorded at training time.
type Metrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// Artifact is everything the prediction service needs from a training run:
// the fitted model, its declared family, the ordered feature schema and the
// scaler fitted on the training split.
type Artifact struct {
	ID        string
	Name      string
	Family    Family
	Features  []string
	Scaler    *Scaler
	Model     Model
	Metrics   Metrics
	TrainedAt time.Time
}

type artifactJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Family    Family    `json:"family"`
	Features  []string  `json:"features"`
	Scaler    *Scaler   `json:"scaler,omitempty"`
	Linear    *Linear   `json:"linear,omitempty"`
	Ensemble  *Ensemble `json:"ensemble,omitempty"`
	Metrics   Metrics   `json:"metrics"`
	TrainedAt time.Time `json:"trained_at"`
}

func (a *Artifact) MarshalJSON() ([]byte, error) {
	out := artifactJSON{
		ID:        a.ID,
		Name:      a.Name,
		Family:    a.Family,
		Features:  a.Features,
		Scaler:    a.Scaler,
		Metrics:   a.Metrics,
		TrainedAt: a.TrainedAt,
	}
	switch m := a.Model.(type) {
	case *Linear:
		out.Linear = m
	case *Ensemble:
		out.Ensemble = m
	default:
		return nil, fmt.Errorf("%w: unsupported model type %T", ErrInvalidArtifact, a.Model)
	}
	return json.Marshal(out)
}

func (a *Artifact) UnmarshalJSON(data []byte) error {
	var in artifactJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*a = Artifact{
		ID:        in.ID,
		Name:      in.Name,
		Family:    in.Family,
		Features:  in.Features,
		Scaler:    in.Scaler,
		Metrics:   in.Metrics,
		TrainedAt: in.TrainedAt,
	}
	switch in.Family {
	case FamilyLinear:
		if in.Linear != nil {
			a.Model = in.Linear
		}
	case FamilyEnsemble:
		if in.Ensemble != nil {
			a.Model = in.Ensemble
		}
	}
	return nil
}

// Validate checks that the artifact is internally consistent so scoring can
// never misalign or index out of range.
func (a *Artifact) Validate() error {
	if len(a.Features) == 0 {
		return fmt.Errorf("%w: empty feature schema", ErrInvalidArtifact)
	}
	if a.Model == nil {
		return fmt.Errorf("%w: no model for family %q", ErrInvalidArtifact, a.Family)
	}
	n := len(a.Features)

	if a.Scaler != nil && (len(a.Scaler.Mean) != n || len(a.Scaler.Scale) != n) {
		return fmt.Errorf("%w: scaler has %d/%d entries for %d features",
			ErrInvalidArtifact, len(a.Scaler.Mean), len(a.Scaler.Scale), n)
	}

	switch a.Family {
	case FamilyLinear:
		if a.Scaler == nil {
			return fmt.Errorf("%w: linear model without scaler", ErrInvalidArtifact)
		}
		if l, ok := a.Model.(*Linear); ok && len(l.Coefficients) != n {
			return fmt.Errorf("%w: %d coefficients for %d features", ErrInvalidArtifact, len(l.Coefficients), n)
		}
	case FamilyEnsemble:
		if e, ok := a.Model.(*Ensemble); ok {
			if len(e.Trees) == 0 {
				return fmt.Errorf("%w: ensemble has no trees", ErrInvalidArtifact)
			}
			for i := range e.Trees {
				if err := e.Trees[i].validate(n); err != nil {
					return fmt.Errorf("%w: tree %d: %v", ErrInvalidArtifact, i, err)
				}
			}
		}
	default:
		return fmt.Errorf("%w: unknown model family %q", ErrInvalidArtifact, a.Family)
	}
	return nil
}

// Decode reads and validates an artifact.
func Decode(r io.Reader) (*Artifact, error) {
	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Load opens and decodes the artifact stored at path.
func Load(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model artifact: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Encode validates a and writes it as indented JSON.
func (a *Artifact) Encode(w io.Writer) error {
	if err := a.Validate(); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// Save writes the artifact to path, replacing any existing file.
func (a *Artifact) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create model artifact: %w", err)
	}
	if err := a.Encode(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
