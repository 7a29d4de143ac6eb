// Package classifier loads the trained fogger decision tree from its JSON
// export and evaluates it.
//
// The artifact mirrors a fitted tree's arrays: node i splits on
// feature[i] at threshold[i], going to children_left[i] when the value is
// <= threshold and children_right[i] otherwise. Leaves have -1 children and
// carry their class (0 or 1) in value[i].
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"furitingoasis/fogger/control"
)

// ErrUnavailable wraps every failure to load a usable model.
var ErrUnavailable = errors.New("classifier unavailable")

const leaf = -1

type artifact struct {
	Features      []string  `json:"features"`
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	Value         []int     `json:"value"`
}

// Tree is a loaded decision tree.
type Tree struct {
	schema control.FeatureSchema
	a      artifact
}

// Load reads and validates the model file at path.
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse validates a model held in memory.
func Parse(data []byte) (*Tree, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: decoding model: %v", ErrUnavailable, err)
	}
	schema, err := schemaFor(a.Features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Tree{schema: schema, a: a}, nil
}

func schemaFor(cols []string) (control.FeatureSchema, error) {
	for _, s := range []control.FeatureSchema{control.SchemaTempHumidity, control.SchemaTempHumidityHour} {
		want := s.Columns()
		if len(cols) != len(want) {
			continue
		}
		match := true
		for i := range want {
			if cols[i] != want[i] {
				match = false
				break
			}
		}
		if match {
			return s, nil
		}
	}
	return "", fmt.Errorf("model features %v match no known schema", cols)
}

func (a *artifact) validate() error {
	n := len(a.ChildrenLeft)
	if n == 0 {
		return errors.New("model has no nodes")
	}
	if len(a.ChildrenRight) != n || len(a.Feature) != n || len(a.Threshold) != n || len(a.Value) != n {
		return errors.New("model node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		l, r := a.ChildrenLeft[i], a.ChildrenRight[i]
		if l == leaf || r == leaf {
			if l != r {
				return fmt.Errorf("node %d has exactly one child", i)
			}
			if a.Value[i] != 0 && a.Value[i] != 1 {
				return fmt.Errorf("leaf %d has class %d, want 0 or 1", i, a.Value[i])
			}
			continue
		}
		// Children always come after their parent, so every walk terminates.
		if l <= i || r <= i || l >= n || r >= n {
			return fmt.Errorf("node %d has children out of order (%d, %d)", i, l, r)
		}
		if a.Feature[i] < 0 || a.Feature[i] >= len(a.Features) {
			return fmt.Errorf("node %d splits on unknown feature %d", i, a.Feature[i])
		}
	}
	return nil
}

// Schema reports the feature layout the tree was trained on.
func (t *Tree) Schema() control.FeatureSchema {
	return t.schema
}

// Nodes is the number of nodes in the tree.
func (t *Tree) Nodes() int {
	return len(t.a.ChildrenLeft)
}

// Predict walks the tree for f. A vector shorter than the schema (which
// NewController rules out) yields false.
func (t *Tree) Predict(f control.Features) control.Verdict {
	x := f.Vector()
	i := 0
	for t.a.ChildrenLeft[i] != leaf {
		k := t.a.Feature[i]
		if k >= len(x) {
			return false
		}
		if x[k] <= t.a.Threshold[i] {
			i = t.a.ChildrenLeft[i]
		} else {
			i = t.a.ChildrenRight[i]
		}
	}
	return t.a.Value[i] == 1
}
