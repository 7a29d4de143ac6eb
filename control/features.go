package control

import "fmt"

// FeatureSchema names the feature layout the bound classifier was trained on.
type FeatureSchema string

const (
	SchemaTempHumidity     FeatureSchema = "temp_humidity"
	SchemaTempHumidityHour FeatureSchema = "temp_humidity_hour"
)

// ParseFeatureSchema validates a configured schema name.
func ParseFeatureSchema(s string) (FeatureSchema, error) {
	switch FeatureSchema(s) {
	case SchemaTempHumidity, SchemaTempHumidityHour:
		return FeatureSchema(s), nil
	}
	return "", fmt.Errorf("unknown feature schema %q", s)
}

// Arity is the length of the vector handed to the classifier.
func (s FeatureSchema) Arity() int {
	if s == SchemaTempHumidityHour {
		return 3
	}
	return 2
}

// Columns lists the feature names in vector order.
func (s FeatureSchema) Columns() []string {
	if s == SchemaTempHumidityHour {
		return []string{"temperature", "humidity", "hour"}
	}
	return []string{"temperature", "humidity"}
}

// Features is the classifier input for one cycle.
type Features struct {
	Schema      FeatureSchema `json:"schema"`
	Temperature float64       `json:"temperature"`
	Humidity    float64       `json:"humidity"`
	Hour        int           `json:"hour"`
}

// Vector returns the ordered numeric tuple for the schema.
func (f Features) Vector() []float64 {
	v := []float64{f.Temperature, f.Humidity}
	if f.Schema == SchemaTempHumidityHour {
		v = append(v, float64(f.Hour))
	}
	return v
}

// Classifier is the trained fogger model.
type Classifier interface {
	Predict(f Features) Verdict
}

// SchemaReporter is implemented by classifiers that know which schema they
// were trained on.
type SchemaReporter interface {
	Schema() FeatureSchema
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(f Features) Verdict

func (fn ClassifierFunc) Predict(f Features) Verdict {
	return fn(f)
}
