package output

import (
	"encoding/json"

	"github.com/goalsmith/goalsmith/internal/goals"
)

// JSONFormatter renders goals as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatGoals renders the goal list as a JSON array.
func (f *JSONFormatter) FormatGoals(list []*goals.Goal) (string, error) {
	if list == nil {
		list = []*goals.Goal{}
	}
	return f.marshal(list)
}

// FormatGoal renders a goal as JSON.
func (f *JSONFormatter) FormatGoal(g *goals.Goal) (string, error) {
	if g == nil {
		return "", nil
	}
	return f.marshal(g)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
