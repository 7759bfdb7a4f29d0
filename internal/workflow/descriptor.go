package workflow

import (
	"encoding/json"

	"github.com/worklinehq/workline/pkg/schema"
)

// descriptorFor turns a step's resolved config into the executor's
// descriptor shape. Config keys match the descriptor's JSON field names
// (url, method, function_name, params, code, language, input).
func descriptorFor(kind schema.DescriptorKind, config map[string]any) (*schema.JobDescriptor, error) {
	b, err := json.Marshal(config)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "step config is not JSON-marshalable").WithCause(err)
	}
	desc := &schema.JobDescriptor{}
	if err := json.Unmarshal(b, desc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "step config does not match a %s descriptor: %s", kind, err.Error()).WithCause(err)
	}
	desc.Kind = kind
	return desc, nil
}
