package plugin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/DJune12138/Collection3/internal/domain"
)

// SeedMode selects how a BaseBuilder produces its phase-0 requests.
type SeedMode string

const (
	// SeedStatic yields one request per entry of BaseBuilder.Start.
	SeedStatic SeedMode = ""
	// SeedOnce yields a single test request, for businesses that only need one cycle.
	SeedOnce SeedMode = "once"
	// SeedNone yields nothing; the engine's safety valve still runs one cycle.
	SeedNone SeedMode = "none"
)

// Reserved seed keys. Every other key of a seed entry becomes a request parameter.
const (
	seedWay      = "way"
	seedCallback = "callback"
	seedMeta     = "meta"
)

const seedSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["way"],
    "properties": {
      "way": {"type": "string", "enum": ["web", "db", "shell", "file", "sdk", "test"]},
      "callback": {"type": "string", "minLength": 1}
    }
  }
}`

var seedSchemaLoader = gojsonschema.NewStringLoader(seedSchema)

// ValidateSeeds checks the shape of a static seed description.
// Only reserved keys are validated; parameters may hold values that have no
// JSON form, such as callables or driver instances.
func ValidateSeeds(start []map[string]any) error {
	shape := make([]map[string]any, 0, len(start))
	for _, entry := range start {
		if entry == nil {
			return domain.Errorf(domain.KindValidationFailure, "seed", "nil seed entry")
		}
		proj := map[string]any{}
		for _, k := range []string{seedWay, seedCallback} {
			if v, ok := entry[k]; ok {
				if w, isWay := v.(domain.Way); isWay {
					v = string(w)
				}
				proj[k] = v
			}
		}
		shape = append(shape, proj)
	}

	doc, err := json.Marshal(shape)
	if err != nil {
		return domain.Wrap(err, domain.KindValidationFailure, "seed")
	}
	result, err := gojsonschema.Validate(seedSchemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return domain.Wrap(err, domain.KindValidationFailure, "seed")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return domain.Errorf(domain.KindValidationFailure, "seed", "%s", strings.Join(msgs, "; "))
	}
	return nil
}

// SeedRequest converts one validated seed entry into a Request.
func SeedRequest(entry map[string]any) *domain.Request {
	var way domain.Way
	switch w := entry[seedWay].(type) {
	case domain.Way:
		way = w
	case string:
		way, _ = domain.ParseWay(w)
	}

	params := make(map[string]any, len(entry))
	for k, v := range entry {
		switch k {
		case seedWay, seedCallback, seedMeta:
		default:
			params[k] = v
		}
	}

	req := &domain.Request{Way: way, Callback: domain.DefaultCallback, Params: params, Meta: entry[seedMeta]}
	if cb, ok := entry[seedCallback].(string); ok && cb != "" {
		req.Callback = cb
	}
	return req
}
