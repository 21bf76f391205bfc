package relay

import (
	"github.com/invopop/jsonschema"
)

// Schemas describes the JSON payload of every relay record type, keyed by
// record kind.
func Schemas() map[Kind]*jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return map[Kind]*jsonschema.Schema{
		KindFragment:  reflector.Reflect(&Fragment{}),
		KindSession:   reflector.Reflect(&Session{}),
		KindSourceEnd: reflector.Reflect(&SourceEnd{}),
		KindError:     reflector.Reflect(&ErrorDetail{}),
		KindDone:      reflector.Reflect(&Done{}),
	}
}
