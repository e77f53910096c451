package events

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/notification-requested.v1.json
var notificationRequestedSchema string

var (
	schemasOnce     sync.Once
	compiledSchemas map[string]*jsonschema.Schema
	schemasErr      error
)

func loadSchemas() {
	compiler := jsonschema.NewCompiler()

	const resource = "notification-requested.v1.json"
	if err := compiler.AddResource(resource, strings.NewReader(notificationRequestedSchema)); err != nil {
		schemasErr = fmt.Errorf("add schema resource: %w", err)
		return
	}

	schema, err := compiler.Compile(resource)
	if err != nil {
		schemasErr = fmt.Errorf("compile schema %s: %w", resource, err)
		return
	}

	compiledSchemas = map[string]*jsonschema.Schema{
		"NotificationRequested/1.0.0": schema,
	}
}

// ValidateEvent checks a message body against the contract for its declared
// type and version. A validation failure means the message is malformed and
// must be rejected, not requeued.
func ValidateEvent(eventType, eventVersion string, body []byte) error {
	schemasOnce.Do(loadSchemas)
	if schemasErr != nil {
		return schemasErr
	}

	key := fmt.Sprintf("%s/%s", eventType, eventVersion)
	schema, ok := compiledSchemas[key]
	if !ok {
		return fmt.Errorf("no schema for event %q version %q", eventType, eventVersion)
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("message body is not valid JSON: %w", err)
	}

	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
