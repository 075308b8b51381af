package rpc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaRegistry compiles every frame and per-method params schema once,
// validating requests against JSON Schema rather than hand-rolled field
// checks.
type schemaRegistry struct {
	once    sync.Once
	initErr error
	request *jsonschema.Schema
	methods map[string]*jsonschema.Schema
}

var schemas schemaRegistry

func initSchemas() error {
	schemas.once.Do(func() {
		reqSchema, err := jsonschema.CompileString("rpc_request", requestFrameSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.request = reqSchema

		defs := map[string]string{
			"connect":               connectParamsSchema,
			"health":                emptyParamsSchema,
			"ping":                  emptyParamsSchema,
			"create_session":        createSessionParamsSchema,
			"list_sessions":         listSessionsParamsSchema,
			"attach_session":        attachSessionParamsSchema,
			"send_session_message":  sendSessionMessageParamsSchema,
			"cancel_session_turn":   cancelSessionTurnParamsSchema,
			"list_agents":           emptyParamsSchema,
			"list_workflows":        emptyParamsSchema,
			"list_tasks":            listTasksParamsSchema,
			"execute_workflow":      executeWorkflowParamsSchema,
			"validate_sources":      validateSourcesParamsSchema,
		}

		schemas.methods = make(map[string]*jsonschema.Schema, len(defs))
		for name, raw := range defs {
			compiled, err := jsonschema.CompileString("rpc_method_"+name, raw)
			if err != nil {
				schemas.initErr = err
				return
			}
			schemas.methods[name] = compiled
		}
	})
	return schemas.initErr
}

// validateRequestFrame checks the envelope shape and, if a schema is
// registered for the frame's method, its params payload.
func validateRequestFrame(raw []byte, frame *Frame) error {
	if err := initSchemas(); err != nil {
		return err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if err := schemas.request.Validate(payload); err != nil {
		return err
	}
	if frame == nil {
		return fmt.Errorf("missing frame")
	}
	schema, ok := schemas.methods[frame.Method]
	if !ok {
		return nil
	}
	var params any
	if len(frame.Params) == 0 {
		params = map[string]any{}
	} else if err := json.Unmarshal(frame.Params, &params); err != nil {
		return err
	}
	return schema.Validate(params)
}

const requestFrameSchema = `{
  "type": "object",
  "required": ["type", "id", "method"],
  "properties": {
    "type": { "const": "req" },
    "id": { "type": "string", "minLength": 1 },
    "method": { "type": "string", "minLength": 1 },
    "params": {}
  },
  "additionalProperties": true
}`

const emptyParamsSchema = `{ "type": "object", "additionalProperties": true }`

const connectParamsSchema = `{
  "type": "object",
  "required": ["client"],
  "properties": {
    "client": {
      "type": "object",
      "required": ["id", "version"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "version": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": true
    }
  },
  "additionalProperties": true
}`

const createSessionParamsSchema = `{
  "type": "object",
  "required": ["agentId"],
  "properties": {
    "agentId": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const listSessionsParamsSchema = `{
  "type": "object",
  "properties": {
    "agentId": { "type": "string" },
    "limit": { "type": "integer", "minimum": 1, "maximum": 500 },
    "offset": { "type": "integer", "minimum": 0 }
  },
  "additionalProperties": true
}`

const attachSessionParamsSchema = `{
  "type": "object",
  "required": ["sessionId"],
  "properties": {
    "sessionId": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const sendSessionMessageParamsSchema = `{
  "type": "object",
  "required": ["sessionId", "content"],
  "properties": {
    "sessionId": { "type": "string", "minLength": 1 },
    "content": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const cancelSessionTurnParamsSchema = `{
  "type": "object",
  "required": ["sessionId"],
  "properties": {
    "sessionId": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const listTasksParamsSchema = `{
  "type": "object",
  "required": ["workflowId"],
  "properties": {
    "workflowId": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const executeWorkflowParamsSchema = `{
  "type": "object",
  "required": ["name", "steps"],
  "properties": {
    "name": { "type": "string", "minLength": 1 },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["agentId"],
        "properties": {
          "agentId": { "type": "string", "minLength": 1 },
          "input": {}
        },
        "additionalProperties": true
      }
    },
    "autonomousTools": {
      "type": "array",
      "items": { "type": "string" }
    }
  },
  "additionalProperties": true
}`

const validateSourcesParamsSchema = `{
  "type": "object",
  "required": ["uris"],
  "properties": {
    "uris": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    }
  },
  "additionalProperties": true
}`
