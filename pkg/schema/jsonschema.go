package schema

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// Callable is any function value.
type Callable interface{}

// FromType derives a JSON schema document for T by reflection. The schema is
// inlined (no $defs indirection) so it can be handed to the completion
// endpoint as a response_format constraint as-is.
func FromType[T any]() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
	}
	var v T
	ret := reflector.Reflect(v)
	// downstream validators only speak pre-2020 drafts; without a $schema
	// marker they fall back to a dialect they support
	ret.Version = ""
	return ret
}

// FunctionParametersSchema generates a JSON schema for the arguments of the
// given function. Single-parameter functions are reflected directly; for
// multiple parameters the schema is an array with one PrefixItems entry per
// parameter.
func FunctionParametersSchema(reflector *jsonschema.Reflector, f Callable) (*jsonschema.Schema, error) {
	funcVal := reflect.ValueOf(f)
	funcType := funcVal.Type()

	if funcType.Kind() != reflect.Func {
		return nil, errors.Errorf("provided callable is not a function")
	}

	if funcType.NumIn() == 1 {
		singleParamType := funcType.In(0)
		singleParamInstance := reflect.New(singleParamType).Elem().Interface()
		return reflector.Reflect(singleParamInstance), nil
	}

	schema := &jsonschema.Schema{
		Type:  "array",
		Items: &jsonschema.Schema{},
	}

	paramSchemas := make([]*jsonschema.Schema, 0, funcType.NumIn())
	for i := 0; i < funcType.NumIn(); i++ {
		paramType := funcType.In(i)
		paramInstance := reflect.New(paramType).Elem().Interface()
		paramSchemas = append(paramSchemas, reflector.Reflect(paramInstance))
	}
	schema.PrefixItems = paramSchemas

	return schema, nil
}

// CallFunctionFromJSON calls a function with arguments provided as JSON.
func CallFunctionFromJSON(f Callable, jsonArgs interface{}) ([]reflect.Value, error) {
	funcVal := reflect.ValueOf(f)
	funcType := funcVal.Type()

	if funcType.Kind() != reflect.Func {
		return nil, errors.Errorf("provided callable is not a function")
	}

	argsJSON, err := json.Marshal(jsonArgs)
	if err != nil {
		return nil, err
	}

	var args []reflect.Value

	if funcType.NumIn() == 1 {
		argType := funcType.In(0)
		argPtr := reflect.New(argType)

		if err := json.Unmarshal(argsJSON, argPtr.Interface()); err != nil {
			return nil, err
		}

		args = append(args, argPtr.Elem())
	} else {
		var rawArgs []interface{}
		if err := json.Unmarshal(argsJSON, &rawArgs); err != nil {
			return nil, err
		}

		if len(rawArgs) != funcType.NumIn() {
			return nil, errors.Errorf("expected %d arguments, got %d", funcType.NumIn(), len(rawArgs))
		}

		for i, rawArg := range rawArgs {
			argType := funcType.In(i)
			argValue := reflect.New(argType).Elem()

			argJSON, err := json.Marshal(rawArg)
			if err != nil {
				return nil, err
			}

			if err := json.Unmarshal(argJSON, argValue.Addr().Interface()); err != nil {
				return nil, err
			}

			args = append(args, argValue)
		}
	}

	return funcVal.Call(args), nil
}

// ToMap converts a schema to its generic map form.
func ToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal schema")
	}

	var ret map[string]interface{}
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal schema")
	}

	return ret, nil
}
