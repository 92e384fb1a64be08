package chat

import (
	"context"
	"encoding/json"

	invopop "github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"github.com/xeipuuv/gojsonschema"

	"github.com/RhineAGI/rhine/pkg/config"
	"github.com/RhineAGI/rhine/pkg/conversation"
	"github.com/RhineAGI/rhine/pkg/prompt"
	"github.com/RhineAGI/rhine/pkg/schema"
	"github.com/RhineAGI/rhine/pkg/tools"
)

// ChatTool issues the secondary model invocations behind the tool and
// structured-output paths: resolving free-text directives into function
// calls, and reformatting free-form answers into schema-shaped JSON. Each
// invocation runs on a short-lived session picked by the tool-use
// capability.
type ChatTool struct {
	Settings *config.Settings
}

var _ CallResolver = (*ChatTool)(nil)

const (
	resolveCallPrompt = "Invoke the function matching the input"
	reformatPrompt    = "Reformat the input into the given JSON schema"

	// the reformat pass only transcribes, it should not get creative
	reformatTemperature float32 = 0.1
)

// ResolveCall asks a tool-capable model to map the directive text onto one
// of the provided function definitions. Free-text directive syntax is
// normalized by the model itself rather than a local grammar.
func (ct *ChatTool) ResolveCall(ctx context.Context, callText string, definitions []tools.Definition) (*FunctionCall, error) {
	profile, err := ct.Settings.ProfileByCapability(config.CapabilityToolUse)
	if err != nil {
		return nil, errors.WithMessage(err, ErrGetFunction.Error())
	}

	base := NewBaseChat(profile, resolveCallPrompt, false)
	base.AddMessage(conversation.RoleUser, callText)

	thread, err := base.Manager.ResolvePath(base.Manager.ActivePath())
	if err != nil {
		return nil, err
	}

	req := base.BuildRequestForThread(thread)
	req.Tools = ToOpenAITools(definitions)

	resp, err := base.SendRequest(ctx, req)
	if err != nil {
		return nil, errors.WithMessagef(ErrGetFunction, "call text %q: %v", callText, err)
	}

	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, errors.Wrapf(ErrGetFunction, "no tool call in response for %q", callText)
	}

	toolCall := resp.Choices[0].Message.ToolCalls[0]
	functionCall := &FunctionCall{
		Name:      toolCall.Function.Name,
		Arguments: toolCall.Function.Arguments,
	}

	log.Debug().
		Str("function", functionCall.Name).
		Str("arguments", functionCall.Arguments).
		Msg("resolved function call")

	return functionCall, nil
}

// GetJSON runs the schema-constrained reformatting pass: it hands the
// free-form answer to a low-temperature session with the schema as a
// response-format constraint, validates the reply against the schema, and
// unmarshals it into T.
func GetJSON[T any](ctx context.Context, settings *config.Settings, textAnswer string, schemaDoc *invopop.Schema) (T, error) {
	var zero T

	profile, err := settings.ProfileByCapability(config.CapabilityToolUse)
	if err != nil {
		return zero, errors.WithMessage(err, ErrGetJSON.Error())
	}

	base := NewBaseChat(profile, reformatPrompt, false, WithTemperature(reformatTemperature))
	base.AddMessage(conversation.RoleUser, textAnswer)

	thread, err := base.Manager.ResolvePath(base.Manager.ActivePath())
	if err != nil {
		return zero, err
	}

	req := base.BuildRequestForThread(thread)
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   "structured_output",
			Schema: schemaDoc,
			Strict: true,
		},
	}

	resp, err := base.SendRequest(ctx, req)
	if err != nil {
		return zero, errors.WithMessagef(ErrGetJSON, "%v", err)
	}

	jsonAnswer, err := GetContentFromResponse(resp)
	if err != nil {
		return zero, errors.WithMessagef(ErrGetJSON, "%v", err)
	}

	log.Debug().Str("json_answer", jsonAnswer).Msg("received reformatted answer")

	base.AddMessage(conversation.RoleAssistant, jsonAnswer)

	if err := validateAgainstSchema(schemaDoc, jsonAnswer); err != nil {
		return zero, errors.WithMessagef(ErrGetJSON, "answer %q: %v", jsonAnswer, err)
	}

	var ret T
	if err := json.Unmarshal([]byte(jsonAnswer), &ret); err != nil {
		return zero, errors.WithMessagef(ErrGetJSON, "failed to deserialize %q: %v", jsonAnswer, err)
	}

	return ret, nil
}

// GetJSONAnswer is the two-pass structured-output path: derive a schema for
// T, tell the model what its free-form answer has to cover, run a normal
// exchange, then reformat the answer into T with GetJSON.
//
// Decoupling generation from format compliance is deliberate: single-pass
// schema-constrained generation degrades reasoning on complex content.
func GetJSONAnswer[T any](ctx context.Context, sc *SingleChat, userInput string) (T, error) {
	var zero T

	schemaDoc := schema.FromType[T]()

	outputDescription, err := prompt.AssembleOutputDescription(schemaDoc)
	if err != nil {
		return zero, errors.WithMessagef(ErrAssembleOutputDescription, "%v", err)
	}

	sc.Base.AddMessage(conversation.RoleSystem, outputDescription)

	answer, err := sc.GetAnswer(ctx, userInput)
	if err != nil {
		return zero, errors.WithMessage(err, "failed to get answer for structured request")
	}

	return GetJSON[T](ctx, sc.settings, answer, schemaDoc)
}

// validateAgainstSchema checks the candidate JSON document against the
// schema before deserialization, so type mismatches surface with the
// offending document attached instead of as opaque unmarshal errors.
func validateAgainstSchema(schemaDoc *invopop.Schema, document string) error {
	schemaJSON, err := json.Marshal(schemaDoc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal schema")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewStringLoader(document),
	)
	if err != nil {
		return errors.Wrap(err, "failed to validate document")
	}

	if !result.Valid() {
		msg := ""
		for _, e := range result.Errors() {
			msg += e.String() + "; "
		}
		return errors.Errorf("document does not match schema: %s", msg)
	}

	return nil
}

// ToOpenAITools converts registry definitions into the wire format of the
// tools request field.
func ToOpenAITools(definitions []tools.Definition) []openai.Tool {
	ret := make([]openai.Tool, 0, len(definitions))
	for _, def := range definitions {
		ret = append(ret, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return ret
}
