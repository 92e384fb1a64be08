package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/RhineAGI/rhine/pkg/config"
	"github.com/RhineAGI/rhine/pkg/conversation"
	"github.com/RhineAGI/rhine/pkg/prompt"
	"github.com/RhineAGI/rhine/pkg/tools"
)

// FunctionCall is a tool-use directive resolved into a concrete invocation:
// the function name and its arguments as a JSON-object-encoded string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// CallResolver turns the free text inside a tool-use directive into a
// FunctionCall. The default implementation asks a tool-capable model to do
// the mapping; tests substitute a local stub.
type CallResolver interface {
	ResolveCall(ctx context.Context, callText string, definitions []tools.Definition) (*FunctionCall, error)
}

// SingleChat extends a base session with structured-output extraction and
// tool calling.
type SingleChat struct {
	Base *BaseChat

	settings    *config.Settings
	toolsSchema []tools.Definition
	resolver    CallResolver
	registry    *tools.Registry
}

type SingleChatOption func(*SingleChat)

// WithRegistry dispatches tool calls against the given registry instead of
// the process-wide one.
func WithRegistry(registry *tools.Registry) SingleChatOption {
	return func(sc *SingleChat) {
		sc.registry = registry
	}
}

// WithCallResolver replaces the model-backed directive resolver.
func WithCallResolver(resolver CallResolver) SingleChatOption {
	return func(sc *SingleChat) {
		sc.resolver = resolver
	}
}

// WithBaseOptions forwards options to the underlying base session.
func WithBaseOptions(options ...BaseChatOption) SingleChatOption {
	return func(sc *SingleChat) {
		for _, option := range options {
			option(sc.Base)
		}
	}
}

// NewSingleChat creates a session on the named API profile.
func NewSingleChat(settings *config.Settings, apiName string, characterPrompt string, needStream bool, options ...SingleChatOption) (*SingleChat, error) {
	profile, err := settings.ProfileByName(apiName)
	if err != nil {
		return nil, err
	}
	return newSingleChat(settings, profile, characterPrompt, needStream, options...), nil
}

// NewSingleChatWithCapability creates a session on the first profile
// carrying the given capability.
func NewSingleChatWithCapability(settings *config.Settings, capability config.ModelCapability, characterPrompt string, needStream bool, options ...SingleChatOption) (*SingleChat, error) {
	profile, err := settings.ProfileByCapability(capability)
	if err != nil {
		return nil, err
	}
	return newSingleChat(settings, profile, characterPrompt, needStream, options...), nil
}

func newSingleChat(settings *config.Settings, profile *config.APIProfile, characterPrompt string, needStream bool, options ...SingleChatOption) *SingleChat {
	ret := &SingleChat{
		Base:     NewBaseChat(profile, characterPrompt, needStream),
		settings: settings,
		registry: tools.Default(),
		resolver: &ChatTool{Settings: settings},
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// GetAnswerWithPath appends the user input below the leaf of the given path
// and runs an exchange on the extended path. Paths diverging from the active
// branch create a new branch rather than rewriting history.
func (sc *SingleChat) GetAnswerWithPath(ctx context.Context, path conversation.Path, userInput string) (string, error) {
	thread, err := sc.Base.Manager.ResolvePath(path)
	if err != nil {
		return "", err
	}

	parentID := conversation.NullNode
	if len(thread) > 0 {
		parentID = thread[len(thread)-1].ID
	}

	msg := conversation.NewMessage(conversation.RoleUser, userInput)
	sc.Base.Manager.AttachMessages(parentID, msg)

	newPath, err := sc.Base.Manager.PathTo(msg.ID)
	if err != nil {
		return "", err
	}

	return sc.Base.Exchange(ctx, newPath)
}

// GetAnswer appends the user input to the active branch and runs an
// exchange.
func (sc *SingleChat) GetAnswer(ctx context.Context, userInput string) (string, error) {
	return sc.GetAnswerWithPath(ctx, sc.Base.Manager.ActivePath(), userInput)
}

// GetAnswerAgain regenerates an answer for the thread identified by path
// without appending a new user message. The fresh answer is attached as a
// sibling branch, so the previous answer stays addressable.
func (sc *SingleChat) GetAnswerAgain(ctx context.Context, path conversation.Path) (string, error) {
	return sc.Base.Exchange(ctx, path)
}

// SetTools installs the tool schema for this session and appends the
// tools-prompt system message describing the directive syntax.
func (sc *SingleChat) SetTools(definitions []tools.Definition) error {
	sc.toolsSchema = definitions

	toolsPrompt, err := prompt.AssembleToolsPrompt(definitions)
	if err != nil {
		return err
	}

	sc.Base.AddMessage(conversation.RoleSystem, toolsPrompt)
	return nil
}

// SetToolsFromRegistry installs every tool registered in the session's
// registry.
func (sc *SingleChat) SetToolsFromRegistry() error {
	return sc.SetTools(sc.registry.Definitions())
}

// GetToolAnswer runs an exchange and dispatches every tool-use directive the
// answer contains.
//
// Returned results are positionally aligned with the directives' order of
// appearance, regardless of which dispatch finishes first, and the slice
// length always equals the number of directives. Failures are contained per
// call: a bad directive contributes an in-band error string at its position
// and never aborts its siblings. An answer without directives comes back
// unchanged with no results.
func (sc *SingleChat) GetToolAnswer(ctx context.Context, userInput string) (string, []string, error) {
	answer, err := sc.GetAnswer(ctx, userInput)
	if err != nil {
		return "", nil, errors.WithMessage(err, "failed to get answer for tool call")
	}

	textCalls := tools.ExtractToolUses(answer)
	log.Debug().Strs("text_calls", textCalls).Msg("extracted tool-use directives")

	if len(textCalls) == 0 {
		return answer, nil, nil
	}

	cleanAnswer := tools.StripToolUses(answer)

	results := make([]string, len(textCalls))

	// fan out one task per directive; task failures become data, never an
	// early exit, so the zero-value group (no shared cancellation) is what
	// we want here
	eg := &errgroup.Group{}
	for i, textCall := range textCalls {
		i, textCall := i, textCall
		eg.Go(func() error {
			result, err := sc.processToolCall(ctx, textCall)
			if err != nil {
				log.Warn().Err(err).Int("call_index", i).Msg("tool call failed")
				results[i] = errorResultPlaceholder(err)
				return nil
			}
			results[i] = result
			return nil
		})
	}
	_ = eg.Wait()

	return cleanAnswer, results, nil
}

// processToolCall resolves one directive and dispatches it against the
// registry. Not-found and execution failures are returned as descriptive
// result strings, not errors; the model consuming the results can react to
// them on the next turn.
func (sc *SingleChat) processToolCall(ctx context.Context, textCall string) (string, error) {
	functionCall, err := sc.resolver.ResolveCall(ctx, textCall, sc.toolsSchema)
	if err != nil {
		return "", errors.WithMessagef(ErrParseFunctionCall, "call text %q: %v", textCall, err)
	}

	if functionCall.Name == "" {
		return "", errors.Wrapf(ErrMissingField, "name in call %q", textCall)
	}
	if functionCall.Arguments == "" {
		return "", errors.Wrapf(ErrMissingField, "arguments for function %s", functionCall.Name)
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(functionCall.Arguments), &args); err != nil {
		return "", errors.Wrapf(ErrDeserializeArguments, "function %s arguments %q: %v",
			functionCall.Name, functionCall.Arguments, err)
	}

	if !sc.registry.Has(functionCall.Name) {
		msg := fmt.Sprintf("Cannot find function named %q", functionCall.Name)
		log.Info().Str("function", functionCall.Name).Msg("tool not found")
		return msg, nil
	}

	log.Info().Str("function", functionCall.Name).Msg("calling function")
	result, err := sc.registry.Call(functionCall.Name, args)
	if err != nil {
		msg := fmt.Sprintf("Calling function %q failed: %s", functionCall.Name, err)
		log.Info().Str("function", functionCall.Name).Err(err).Msg("tool execution failed")
		return msg, nil
	}

	serialized, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", errors.Wrapf(ErrSerializeResult, "function %s: %v", functionCall.Name, err)
	}

	return string(serialized), nil
}

// errorResultPlaceholder renders a structural per-call failure as an in-band
// JSON result so the batch stays positionally complete.
func errorResultPlaceholder(err error) string {
	b, marshalErr := json.Marshal(map[string]string{
		"error": fmt.Sprintf("Tool call failed: %s", err),
	})
	if marshalErr != nil {
		return `{"error": "Tool call failed"}`
	}
	return string(b)
}
