package chat

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/RhineAGI/rhine/pkg/config"
	"github.com/RhineAGI/rhine/pkg/conversation"
	"github.com/RhineAGI/rhine/pkg/events"
)

// BaseChat is one conversation session against a completion endpoint. It
// owns the conversation tree, the speaking identity, and the cumulative
// token usage counter.
//
// A session is single-writer: callers serialize exchanges against it. The
// usage counter only ever grows; it is reset by creating a new session.
type BaseChat struct {
	Model           string
	CharacterPrompt string
	// Speaker is the identity the model impersonates in this session. It
	// decides how the stored thread is rendered and which role generated
	// answers are stored under.
	Speaker    conversation.Role
	Manager    conversation.Manager
	Usage      int
	NeedStream bool

	temperature *float32
	client      *openai.Client
	publisher   *events.PublisherManager
}

type BaseChatOption func(*BaseChat)

// WithSpeaker makes the session speak as the given role instead of the
// generic assistant.
func WithSpeaker(speaker conversation.Role) BaseChatOption {
	return func(b *BaseChat) {
		b.Speaker = speaker
	}
}

func WithTemperature(temperature float32) BaseChatOption {
	return func(b *BaseChat) {
		b.temperature = &temperature
	}
}

func WithPublisher(publisher *events.PublisherManager) BaseChatOption {
	return func(b *BaseChat) {
		b.publisher = publisher
	}
}

func NewBaseChat(profile *config.APIProfile, characterPrompt string, needStream bool, options ...BaseChatOption) *BaseChat {
	clientConfig := openai.DefaultConfig(profile.APIKey)
	if profile.BaseURL != "" {
		clientConfig.BaseURL = profile.BaseURL
	}

	ret := &BaseChat{
		Model:           profile.Model,
		CharacterPrompt: characterPrompt,
		Speaker:         conversation.RoleAssistant,
		Manager:         conversation.NewManager(),
		NeedStream:      needStream,
		client:          openai.NewClientWithConfig(clientConfig),
		publisher:       events.NewPublisherManager(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// Publisher exposes the session's event publisher so callers can subscribe
// to streaming events.
func (b *BaseChat) Publisher() *events.PublisherManager {
	return b.publisher
}

// AddMessage appends a message to the active branch and returns its depth.
func (b *BaseChat) AddMessage(role conversation.Role, content string) int {
	return b.Manager.Append(role, content)
}

// BuildRequestForThread renders the thread from the session speaker's
// perspective and assembles the completion request.
func (b *BaseChat) BuildRequestForThread(thread conversation.Conversation) openai.ChatCompletionRequest {
	rendered := conversation.RenderForSpeaker(b.CharacterPrompt, thread, b.Speaker)

	messages := make([]openai.ChatCompletionMessage, 0, len(rendered))
	for _, m := range rendered {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    b.Model,
		Messages: messages,
		Stream:   b.NeedStream,
	}
	if b.temperature != nil {
		req.Temperature = *b.temperature
	}
	if b.NeedStream {
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	return req
}

// Exchange resolves the path, sends the rendered thread to the model, and
// attaches the answer below the path's leaf under the session speaker's
// role. Attaching below the leaf rather than the global last message is what
// makes regeneration branch instead of overwrite.
func (b *BaseChat) Exchange(ctx context.Context, path conversation.Path) (string, error) {
	thread, err := b.Manager.ResolvePath(path)
	if err != nil {
		return "", err
	}

	leafID := conversation.NullNode
	if len(thread) > 0 {
		leafID = thread[len(thread)-1].ID
	}

	req := b.BuildRequestForThread(thread)

	var content string
	if b.NeedStream {
		content, err = b.getStreamContent(ctx, req, leafID)
	} else {
		var resp *openai.ChatCompletionResponse
		resp, err = b.SendRequest(ctx, req)
		if err == nil {
			content, err = GetContentFromResponse(resp)
		}
	}
	if err != nil {
		return "", err
	}

	log.Info().Str("model", b.Model).Int("usage", b.Usage).Msg("received model answer")
	log.Debug().Str("content", content).Msg("model answer content")

	b.Manager.AttachMessages(leafID, conversation.NewMessage(b.Speaker, content))

	return content, nil
}

// SendRequest performs a non-streaming completion call, maps transport
// failures onto the error taxonomy, and adds the reported token usage to the
// session counter. A response without usage data fails the exchange; an
// unmetered answer is a data-integrity violation, not a zero.
func (b *BaseChat) SendRequest(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, mapTransportError(err)
	}

	if resp.Usage.TotalTokens <= 0 {
		return nil, errors.Wrapf(ErrMissingUsageData, "response id %s", resp.ID)
	}
	b.Usage += resp.Usage.TotalTokens

	return &resp, nil
}

// GetContentFromResponse extracts the answer text from a completion
// response.
func GetContentFromResponse(resp *openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", errors.Wrap(ErrParseResponse, "response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// getStreamContent consumes the completion stream, concatenating content
// deltas in receive order and publishing start/partial/final events along
// the way. Chunks that fail to decode are skipped; a stream that dies before
// producing any content is a parse failure.
func (b *BaseChat) getStreamContent(ctx context.Context, req openai.ChatCompletionRequest, parentID conversation.NodeID) (string, error) {
	stream, err := b.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", mapTransportError(err)
	}
	defer stream.Close()

	meta := events.EventMetadata{
		ID:       conversation.NewNodeID(),
		ParentID: parentID,
		Model:    b.Model,
	}
	b.publisher.PublishBlind(events.NewStartEvent(meta))

	completion := ""
	usage := 0
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if isMalformedChunk(err) {
				log.Debug().Err(err).Msg("skipping malformed stream chunk")
				continue
			}
			b.publisher.PublishBlind(events.NewErrorEvent(meta, err))
			if completion == "" {
				return "", errors.Wrapf(ErrParseResponse, "stream failed before any content: %s", err)
			}
			return "", mapTransportError(err)
		}

		if response.Usage != nil {
			usage = response.Usage.TotalTokens
		}
		if len(response.Choices) > 0 {
			delta := response.Choices[0].Delta.Content
			if delta != "" {
				completion += delta
				b.publisher.PublishBlind(events.NewPartialCompletionEvent(meta, delta, completion))
			}
		}
	}

	if completion == "" {
		return "", errors.Wrap(ErrParseResponse, "stream ended without content")
	}
	b.Usage += usage

	b.publisher.PublishBlind(events.NewFinalEvent(meta, completion))

	return completion, nil
}

// isMalformedChunk reports whether a stream receive failure is framing noise
// (an undecodable chunk) rather than a transport fault.
func isMalformedChunk(err error) bool {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr)
}

// mapTransportError folds go-openai failures onto the error taxonomy:
// status-bearing failures become HTTPError, undecodable bodies become
// ErrParseResponse, everything else ErrUnknown.
func mapTransportError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return errors.Wrap(&HTTPError{Status: apiErr.HTTPStatusCode}, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode != 0 {
			return errors.Wrapf(&HTTPError{Status: reqErr.HTTPStatusCode}, "%v", reqErr.Err)
		}
		return errors.Wrapf(ErrUnknown, "%v", reqErr.Err)
	}

	if isMalformedChunk(err) {
		return errors.Wrapf(ErrParseResponse, "%v", err)
	}

	return errors.Wrapf(ErrUnknown, "%v", err)
}
