package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RhineAGI/rhine/pkg/schema"
)

type personReport struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

// toolCallHandler answers every request with a single function tool call.
func toolCallHandler(t *testing.T, name string, arguments string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]interface{}{
				{
					"index": 0,
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": "",
						"tool_calls": []map[string]interface{}{
							{
								"id":   "call_1",
								"type": "function",
								"function": map[string]interface{}{
									"name":      name,
									"arguments": arguments,
								},
							},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
			"usage": map[string]interface{}{
				"prompt_tokens":     3,
				"completion_tokens": 4,
				"total_tokens":      7,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}
}

func TestResolveCall(t *testing.T) {
	server := httptest.NewServer(toolCallHandler(t, "get_weather", `{"city": "Berlin"}`))
	defer server.Close()

	ct := &ChatTool{Settings: testSettings(server.URL)}

	call, err := ct.ResolveCall(context.Background(), "what's the weather in Berlin", nil)
	require.NoError(t, err)
	assert.Equal(t, "get_weather", call.Name)
	assert.Equal(t, `{"city": "Berlin"}`, call.Arguments)
}

func TestResolveCallWithoutToolCallFails(t *testing.T) {
	server := httptest.NewServer(completionHandler(t, "I cannot do that", 7))
	defer server.Close()

	ct := &ChatTool{Settings: testSettings(server.URL)}

	_, err := ct.ResolveCall(context.Background(), "do something", nil)
	require.True(t, errors.Is(err, ErrGetFunction))
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(completionHandler(t, `{"name": "Alice", "age": 30}`, 7))
	defer server.Close()

	report, err := GetJSON[personReport](context.Background(), testSettings(server.URL),
		"Alice is thirty years old", schema.FromType[personReport]())
	require.NoError(t, err)
	assert.Equal(t, personReport{Name: "Alice", Age: 30}, report)
}

func TestGetJSONRejectsInvalidJSON(t *testing.T) {
	server := httptest.NewServer(completionHandler(t, "not json at all", 7))
	defer server.Close()

	_, err := GetJSON[personReport](context.Background(), testSettings(server.URL),
		"Alice is thirty", schema.FromType[personReport]())
	require.True(t, errors.Is(err, ErrGetJSON))
}

func TestGetJSONRejectsSchemaMismatch(t *testing.T) {
	server := httptest.NewServer(completionHandler(t, `{"name": 42, "age": "thirty"}`, 7))
	defer server.Close()

	_, err := GetJSON[personReport](context.Background(), testSettings(server.URL),
		"Alice is thirty", schema.FromType[personReport]())
	require.True(t, errors.Is(err, ErrGetJSON))
	assert.Contains(t, err.Error(), "does not match schema")
}

func TestGetJSONSendsSchemaConstrainedRequest(t *testing.T) {
	var captured struct {
		Temperature    float32 `json:"temperature"`
		ResponseFormat struct {
			Type       string `json:"type"`
			JSONSchema struct {
				Name   string `json:"name"`
				Strict bool   `json:"strict"`
			} `json:"json_schema"`
		} `json:"response_format"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		completionHandler(t, `{"name": "Alice", "age": 30}`, 7)(w, r)
	}))
	defer server.Close()

	_, err := GetJSON[personReport](context.Background(), testSettings(server.URL),
		"Alice is thirty", schema.FromType[personReport]())
	require.NoError(t, err)

	assert.Equal(t, "json_schema", captured.ResponseFormat.Type)
	assert.Equal(t, "structured_output", captured.ResponseFormat.JSONSchema.Name)
	assert.True(t, captured.ResponseFormat.JSONSchema.Strict)
	assert.InDelta(t, reformatTemperature, captured.Temperature, 0.001)
}

func TestGetJSONAnswerTwoPass(t *testing.T) {
	var requests int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		n := atomic.AddInt64(&requests, 1)
		switch n {
		case 1:
			// free-form generation pass
			assert.NotContains(t, string(body), "response_format")
			completionHandler(t, "Alice is thirty years old", 7)(w, r)
		default:
			// reformat pass carries the schema constraint
			assert.Contains(t, string(body), "response_format")
			completionHandler(t, `{"name": "Alice", "age": 30}`, 7)(w, r)
		}
	}))
	defer server.Close()

	sc, err := NewSingleChat(testSettings(server.URL), "test", "prompt", false)
	require.NoError(t, err)

	report, err := GetJSONAnswer[personReport](context.Background(), sc, "tell me about Alice")
	require.NoError(t, err)
	assert.Equal(t, personReport{Name: "Alice", Age: 30}, report)
	assert.Equal(t, int64(2), atomic.LoadInt64(&requests))

	// the free-form answer went through the session's own conversation
	thread := sc.Base.Manager.GetConversation()
	assert.Equal(t, "Alice is thirty years old", thread[len(thread)-1].Content)
}
