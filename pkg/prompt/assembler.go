package prompt

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"

	"github.com/RhineAGI/rhine/pkg/tools"
)

// The assemblers produce the system-message instructions that wrap the
// structured-output and tool-calling protocols: one describing the JSON
// document the caller wants back, one describing the tool-use directive
// syntax and the available tools.

const outputDescriptionTemplate = `Answer the user's request in full. Your answer will afterwards be reformatted into a JSON document, so make sure it contains the information for every field described by this JSON schema:

{{ .Schema | toPrettyJson }}

Do not output JSON yourself; answer naturally and completely.`

const toolsPromptTemplate = `You can call tools. To call one, emit the call wrapped in {{ .OpenTag }}{{ .CloseTag }} tags, for example: {{ .OpenTag }}look up the weather in Paris in celsius{{ .CloseTag }}. Describe the call in plain text inside the tags; it will be resolved to a function invocation for you. You may emit several calls in one answer.

Available tools:
{{- range .Tools }}
- {{ .Name }}: {{ .Description }}
  parameters: {{ .Parameters | toJson }}
{{- end }}`

func createTemplate(name string) *template.Template {
	return template.New(name).Funcs(sprig.TxtFuncMap())
}

// AssembleOutputDescription renders the system instruction that tells the
// model what information its free-form answer has to cover so that the
// schema-constrained second pass can succeed.
func AssembleOutputDescription(schema interface{}) (string, error) {
	tmpl, err := createTemplate("output-description").Parse(outputDescriptionTemplate)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse output description template")
	}

	var sb strings.Builder
	err = tmpl.Execute(&sb, map[string]interface{}{
		"Schema": schema,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to render output description")
	}

	return sb.String(), nil
}

// AssembleToolsPrompt renders the system instruction describing the tool-use
// directive syntax and the given tools.
func AssembleToolsPrompt(definitions []tools.Definition) (string, error) {
	tmpl, err := createTemplate("tools-prompt").Parse(toolsPromptTemplate)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse tools prompt template")
	}

	var sb strings.Builder
	err = tmpl.Execute(&sb, map[string]interface{}{
		"OpenTag":  tools.ToolUseOpenTag,
		"CloseTag": tools.ToolUseCloseTag,
		"Tools":    definitions,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to render tools prompt")
	}

	return sb.String(), nil
}
