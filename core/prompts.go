package orchestration

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/jinzhu/copier"
)

//go:embed prompts/analysis.tmpl
var analysisPromptTemplate string

//go:embed prompts/synthesis.tmpl
var synthesisPromptTemplate string

var (
	analysisPrompt  = template.Must(template.New("analysis").Parse(analysisPromptTemplate))
	synthesisPrompt = template.Must(template.New("synthesis").Parse(synthesisPromptTemplate))
)

type analysisPromptData struct {
	Query       string
	Primary     string
	Instruction string
}

type synthesisPromptData struct {
	Query    string
	Primary  string
	Analyses []llms.CallResult
}

// copyTurns is replaced in tests.
var copyTurns = func(dst *[]llms.Turn, src []llms.Turn) error {
	return copier.CopyWithOption(dst, src, copier.Option{DeepCopy: true})
}

// primaryTurns returns a private copy of the conversation for the primary
// call, prefixed with the configured instruction.
func primaryTurns(instruction string, turns []llms.Turn) ([]llms.Turn, error) {
	var copied []llms.Turn
	if err := copyTurns(&copied, turns); err != nil {
		return nil, fmt.Errorf("failed to copy conversation: %w", err)
	}
	if instruction == "" {
		return copied, nil
	}
	return append([]llms.Turn{{Speaker: llms.SpeakerSystem, Text: instruction}}, copied...), nil
}

func analysisTurns(query, primary, instruction string) ([]llms.Turn, error) {
	prompt, err := render(analysisPrompt, analysisPromptData{
		Query:       query,
		Primary:     primary,
		Instruction: instruction,
	})
	if err != nil {
		return nil, err
	}
	return []llms.Turn{{Speaker: llms.SpeakerUser, Text: prompt}}, nil
}

// synthesisTurns builds the synthesis prompt from the successful analyses
// only; failed ones are left out silently.
func synthesisTurns(query, primary, instruction string, results []llms.CallResult) ([]llms.Turn, error) {
	var analyses []llms.CallResult
	for _, result := range results {
		if result.OK() && strings.TrimSpace(result.Text) != "" {
			analyses = append(analyses, result)
		}
	}

	prompt, err := render(synthesisPrompt, synthesisPromptData{
		Query:    query,
		Primary:  primary,
		Analyses: analyses,
	})
	if err != nil {
		return nil, err
	}

	turns := []llms.Turn{{Speaker: llms.SpeakerUser, Text: prompt}}
	if instruction != "" {
		turns = append([]llms.Turn{{Speaker: llms.SpeakerSystem, Text: instruction}}, turns...)
	}
	return turns, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}
