package orchestration

import (
	"errors"
	"strings"
	"testing"

	"github.com/PaulBappoo/Deeperseek/core/llms"
)

func TestPrimaryTurnsCopiesConversation(t *testing.T) {
	turns := userTurns("original")
	copied, err := primaryTurns("Be brief.", turns)
	if err != nil {
		t.Fatalf("unexpected copy error: %v", err)
	}

	if len(copied) != 2 || copied[0].Speaker != llms.SpeakerSystem || copied[0].Text != "Be brief." {
		t.Fatalf("expected instruction as leading system turn, got %+v", copied)
	}
	copied[1].Text = "changed"
	if turns[0].Text != "original" {
		t.Fatalf("expected caller turns to stay untouched")
	}

	if plain, _ := primaryTurns("", turns); len(plain) != 1 {
		t.Fatalf("expected no system turn without instruction, got %+v", plain)
	}
}

func TestAnalysisTurnsEmbedQueryAndAnswer(t *testing.T) {
	turns, err := analysisTurns("Why?", "Because.", "Check the facts.")
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	if len(turns) != 1 || turns[0].Speaker != llms.SpeakerUser {
		t.Fatalf("expected a single user turn, got %+v", turns)
	}
	for _, want := range []string{"Why?", "Because.", "Check the facts."} {
		if !strings.Contains(turns[0].Text, want) {
			t.Fatalf("expected prompt to contain %q, got %q", want, turns[0].Text)
		}
	}
}

func TestSynthesisTurnsSkipFailedAndEmptyAnalyses(t *testing.T) {
	results := []llms.CallResult{
		{SourceID: "critic", Status: llms.StatusOK, Text: "Mostly right."},
		{SourceID: "blank", Status: llms.StatusOK, Text: "  "},
		{SourceID: "down", Status: llms.StatusFailed, Text: "half a review", Err: errors.New("boom")},
		{SourceID: "gone", Status: llms.StatusCancelled, Text: "partial"},
	}

	turns, err := synthesisTurns("Why?", "Because.", "Merge carefully.", results)
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	if len(turns) != 2 || turns[0].Speaker != llms.SpeakerSystem {
		t.Fatalf("expected instruction system turn and prompt, got %+v", turns)
	}

	prompt := turns[1].Text
	if !strings.Contains(prompt, "Review by critic:\nMostly right.") {
		t.Fatalf("expected successful review in prompt, got %q", prompt)
	}
	for _, unwanted := range []string{"blank", "half a review", "partial"} {
		if strings.Contains(prompt, unwanted) {
			t.Fatalf("expected %q to be left out, got %q", unwanted, prompt)
		}
	}
}
