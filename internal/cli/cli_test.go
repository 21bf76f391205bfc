package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/PaulBappoo/Deeperseek/core/client"
	"github.com/PaulBappoo/Deeperseek/core/relay"
)

func TestSchemaCommandPrintsEveryRecord(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"schema"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, kind := range []string{`"fragment"`, `"source_end"`, `"done"`} {
		if !strings.Contains(buf.String(), kind) {
			t.Fatalf("expected output to contain %s, got %s", kind, buf.String())
		}
	}
}

func TestPrinterStreamsAnswersAndWrapsReviews(t *testing.T) {
	buf := new(bytes.Buffer)
	p := newPrinter(buf, 20)

	aggregator := client.NewAggregator(client.WithObserver(p.Observe))
	for _, event := range []relay.Event{
		relay.SessionEvent("s1"),
		relay.FragmentEvent(relay.RolePrimary, "primary", "The sky "),
		relay.FragmentEvent(relay.RolePrimary, "primary", "is blue."),
		relay.SourceEndEvent(relay.SourceEnd{Role: relay.RolePrimary, SourceID: "primary", Status: "ok"}),
		relay.FragmentEvent(relay.RoleAnalysis, "critic", "Light scatters more at short wavelengths."),
		relay.SourceEndEvent(relay.SourceEnd{Role: relay.RoleAnalysis, SourceID: "critic", Status: "ok"}),
		relay.SourceEndEvent(relay.SourceEnd{Role: relay.RoleAnalysis, SourceID: "broken", Status: "failed", Error: "upstream down"}),
		relay.FragmentEvent(relay.RoleSynthesis, "synthesis", "Rayleigh."),
		relay.DoneEvent(relay.OutcomeCompleted),
	} {
		aggregator.Apply(event)
	}

	out := buf.String()
	for _, want := range []string{"The sky is blue.", "Review by critic", "Light scatters more\nat short", "failed: upstream down", "Rayleigh."} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got %q", want, out)
		}
	}
	if strings.Index(out, "The sky is blue.") > strings.Index(out, "Rayleigh.") {
		t.Fatalf("expected answer before final answer, got %q", out)
	}
}
