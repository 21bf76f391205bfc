package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/PaulBappoo/Deeperseek/core/client"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

var (
	primaryHeader   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	analysisHeader  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	synthesisHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// printer renders client updates as plain terminal output. Streaming roles
// are printed as their text grows, reviews once they are complete.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	width   int
	printed map[string]int
	current string
}

func newPrinter(out io.Writer, width int) *printer {
	return &printer{out: out, width: width, printed: map[string]int{}}
}

func (p *printer) Observe(update client.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch update.Kind {
	case relay.KindFragment:
		if update.Message.Role != relay.RoleAnalysis {
			p.stream(*update.Message)
		}
	case relay.KindSourceEnd:
		p.sourceEnd(*update.Message)
	case relay.KindError:
		fmt.Fprintf(p.out, "\n%s\n", failedStyle.Render("error: "+update.Error.Message))
	case relay.KindDone:
		if p.current != "" {
			fmt.Fprintln(p.out)
		}
		if update.Outcome != relay.OutcomeCompleted {
			fmt.Fprintf(p.out, "%s\n", dimStyle.Render(fmt.Sprintf("[%s]", update.Outcome)))
		}
	}
}

func (p *printer) stream(message client.Message) {
	key := string(message.Role) + "/" + message.SourceID
	if p.current != key {
		if p.current != "" {
			fmt.Fprint(p.out, "\n\n")
		}
		fmt.Fprintln(p.out, headerFor(message))
		p.current = key
	}

	done := p.printed[key]
	if done < len(message.Text) {
		fmt.Fprint(p.out, message.Text[done:])
		p.printed[key] = len(message.Text)
	}
}

func (p *printer) sourceEnd(message client.Message) {
	if message.Role != relay.RoleAnalysis {
		return
	}
	if p.current != "" {
		fmt.Fprint(p.out, "\n\n")
		p.current = ""
	}

	fmt.Fprintln(p.out, headerFor(message))
	if message.State == client.StateFailed {
		fmt.Fprintln(p.out, failedStyle.Render("failed: "+message.Error))
		return
	}
	fmt.Fprintln(p.out, wordwrap.String(message.Text, p.width))
}

func headerFor(message client.Message) string {
	switch message.Role {
	case relay.RolePrimary:
		return primaryHeader.Render("Answer")
	case relay.RoleSynthesis:
		return synthesisHeader.Render("Final answer")
	default:
		return analysisHeader.Render("Review by " + message.SourceID)
	}
}
