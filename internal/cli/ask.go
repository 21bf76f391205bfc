package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/PaulBappoo/Deeperseek/core/client"
	"github.com/PaulBappoo/Deeperseek/core/llms"
	"github.com/PaulBappoo/Deeperseek/core/relay"
	"github.com/spf13/cobra"
)

var (
	askServer string
	askWidth  int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a running server a question and stream the answer",
	Long: `Submits a question to a deeperseek server. The primary answer and the
final answer are streamed as they arrive; each review is printed once it is
complete. Press Ctrl-C to cancel the query.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askServer, "server", "s", "http://localhost:3001", "server base URL")
	askCmd.Flags().IntVarP(&askWidth, "width", "w", 80, "wrap reviews at this width")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	printer := newPrinter(cmd.OutOrStdout(), askWidth)

	c := client.New(askServer)
	query, err := c.SubmitQuery(context.Background(),
		[]llms.Turn{{Speaker: llms.SpeakerUser, Text: question}},
		client.WithObserver(printer.Observe),
	)
	if err != nil {
		return fmt.Errorf("failed to submit query: %w", err)
	}

	interrupt, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	select {
	case <-query.Done():
	case <-interrupt.Done():
		cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := query.Cancel(cancelCtx); err != nil {
			return fmt.Errorf("failed to cancel query: %w", err)
		}
	}

	outcome, err := query.Wait()
	if err != nil {
		return err
	}
	if outcome == relay.OutcomeFailed {
		return errors.New("query failed")
	}
	return nil
}
