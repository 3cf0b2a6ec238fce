package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/desk/internal/output"
	"github.com/joescharf/desk/internal/pipeline"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the support agent in the terminal",
	Long: `Talk to the support agent in the terminal.

With a message argument, desk answers once and exits. Without one it reads
messages from stdin until EOF or "/quit". Use --session to continue an
earlier conversation, and --verbose to see how each message was classified.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := buildAgent()
		if err != nil {
			return err
		}
		defer closeStore()
		defer a.Close()

		if len(args) > 0 {
			_, err := chatOnce(ctx, a, chatSessionID, strings.Join(args, " "))
			return err
		}
		return chatLoop(ctx, a, os.Stdin, chatSessionID)
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatSessionID, "session", "s", "", "Session ID to continue")
	rootCmd.AddCommand(chatCmd)
}

// chatOnce sends one message and prints the reply. It returns the session
// the reply belongs to, and an error only when ctx is done.
func chatOnce(ctx context.Context, a *agent, sessionID, message string) (string, error) {
	resp := a.pipeline.Process(ctx, pipeline.Request{
		Message:   message,
		SessionID: sessionID,
	})
	printResponse(a, resp)
	return resp.SessionID, ctx.Err()
}

// chatLoop reads one message per line until EOF or /quit.
func chatLoop(ctx context.Context, a *agent, in io.Reader, sessionID string) error {
	ui.Info("Chatting with %s. Type /quit to leave.", a.company.Name)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(ui.Out, output.Cyan("> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		id, err := chatOnce(ctx, a, sessionID, line)
		if err != nil {
			return err
		}
		sessionID = id
	}
	fmt.Fprintln(ui.Out)
	if sessionID != "" {
		ui.Info("Session: %s", sessionID)
	}
	return scanner.Err()
}

func printResponse(a *agent, resp pipeline.Response) {
	ui.Reply(a.company.Name, resp.Reply)

	ui.VerboseLog("session=%s stage=%s intent=%s (%.2f) sentiment=%s lead=%s",
		resp.SessionID, resp.Stage, resp.Intent, resp.Confidence,
		output.SentimentColor(string(resp.Sentiment)), output.LeadColor(resp.LeadScore))

	if resp.FaultReportID != "" {
		ui.VerboseLog("fault report %s (%s)", resp.FaultReportID, output.UrgencyColor(string(resp.Urgency)))
	}
	if resp.Escalate {
		ui.Warning("Handed to a human: %s", resp.EscalationID)
		if resp.EscalationSummary != "" {
			ui.VerboseLog("%s", resp.EscalationSummary)
		}
	}
	if len(resp.SuggestedReplies) > 0 {
		ui.VerboseLog("suggestions: %s", strings.Join(resp.SuggestedReplies, " | "))
	}
}
