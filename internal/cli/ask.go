package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"

	"github.com/dyike/tsladash/internal/llm"
	"github.com/dyike/tsladash/internal/service"
)

func newAskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [QUESTION]",
		Short: "Ask Gemini about the loaded data",
		Long: `Send a question together with the data summary to the configured model.
Without a question an interactive picker offers the sample questions.
Example: tsladash ask "Which month was most volatile?"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question, _ := cmd.Flags().GetString("question")
			if question == "" && len(args) == 1 {
				question = args[0]
			}
			return runAsk(cmd, a, question)
		},
	}
	cmd.Flags().StringP("question", "q", "", "Question to ask")
	return cmd
}

func runAsk(cmd *cobra.Command, a *app, question string) error {
	store, rec := a.openHistory()
	if store != nil {
		defer store.Close()
	}
	var opts []service.Option
	if rec != nil {
		opts = append(opts, service.WithRecorder(rec))
	}
	dash, err := a.loadDashboard(cmd.Context(), opts...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	interactive := strings.TrimSpace(question) == ""

	for {
		if interactive {
			question, err = PromptForQuestion(llm.SampleQuestions(a.cfg.Ticker))
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			if err != nil {
				return err
			}
		}

		ans, err := dash.Ask(cmd.Context(), question)
		if err != nil {
			// The text already carries the remediation; show it as is.
			DisplayWarning(out, ans.Text)
			if !interactive {
				return fmt.Errorf("ask: %w", err)
			}
		} else {
			DisplayAnswer(out, question, ans.Text)
		}

		if !interactive {
			return nil
		}
		again, err := PromptForAnotherQuestion()
		if err != nil || !again {
			return nil
		}
	}
}
