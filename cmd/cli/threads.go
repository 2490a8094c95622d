// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adiadia/agent-progress/cmd/cli/ui"
	"github.com/adiadia/agent-progress/internal/domain"
)

func threadsCmd(addr, token *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Create, drive, and inspect progress threads",
	}
	cmd.AddCommand(threadsCreateCmd(addr, token))
	cmd.AddCommand(threadsStatusCmd(addr, token))
	cmd.AddCommand(threadsStepsCmd(addr, token))
	cmd.AddCommand(threadsEventsCmd(addr, token))
	cmd.AddCommand(threadsCancelCmd(addr, token))
	return cmd
}

// stepsEnvelope matches the /steps and /steps/next response bodies.
type stepsEnvelope struct {
	ThreadID string        `json:"thread_id"`
	Steps    []domain.Step `json:"steps"`
}

func threadsCreateCmd(addr, token *string) *cobra.Command {
	var (
		template   string
		totalSteps int
		webhookURL string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a thread from a plan template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAPIClient(*addr, *token)

			req := struct {
				TemplateName string `json:"template_name,omitempty"`
				TotalSteps   int    `json:"total_steps,omitempty"`
				WebhookURL   string `json:"webhook_url,omitempty"`
			}{
				TemplateName: template,
				TotalSteps:   totalSteps,
				WebhookURL:   webhookURL,
			}

			var resp struct {
				ThreadID string `json:"thread_id"`
			}
			if err := client.do(cmd.Context(), http.MethodPost, "/threads", req, &resp); err != nil {
				return err
			}

			fmt.Println(ui.SuccessMsg("thread created"))
			fmt.Print(ui.KeyValues("  ", ui.KV("ID", ui.Bold(resp.ThreadID))))
			fmt.Println(ui.InfoMsg("track it with: agentctl threads status %s", resp.ThreadID))
			return nil
		},
	}

	cmd.Flags().StringVar(&template, "template", "", "Plan template name (empty means the default plan)")
	cmd.Flags().IntVar(&totalSteps, "total-steps", 0, "Override the expected step count")
	cmd.Flags().StringVar(&webhookURL, "webhook-url", "", "URL to notify when the thread reaches a terminal status")
	return cmd
}

func threadsStatusCmd(addr, token *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <thread-id>",
		Short: "Show the derived execution status of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(*addr, *token)
			id := args[0]

			var status struct {
				ThreadID string `json:"thread_id"`
				domain.ThreadExecutionStatus
			}
			if err := client.do(cmd.Context(), http.MethodGet, "/threads/"+id+"/status", nil, &status); err != nil {
				return err
			}

			var steps stepsEnvelope
			if err := client.do(cmd.Context(), http.MethodGet, "/threads/"+id+"/steps", nil, &steps); err != nil {
				return err
			}

			pairs := []ui.Pair{
				ui.KV("Thread", ui.Bold(status.ThreadID)),
				ui.KV("Status", ui.Status(string(status.Status))),
				ui.KV("Current step", currentStepValue(status.CurrentStep)),
				ui.KV("Progress", ui.Bar(status.Progress, 20)),
				ui.KV("Steps", fmt.Sprintf("%d/%d", status.CompletedSteps, status.TotalSteps)),
				ui.KV("Realtime", ui.Bool(status.ShouldEnableRealtime)),
				ui.KV("Historical", ui.Bool(status.ShouldSwitchToHistorical)),
			}
			if status.Error != "" {
				pairs = append(pairs, ui.KV("Error", ui.ErrorStyle.Render(status.Error)))
			}
			if status.StartedAt != nil {
				pairs = append(pairs, ui.KV("Started", status.StartedAt.Format(time.RFC3339)))
			}
			if status.CompletedAt != nil {
				pairs = append(pairs, ui.KV("Completed", status.CompletedAt.Format(time.RFC3339)))
			}
			fmt.Print(ui.KeyValues("  ", pairs...))

			if len(steps.Steps) == 0 {
				return nil
			}

			fmt.Println()
			width := 0
			for _, s := range steps.Steps {
				if len(s.ID) > width {
					width = len(s.ID)
				}
			}
			for _, s := range steps.Steps {
				fmt.Printf("  %s %-*s %s\n",
					ui.StatusIcon(string(s.Status)),
					width, s.ID,
					ui.Muted(fmt.Sprintf("%3d%%", s.Progress)),
				)
			}
			return nil
		},
	}
}

func threadsStepsCmd(addr, token *string) *cobra.Command {
	var next bool

	cmd := &cobra.Command{
		Use:   "steps <thread-id>",
		Short: "List a thread's plan steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(*addr, *token)

			path := "/threads/" + args[0] + "/steps"
			if next {
				path += "/next"
			}

			var resp stepsEnvelope
			if err := client.do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}

			if len(resp.Steps) == 0 {
				if next {
					fmt.Println(ui.InfoMsg("no steps are ready to run"))
				} else {
					fmt.Println(ui.InfoMsg("thread has no plan steps"))
				}
				return nil
			}

			rows := make([][]string, 0, len(resp.Steps))
			for _, s := range resp.Steps {
				rows = append(rows, []string{
					s.ID,
					string(s.Kind),
					ui.Status(string(s.Status)),
					fmt.Sprintf("%d%%", s.Progress),
					strings.Join(s.Dependencies, ", "),
				})
			}
			fmt.Println(ui.Table([]string{"STEP", "KIND", "STATUS", "PROGRESS", "DEPENDS ON"}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&next, "next", false, "Show only steps whose dependencies are satisfied")
	return cmd
}

func threadsEventsCmd(addr, token *string) *cobra.Command {
	var (
		step       string
		status     string
		progress   int
		stepNumber int
		totalSteps int
	)

	cmd := &cobra.Command{
		Use:   "events <thread-id>",
		Short: "Append a step event to a thread's stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(*addr, *token)

			payload := struct {
				Events []domain.StepMessage `json:"events"`
			}{
				Events: []domain.StepMessage{{
					Step:       step,
					Status:     domain.MessageStatus(status),
					Progress:   progress,
					StepNumber: stepNumber,
					TotalSteps: totalSteps,
				}},
			}

			var resp struct {
				ThreadID string `json:"thread_id"`
				Appended int    `json:"appended"`
				LastSeq  int64  `json:"last_seq"`
			}
			if err := client.do(cmd.Context(), http.MethodPost, "/threads/"+args[0]+"/events", payload, &resp); err != nil {
				return err
			}

			fmt.Println(ui.SuccessMsg("event appended at seq %d", resp.LastSeq))
			return nil
		},
	}

	cmd.Flags().StringVar(&step, "step", "", "Step id or name (empty means a thread-level signal)")
	cmd.Flags().StringVar(&status, "status", "", "Event status: pending, running, completed, failed, or cancelled")
	cmd.Flags().IntVar(&progress, "progress", 0, "Step progress, 0 to 100")
	cmd.Flags().IntVar(&stepNumber, "step-number", 0, "Position of the step in its plan")
	cmd.Flags().IntVar(&totalSteps, "total-steps", 0, "Step count the producer believes the plan has")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func threadsCancelCmd(addr, token *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <thread-id>",
		Short: "Cancel a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(*addr, *token)

			var resp struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			}
			if err := client.do(cmd.Context(), http.MethodPost, "/threads/"+args[0]+"/cancel", nil, &resp); err != nil {
				return err
			}

			fmt.Println(ui.SuccessMsg("thread %s is now %s", resp.ID, ui.Status(resp.Status)))
			return nil
		},
	}
}

// currentStepValue styles the analyzer's current step for display. Sentinel
// values take their status color; named steps get the accent color.
func currentStepValue(cs string) string {
	switch cs {
	case "":
		return ui.Muted("-")
	case domain.CurrentStepPending, domain.CurrentStepCompleted:
		return ui.Status(cs)
	default:
		return ui.Accent(cs)
	}
}
