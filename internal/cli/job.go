package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для управления jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs",
	}

	cmd.AddCommand(
		newJobListCmd(clientFn, outputFn),
		newJobRunCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var taskID string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(ListJobsOpts{
				TaskID: taskID,
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "STATUS", "CREATED"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{j.ID, j.Name, j.Status, j.CreatedAt}
			}

			out.Print(headers, rows, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&taskID, "task-id", "", "Filter by task ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (SCHEDULED, PENDING, RUNNING, OK, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newJobRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var vars []string
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "run TASK_ID",
		Short: "Create a job from a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			variables, err := parseVars(vars)
			if err != nil {
				return err
			}

			job, err := client.CreateJob(args[0], CreateJobRequest{
				Variables:      variables,
				IdempotencyKey: idempotencyKey,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job scheduled: %s", job.ID))
			out.Detail(jobPairs(job), job)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&vars, "var", nil, "Variable values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Reuse the existing job with the same key")

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show job details with step outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.GetJob(args[0])
			if err != nil {
				return err
			}

			out.Detail(jobPairs(job), job)
			return nil
		},
	}
}

func newJobCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.CancelJob(args[0])
			if err != nil {
				return err
			}

			// SCHEDULED jobs отменяются сразу, для запущенных
			// запрос выполнит воркер на границе шага
			if job.Status == "CANCELLED" {
				out.Success(fmt.Sprintf("Job cancelled: %s", job.ID))
			} else {
				out.Success(fmt.Sprintf("Cancellation requested: %s", job.ID))
			}
			return nil
		},
	}
}

// jobPairs собирает пары ключ-значение для Detail-вывода job.
func jobPairs(j *JobResponse) [][2]string {
	pairs := [][2]string{
		{"ID", j.ID},
		{"Name", j.Name},
		{"Status", j.Status},
	}
	if j.TaskID != "" {
		pairs = append(pairs, [2]string{"Task", j.TaskID})
	}
	if len(j.Privileges) > 0 {
		pairs = append(pairs, [2]string{"Privileges", strings.Join(j.Privileges, ",")})
	}
	if j.CancelRequested {
		pairs = append(pairs, [2]string{"Cancel requested", "true"})
	}
	pairs = append(pairs, [2]string{"Created", j.CreatedAt})

	for _, s := range j.Steps {
		desc := fmt.Sprintf("[%s] %s (%s)", s.Status, s.Name, processorKind(s.Processor))
		if s.Output != nil && s.Output.Text != nil && *s.Output.Text != "" {
			desc += ": " + truncate(*s.Output.Text, 60)
		}
		pairs = append(pairs, [2]string{"Step " + strconv.Itoa(s.Position), desc})
	}

	return pairs
}

// parseVars разбирает пары KEY=VALUE из повторяемого флага.
func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	vars := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid variable format %q, expected KEY=VALUE", kv)
		}
		vars[parts[0]] = parts[1]
	}
	return vars, nil
}
