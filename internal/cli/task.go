package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для управления tasks.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskCreateCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var search string
	var label string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks(ListTasksOpts{
				Search: search,
				Label:  label,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "LABELS", "CREATED"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{t.ID, t.Name, strings.Join(t.Labels, ","), t.CreatedAt}
			}

			out.Print(headers, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Filter by name or description substring")
	cmd.Flags().StringVar(&label, "label", "", "Filter by label")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newTaskCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task from a JSON definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read definition file: %w", err)
			}

			// Валидируем что это валидный JSON
			if !json.Valid(data) {
				return fmt.Errorf("definition file is not valid JSON")
			}

			task, err := client.CreateTask(json.RawMessage(data))
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task created: %s", task.ID))
			out.Detail(taskPairs(task), task)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to task definition JSON file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetTask(args[0])
			if err != nil {
				return err
			}

			out.Detail(taskPairs(task), task)
			return nil
		},
	}
}

func newTaskDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteTask(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task deleted: %s", args[0]))
			return nil
		},
	}
}

// taskPairs собирает пары ключ-значение для Detail-вывода task.
func taskPairs(t *TaskResponse) [][2]string {
	pairs := [][2]string{
		{"ID", t.ID},
		{"Name", t.Name},
	}
	if t.Description != "" {
		pairs = append(pairs, [2]string{"Description", truncate(t.Description, 80)})
	}
	if len(t.Labels) > 0 {
		pairs = append(pairs, [2]string{"Labels", strings.Join(t.Labels, ",")})
	}
	pairs = append(pairs, [2]string{"Created", t.CreatedAt})

	for _, v := range t.Variables {
		desc := v.Key
		if v.Required {
			desc += " (required)"
		}
		if v.DefaultValue != nil {
			desc += " default=" + *v.DefaultValue
		}
		if len(v.Selection) > 0 {
			desc += " one of: " + strings.Join(v.Selection, ", ")
		}
		pairs = append(pairs, [2]string{"Variable", desc})
	}

	for _, s := range t.Steps {
		desc := fmt.Sprintf("%s (%s)", s.Name, processorKind(s.Processor))
		if s.AdvertisedVariableKey != nil {
			desc += " advertises " + *s.AdvertisedVariableKey
		}
		pairs = append(pairs, [2]string{"Step " + strconv.Itoa(s.Position), desc})
	}

	return pairs
}

// processorKind извлекает вид процессора из сериализованной конфигурации.
// В tagged union заполнено ровно одно поле.
func processorKind(processor map[string]any) string {
	for kind, cfg := range processor {
		if cfg != nil {
			return kind
		}
	}
	return "unknown"
}
