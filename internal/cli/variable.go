package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVariableCmd создаёт группу команд для управления глобальными переменными.
func NewVariableCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "variable",
		Short: "Manage global variables",
	}

	cmd.AddCommand(
		newVariableListCmd(clientFn, outputFn),
		newVariableCreateCmd(clientFn, outputFn),
		newVariableDeleteCmd(clientFn, outputFn),
		newVariableAdvertisersCmd(clientFn, outputFn),
	)

	return cmd
}

func newVariableListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List global variables (values are never returned)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			variables, err := client.ListVariables()
			if err != nil {
				return err
			}

			headers := []string{"KEY", "CREATED", "UPDATED"}
			rows := make([][]string, len(variables))
			for i, v := range variables {
				rows[i] = []string{v.Key, v.CreatedAt, v.UpdatedAt}
			}

			out.Print(headers, rows, variables)
			return nil
		},
	}
}

func newVariableCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var onConflict string

	cmd := &cobra.Command{
		Use:   "create KEY VALUE",
		Short: "Create a global variable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			variable, err := client.CreateVariable(CreateVariableRequest{
				Key:        args[0],
				Value:      args[1],
				OnConflict: onConflict,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Variable created: %s", variable.Key))
			return nil
		},
	}

	cmd.Flags().StringVar(&onConflict, "on-conflict", "", "Behaviour when the key exists: ABORT (default) or UPDATE")

	return cmd
}

func newVariableDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete a global variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteVariable(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Variable deleted: %s", args[0]))
			return nil
		},
	}
}

func newVariableAdvertisersCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "advertisers KEY",
		Short: "List task steps that advertise this variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			advertisers, err := client.ListAdvertisers(args[0])
			if err != nil {
				return err
			}

			headers := []string{"TASK_ID", "TASK_NAME", "STEP_NAME"}
			rows := make([][]string, len(advertisers))
			for i, a := range advertisers {
				rows[i] = []string{a.TaskID, a.TaskName, a.StepName}
			}

			out.Print(headers, rows, advertisers)
			return nil
		},
	}
}
