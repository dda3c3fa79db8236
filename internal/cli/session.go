package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewSessionCmd создаёт группу команд для управления сессиями.
func NewSessionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions",
	}

	cmd.AddCommand(
		newSessionCreateCmd(clientFn, outputFn),
		newSessionMeCmd(clientFn, outputFn),
		newSessionSetPrivilegesCmd(clientFn, outputFn),
	)

	return cmd
}

func newSessionCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var privileges []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session and print its token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			session, err := client.CreateSession(privileges)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Session created: %s", session.ID))
			out.Success("Pass the token via --token or CONVEYOR_TOKEN")
			out.Detail(sessionPairs(session), session)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&privileges, "privilege", nil,
		"Privilege to grant: shell_command, sql_query or redis_command (repeatable)")

	return cmd
}

func newSessionMeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the session of the current token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			session, err := client.GetCurrentSession()
			if err != nil {
				return err
			}

			out.Detail(sessionPairs(session), session)
			return nil
		},
	}
}

func newSessionSetPrivilegesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var privileges []string

	cmd := &cobra.Command{
		Use:   "set-privileges ID",
		Short: "Replace session privileges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			session, err := client.UpdateSessionPrivileges(args[0], privileges)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Privileges updated: %s", strings.Join(session.Privileges, ",")))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&privileges, "privilege", nil,
		"Privilege to grant: shell_command, sql_query or redis_command (repeatable; empty revokes all)")

	return cmd
}

// sessionPairs собирает пары ключ-значение для Detail-вывода сессии.
// Токен приходит только в ответе на создание.
func sessionPairs(s *SessionResponse) [][2]string {
	pairs := [][2]string{{"ID", s.ID}}
	if s.Token != "" {
		pairs = append(pairs, [2]string{"Token", s.Token})
	}
	return append(pairs,
		[2]string{"Privileges", strings.Join(s.Privileges, ",")},
		[2]string{"Created", s.CreatedAt},
	)
}
