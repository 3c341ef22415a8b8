// Package main implements hash-password, which derives the -pbkdf2-
// admin credential form accepted by the duffel server's --pass flag.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phrazzld/duffel/internal/gateway"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var iterations int
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Derive a -pbkdf2- value for the duffel --pass flag",
		Long: `Derives a CouchDB-style "-pbkdf2-<key>,<salt>,<iterations>" value with a
fresh random salt. Configure it as the server's admin password instead
of the plain text; the server verifies presented passwords against it.

The password is taken from the first argument, or from stdin when no
argument is given.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, args)
			if err != nil {
				return err
			}
			if password == "" {
				return fmt.Errorf("password must not be empty")
			}
			hash, err := gateway.HashPassword(password, iterations)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 10, "PBKDF2 iteration count")
	return cmd
}

func readPassword(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading password from stdin: %w", err)
		}
		return "", fmt.Errorf("no password given")
	}
	return strings.TrimSpace(scanner.Text()), nil
}
