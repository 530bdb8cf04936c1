// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package secrets implements the secrets command group for storing oracle
// provider keys in the OS keychain.
package secrets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tombee/mcporch/internal/commands/shared"
	"github.com/tombee/mcporch/internal/secrets"
)

// newResolver is replaced in tests.
var newResolver = secrets.DefaultResolver

// NewCommand creates the secrets command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage oracle API keys",
		Long: `Manage the API keys the planning oracle uses.

Keys are looked up in order:
  1. Environment variables (MCPORCH_SECRET_<KEY>, or GEMINI_API_KEY and friends)
  2. System keychain (macOS Keychain, Linux Secret Service, Windows Credential Manager)

A bare provider name is shorthand for providers/<name>/api_key.

Examples:
  mcporch secrets set gemini
  echo "$KEY" | mcporch secrets set providers/openai/api_key
  mcporch secrets get gemini
  mcporch secrets delete gemini`,
	}

	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newDeleteCommand())
	cmd.AddCommand(newBackendsCommand())

	return cmd
}

// secretKey expands a bare provider name to its key.
func secretKey(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", shared.NewInputError("secret key cannot be empty", nil)
	}
	if strings.HasPrefix(arg, "/") || strings.HasSuffix(arg, "/") || strings.Contains(arg, "//") {
		return "", shared.NewInputError(fmt.Sprintf("invalid secret key %q", arg), errors.New("use namespace/name, e.g. providers/gemini/api_key"))
	}
	if !strings.Contains(arg, "/") {
		return secrets.ProviderKey(arg), nil
	}
	return arg, nil
}

func newSetCommand() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "set <provider|key>",
		Short: "Store a secret",
		Long: `Store a secret in a writable backend (the keychain by default).

The value is read from standard input when it is piped, otherwise an
interactive prompt asks for it without echo.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secretKey(args[0])
			if err != nil {
				return err
			}
			value, err := readSecretValue(cmd, key)
			if err != nil {
				return shared.NewInputError("failed to read secret value", err)
			}
			if value == "" {
				return shared.NewInputError("secret value cannot be empty", nil)
			}
			if err := newResolver().Set(cmd.Context(), key, value, backend); err != nil {
				return fmt.Errorf("failed to store %s: %w", key, err)
			}
			cmd.Println(shared.RenderOK("Stored " + key))
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "Target backend (keychain)")

	return cmd
}

func newGetCommand() *cobra.Command {
	var unmask bool

	cmd := &cobra.Command{
		Use:   "get <provider|key>",
		Short: "Show a secret, masked unless --unmask is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secretKey(args[0])
			if err != nil {
				return err
			}
			value, err := newResolver().Get(cmd.Context(), key)
			if err != nil {
				if errors.Is(err, secrets.ErrSecretNotFound) {
					return shared.NewInputError(fmt.Sprintf("no secret stored for %s", key), err)
				}
				return fmt.Errorf("failed to read %s: %w", key, err)
			}
			if !unmask {
				value = maskSecret(value)
			}
			cmd.Println(value)
			return nil
		},
	}

	cmd.Flags().BoolVar(&unmask, "unmask", false, "Show the full value")

	return cmd
}

func newDeleteCommand() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "delete <provider|key>",
		Short: "Remove a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secretKey(args[0])
			if err != nil {
				return err
			}
			if err := newResolver().Delete(cmd.Context(), key, backend); err != nil {
				if errors.Is(err, secrets.ErrSecretNotFound) {
					return shared.NewInputError(fmt.Sprintf("no secret stored for %s", key), err)
				}
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
			cmd.Println(shared.RenderOK("Deleted " + key))
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "Target backend (keychain)")

	return cmd
}

func newBackendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List available secret backends in lookup order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, b := range newResolver().Backends() {
				mode := "read-only"
				if b.Writable() {
					mode = "read-write"
				}
				cmd.Printf("%-10s %d  %s\n", b.Name(), i+1, shared.Muted.Render(mode))
			}
			return nil
		},
	}
}

// readSecretValue reads a piped value from stdin or prompts for it without
// echo when stdin is a terminal.
func readSecretValue(cmd *cobra.Command, key string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		var value string
		err := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Value for " + key).
				EchoMode(huh.EchoModePassword).
				Value(&value).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("value is required")
					}
					return nil
				}),
		)).WithInput(f).WithOutput(cmd.ErrOrStderr()).Run()
		if errors.Is(err, huh.ErrUserAborted) {
			return "", errors.New("cancelled")
		}
		return strings.TrimSpace(value), err
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// maskSecret shows the first and last four characters of long values.
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
