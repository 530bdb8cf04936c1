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

package servers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/mcporch/internal/commands/shared"
	internallog "github.com/tombee/mcporch/internal/log"
	"github.com/tombee/mcporch/internal/registry"
)

func newWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run discovery whenever the servers file changes",
		Long: `Run discovery once, then watch the servers file and run it again each
time the file is saved. The registry is rebuilt from the file on every
change, so removed servers disappear and edited endpoints are retried.

Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", registry.DefaultDebounce, "Wait this long for writes to settle before rediscovering")

	return cmd
}

func runWatch(cmd *cobra.Command, debounce time.Duration) error {
	rt, done, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer done()

	if rt.Config.ServersFile == "" {
		return shared.NewConfigError("nothing to watch", errors.New("set servers_file in the config"))
	}
	w, err := registry.NewFileWatcher(rt.Config.ServersFile, debounce, rt.Logger)
	if err != nil {
		return shared.NewConfigError("failed to watch servers file", err)
	}

	out := cmd.OutOrStdout()
	round := func(ctx context.Context) {
		reg, err := rt.Registry()
		if err != nil {
			// A half-saved file is common; wait for the next write.
			rt.Logger.Warn("servers file unreadable", internallog.Error(err))
			return
		}
		report, err := rt.Discoverer(reg).Run(ctx)
		if err != nil {
			return
		}
		if !shared.GetJSON() {
			fmt.Fprintln(out, shared.Muted.Render(time.Now().Format(time.TimeOnly)+" discovery"))
		}
		if err := printReport(out, "servers watch", reg, report); err != nil {
			rt.Logger.Warn("failed to write report", internallog.Error(err))
		}
	}

	ctx := cmd.Context()
	round(ctx)
	if err := w.Run(ctx, round); err != nil {
		return shared.NewConfigError("failed to watch servers file", err)
	}
	return nil
}
