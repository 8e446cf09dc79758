package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/G-Research/hpcdispatch/internal/dispatch/directive"
)

func renderCmd() *cobra.Command {
	workerInit := false
	cmd := &cobra.Command{
		Use:   "render <executor>",
		Short: "Show the batch submission directives an executor generates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, computeSite, err := loadSite()
			if err != nil {
				return err
			}
			descriptors, err := computeSite.Executors()
			if err != nil {
				return err
			}
			for _, d := range descriptors {
				if d.Name != args[0] {
					continue
				}
				directives, err := directive.Build(d.Settings, d.Request)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), directives.Script())
				if workerInit && directives.WorkerInit != "" {
					fmt.Fprintln(cmd.OutOrStdout(), directives.WorkerInit)
				}
				return nil
			}
			return errors.Errorf("no executor %q on this site", args[0])
		},
	}
	cmd.Flags().BoolVar(&workerInit, "worker-init", false, "Include the worker initialisation commands after the directives")
	return cmd
}
