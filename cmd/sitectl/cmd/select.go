package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/G-Research/hpcdispatch/pkg/api"
)

func selectCmd() *cobra.Command {
	var (
		memory   string
		disk     string
		cores    int
		walltime time.Duration
	)
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Show which executor a resource request selects",
		Long: `Resolves a resource request against the compute site's executor selection,
the same way the dispatcher routes a job. For example:

  sitectl select --memory 3Gi
  sitectl select --memory 10Gi --cores 4 --walltime 2h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := api.ResourceSpec{Cores: cores, Walltime: walltime}
			if memory != "" {
				quantity, err := resource.ParseQuantity(memory)
				if err != nil {
					return fmt.Errorf("error reading memory: %s", err)
				}
				spec.Memory = &quantity
			}
			if disk != "" {
				quantity, err := resource.ParseQuantity(disk)
				if err != nil {
					return fmt.Errorf("error reading disk: %s", err)
				}
				spec.Disk = &quantity
			}

			_, computeSite, err := loadSite()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), computeSite.SelectExecutor(spec))
			return nil
		},
	}
	cmd.Flags().StringVar(&memory, "memory", "", "Memory the job requests, e.g. 3Gi")
	cmd.Flags().StringVar(&disk, "disk", "", "Scratch disk the job requests, e.g. 20Gi")
	cmd.Flags().IntVar(&cores, "cores", 0, "Cores the job requests")
	cmd.Flags().DurationVar(&walltime, "walltime", 0, "Walltime the job requests, e.g. 2h30m")
	return cmd
}
