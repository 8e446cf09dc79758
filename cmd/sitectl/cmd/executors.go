package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/G-Research/hpcdispatch/internal/common/config"
)

func executorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "executors",
		Short: "List the executors of the compute site",
		Long: `Lists every executor the configured compute site defines, with the resource
ceilings used for executor selection and the block limits used for scaling.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, computeSite, err := loadSite()
			if err != nil {
				return err
			}
			descriptors, err := computeSite.Executors()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tMEMORY\tCORES\tWALLTIME\tMAX BLOCKS")
			for _, d := range descriptors {
				memory := "-"
				if d.Ceiling.Memory != nil {
					memory = d.Ceiling.Memory.String()
				}
				cores := "-"
				if d.Ceiling.Cores > 0 {
					cores = fmt.Sprintf("%d", d.Ceiling.Cores)
				}
				walltime := "-"
				if d.Request.Walltime > 0 {
					walltime = config.FormatWalltime(d.Request.Walltime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", d.Name, d.Kind, memory, cores, walltime, d.Scaling.MaxBlocks)
			}
			return w.Flush()
		},
	}
}
