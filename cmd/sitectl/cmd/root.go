package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/hpcdispatch/internal/common"
	"github.com/G-Research/hpcdispatch/internal/dispatch/configuration"
	"github.com/G-Research/hpcdispatch/internal/dispatch/site"
)

var rootCmd = &cobra.Command{
	Use:   "sitectl",
	Short: "sitectl inspects the compute site configuration of the pipeline dispatcher.",
	Long: `sitectl loads the dispatcher configuration, builds the configured compute
site and reports what the dispatcher would do with it: which executors the
site defines, which one a given resource request selects, and the batch
submission script each executor generates.`,
}

var (
	configPath string
	siteName   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Fully qualified path to application configuration file")
	rootCmd.PersistentFlags().StringVar(&siteName, "site", "", "Compute site to inspect, defaults to the configured computeSite")

	rootCmd.AddCommand(
		executorsCmd(),
		renderCmd(),
		selectCmd(),
		kindsCmd(),
	)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func loadSite() (*configuration.DispatcherConfig, site.Site, error) {
	var config configuration.DispatcherConfig
	common.LoadConfig(&config, "./config/dispatcher", configPath)
	if siteName != "" {
		config.ComputeSite = siteName
	}
	computeSite, err := site.FromConfig(&config)
	if err != nil {
		return nil, nil, err
	}
	return &config, computeSite, nil
}
