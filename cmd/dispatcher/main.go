package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/G-Research/hpcdispatch/internal/common"
	"github.com/G-Research/hpcdispatch/internal/common/task"
	"github.com/G-Research/hpcdispatch/internal/dispatch"
	"github.com/G-Research/hpcdispatch/internal/dispatch/batch"
	"github.com/G-Research/hpcdispatch/internal/dispatch/configuration"
	"github.com/G-Research/hpcdispatch/internal/dispatch/site"
)

const CustomConfigLocation string = "config"

func init() {
	pflag.String(CustomConfigLocation, "", "Fully qualified path to application configuration file")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.DispatcherConfig
	userSpecifiedConfig := viper.GetString(CustomConfigLocation)
	common.LoadConfig(&config, "./config/dispatcher", userSpecifiedConfig)

	log.Info("Starting...")
	log.Infof("Dispatching to compute site %s", config.ComputeSite)

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
	defer shutdownMetricServer()

	computeSite, err := site.FromConfig(&config)
	if err != nil {
		log.Fatalf("Invalid site configuration: %s", err)
	}

	client := &batch.SlurmClient{ScriptDir: filepath.Join(config.SubmitPath, "blocks")}
	service, err := dispatch.NewService(&config, computeSite, runtimeFromEnvironment(), client)
	if err != nil {
		log.Fatalf("Could not start dispatch service: %s", err)
	}
	defer service.Shutdown()

	taskManager := task.NewBackgroundTaskManager("hpcdispatch_")
	taskManager.Register(service.RefreshBlocks, time.Minute, "block_refresh")
	defer taskManager.StopAll(10 * time.Second)

	<-stopSignal
	log.Info("Stopping...")
}
