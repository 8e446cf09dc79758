package main

import (
	"github.com/G-Research/hpcdispatch/cmd/sitectl/cmd"
	"github.com/G-Research/hpcdispatch/internal/common"
)

func main() {
	common.ConfigureCommandLineLogging()
	cmd.Execute()
}
