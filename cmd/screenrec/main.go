package main

import (
	"os"

	"github.com/yeti47/screenrec/cli"
)

func main() {
	deps := &cli.Dependencies{}
	err := cli.NewRootCmd(deps).Execute()
	if closeErr := deps.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cli.NewFormatter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}
