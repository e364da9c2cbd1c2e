package main

import (
	"fmt"
	"os"

	"github.com/webfm/webfm_sdk_go/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
