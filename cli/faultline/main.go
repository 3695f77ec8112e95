package main

import (
	"os"

	faultlinecmder "github.com/papercomputeco/faultline/cmd/faultline"
)

func main() {
	cmd := faultlinecmder.NewFaultlineCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
