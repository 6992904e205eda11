package main

import (
	"fmt"
	"os"

	"github.com/educates/lookup-service/cmd/lookup-service/app"
)

func main() {
	cmd, err := app.NewLookupServiceCommand()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
