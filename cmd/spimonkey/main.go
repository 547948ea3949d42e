// Package main is the spimonkey command itself.
package main

import (
	"log"
	"os"

	"go.viam.com/spimonkey/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr, nil)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
