// Package main is the queryvis command line tool.
package main

import (
	"log"
	"os"
)

func main() {
	app := NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
