package main

import (
	"log"
	"os"

	"github.com/githerald/githerald/cmd"
)

func main() {
	app := cmd.App()
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
