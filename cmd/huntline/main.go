package main

import (
	"os"

	"candid.fyi/huntline/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
