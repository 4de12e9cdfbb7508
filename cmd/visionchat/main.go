package main

import (
	"os"

	"visionchat/internal/cli"
)

func main() { os.Exit(cli.Main()) }
