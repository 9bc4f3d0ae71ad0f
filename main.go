package main

import (
	"os"

	"loadceiling/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
