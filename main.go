package main

import (
	"github.com/dyike/CortexVN/internal/cli"
)

func main() {
	cli.Run()
}
