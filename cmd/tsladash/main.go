package main

import (
	"github.com/dyike/tsladash/internal/cli"
)

func main() {
	cli.Run()
}
