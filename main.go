package main

import (
	"os"

	"github.com/sirmark/resume/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
