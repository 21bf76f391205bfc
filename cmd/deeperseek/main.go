package main

import (
	"os"

	"github.com/PaulBappoo/Deeperseek/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
