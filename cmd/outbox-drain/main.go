package main

import (
	"context"
	"flag"
	"os"

	outboxdrain "github.com/emberline/catalogstore/internal/cmd/outboxdrain"
	"github.com/emberline/catalogstore/internal/platform/config"
)

func main() {
	cfg, err := outboxdrain.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	if err := outboxdrain.Run(context.Background(), cfg, os.Stdout); err != nil {
		config.Exitf("Error: %v", err)
	}
}
