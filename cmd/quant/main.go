package main

import (
	"os"

	"github.com/sujun1972/stock-analysis-go/cmd/quant/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
