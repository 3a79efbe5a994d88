package main

import (
	"os"

	"github.com/callmeahab/catalog-search/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
