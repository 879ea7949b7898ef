package main

import (
	"os"

	"github.com/lockwhz/ai-scan-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
