// Command lexgraph runs the legal document representation and retrieval
// engine: the job worker and one-shot commands for ingest, search, graph
// reads and question answering.
package main

import (
	"os"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs/maxprocs"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
