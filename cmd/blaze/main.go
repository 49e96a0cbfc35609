// Command blaze drives a batch of API requests through a pool of weighted
// backend endpoints, writing successes and failures to separate JSONL
// files.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

const banner = `
    ____  __                       ___    ____  ____
   / __ )/ /___ _____  ___        /   |  / __ \/  _/
  / __  / / __ ` + "`" + `/_  / / _ \      / /| | / /_/ // /
 / /_/ / / /_/ / / /_/  __/     / ___ |/ ____// /
/_____/_/\__,_/ /___/\___/     /_/  |_/_/   /___/

    High-Performance Batch API Client
`

const version = "0.1.0"

func main() {
	log.SetFlags(0)

	root := &cobra.Command{
		Use:     "blaze",
		Short:   "Batch API request dispatcher",
		Version: version,
	}

	root.AddCommand(newRunCommand())
	root.AddCommand(newValidateCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printBanner() {
	fmt.Println(banner)
}
