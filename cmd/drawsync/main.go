// Command drawsync tracks one account's lottery tickets against the draw
// backend: it resolves purchases, watches for oracle fulfillment, polls
// settlements and publishes ticket outcomes.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
