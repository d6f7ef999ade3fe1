// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Command cdsstress hammers the cds containers from many goroutines and
// reports throughput, latency and reclamation statistics.
//
// Every flag can also be set through a CDS_-prefixed environment variable,
// with dashes replaced by underscores, or in a .env file in the working
// directory. For example, CDS_WAIT_STRATEGY=single-mutex-multi-condvar.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
