// Package main implements stobixd, a multi-account Stobix bot that logs in
// each wallet, claims tasks, keeps mining running and reports points.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stobixd: %v\n", err)
		os.Exit(1)
	}
}
