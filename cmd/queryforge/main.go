// Command queryforge reformulates queries with LLM-based expansion methods,
// retrieves contexts for them and serves both over HTTP.
package main

import (
	"os"
)

func main() {
	if err := newApp().rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
