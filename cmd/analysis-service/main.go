// Package main is the entry point of analysis-service (HTTP + WebSocket).
package main

import (
	"log"

	"github.com/medialens/analysis-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
