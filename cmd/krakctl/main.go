package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const (
	version = "0.1.0"
)

func main() {
	// Mismo .env que krakd, para que KRAK_SOCKET_PATH coincida
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
