package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/problem-search/cmd/psctl/cmd"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
