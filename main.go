package main

import (
	"github.com/joho/godotenv"

	"apexcoach/cmd"
)

func main() {
	// .env keeps the telegram token out of shell history; absence is fine.
	_ = godotenv.Load()
	cmd.Execute()
}
