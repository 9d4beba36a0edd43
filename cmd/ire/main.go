package main

import (
	"ire/internal/cmd"
	"ire/internal/logger"
)

func main() {
	logger.Init()
	cmd.Execute()
}
