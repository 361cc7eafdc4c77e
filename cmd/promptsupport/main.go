package main

import (
	"promptsupport/cmd/handlers"
	"promptsupport/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
