package main

import (
	"os"

	"horse.fit/tgewatch/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
