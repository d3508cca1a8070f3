package main

import (
	"github.com/ytget/yt-converter/internal/cli"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.Execute()
}
