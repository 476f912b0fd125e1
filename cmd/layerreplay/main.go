package main

import (
	"context"

	"github.com/danmuck/layermirror/internal/logging"
	"github.com/scott-cotton/cli"
)

func main() {
	logging.ConfigureRuntime()
	cli.MainContext(context.Background(), ReplayCommand())
}
