package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/danmuck/layermirror/internal/logging"
	"github.com/danmuck/layermirror/internal/mirror"
	"github.com/rs/zerolog/log"
)

const defaultConfigPath = "cmd/layermirror/config.toml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "mirror config path")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := mirror.DefaultServiceConfig()
	loaded, err := loadServiceConfig(*configPath)
	switch {
	case err == nil:
		cfg = loaded
	case errors.Is(err, fs.ErrNotExist) && *configPath == defaultConfigPath:
		log.Warn().Str("path", *configPath).Msg("layermirror config not found, using defaults")
	default:
		fmt.Fprintf(os.Stderr, "layermirror: %v\n", err)
		os.Exit(1)
	}

	svc := mirror.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "layermirror: %v\n", err)
		os.Exit(1)
	}
}
