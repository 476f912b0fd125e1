package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/layermirror/internal/document"
	"github.com/danmuck/layermirror/internal/hostlink"
	"github.com/danmuck/layermirror/internal/protocol/frame"
	"github.com/mattn/go-isatty"
	"github.com/scott-cotton/cli"
)

type ReplayConfig struct {
	*cli.Command

	Layout bool `cli:"name=layout desc='print the rendered layout XML of each final document'"`
	Frames bool `cli:"name=frames desc='read a recorded binary frame stream instead of a script'"`
	JSON   bool `cli:"name=json desc='print each final document as JSON'"`
	Color  bool `cli:"name=color desc='color output even when not writing to a terminal'"`
}

func ReplayCommand() *cli.Command {
	cfg := &ReplayConfig{}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "layerreplay").
		WithSynopsis("layerreplay [opts] [file]").
		WithDescription("layerreplay applies a recorded snapshot and its changes and prints the result.\n" +
			"Scripts are YAML or JSON: {snapshot: {...}, changes: [...]}. Reads stdin without a file.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return replay(cfg, cc, args)
		})
}

func replay(cfg *ReplayConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) > 1 {
		return fmt.Errorf("%w: at most one input file, got %v", cli.ErrUsage, args)
	}

	in := cc.In
	name := "stdin"
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("could not open %q: %w", args[0], err)
		}
		defer f.Close()
		in, name = f, args[0]
	}

	p := newPrinter(cc.Out, cfg.Color || isTerminal(cc.Out))
	var docs []*document.Document
	if cfg.Frames {
		docs, err = replayFrames(context.Background(), p, in)
	} else {
		var data []byte
		data, err = io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("error reading %s: %w", name, err)
		}
		var script Script
		script, err = ParseScript(data)
		if err != nil {
			return fmt.Errorf("error parsing %s: %w", name, err)
		}
		var d *document.Document
		d, err = replayScript(p, script)
		if d != nil {
			docs = append(docs, d)
		}
	}
	for _, d := range docs {
		if perr := p.final(d, outputOptions{Layout: cfg.Layout, JSON: cfg.JSON}); perr != nil {
			return perr
		}
	}
	return err
}

// replayFrames feeds a recorded host link stream through the same
// dispatcher the mirror uses.
func replayFrames(ctx context.Context, p *printer, r io.Reader) ([]*document.Document, error) {
	h := newFrameReplay(p)
	disp, err := hostlink.ReadAll(ctx, r, h, frame.DefaultLimits())
	if err != nil {
		return h.documents(), err
	}
	if pending := disp.Pending(); len(pending) > 0 {
		for _, item := range pending {
			p.failf("document %d needs resync: %s", item.DocumentID, item.Reason)
		}
		return h.documents(), fmt.Errorf("%d document(s) left needing resync", len(pending))
	}
	return h.documents(), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}
