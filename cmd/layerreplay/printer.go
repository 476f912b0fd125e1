package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/danmuck/layermirror/internal/document"
	"github.com/danmuck/layermirror/internal/protocol"
	"github.com/danmuck/layermirror/internal/render"
	"github.com/fatih/color"
)

type outputOptions struct {
	Layout bool
	JSON   bool
}

type printer struct {
	w     io.Writer
	head  func(a ...any) string
	ok    func(a ...any) string
	warn  func(a ...any) string
	fail  func(a ...any) string
	event func(e document.Event)
}

func newPrinter(w io.Writer, colorize bool) *printer {
	paint := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	p := &printer{
		w:    w,
		head: paint(color.FgCyan, color.Bold),
		ok:   paint(color.FgGreen),
		warn: paint(color.FgYellow),
		fail: paint(color.FgRed, color.Bold),
	}
	dim := paint(color.FgHiBlack)
	p.event = func(e document.Event) {
		fmt.Fprintf(p.w, "    %s %s\n", dim(string(e.Kind())), describe(e))
	}
	return p
}

func (p *printer) snapshot(d *document.Document) {
	fmt.Fprintf(p.w, "%s %d version %s count %d, %d layers\n",
		p.head("snapshot"), d.ID(), d.Version(), d.Count(), d.Layers().Len())
}

// apply applies c to d and reports the outcome.
func (p *printer) apply(d *document.Document, c protocol.Change) error {
	stale := d.IsStale(c)
	fmt.Fprintf(p.w, "%s %d/%d\n", p.head("change"), c.ID, c.Count)
	if err := d.ApplyChange(c); err != nil {
		p.failf("  failed: %v", err)
		return err
	}
	if stale {
		fmt.Fprintf(p.w, "  %s\n", p.warn("skipped, already applied"))
		return nil
	}
	fmt.Fprintf(p.w, "  %s\n", p.ok("applied"))
	return nil
}

func (p *printer) warnf(format string, args ...any) {
	fmt.Fprintln(p.w, p.warn(fmt.Sprintf(format, args...)))
}

func (p *printer) failf(format string, args ...any) {
	fmt.Fprintln(p.w, p.fail(fmt.Sprintf(format, args...)))
}

func (p *printer) final(d *document.Document, opts outputOptions) error {
	fmt.Fprintf(p.w, "%s %s\n", p.head("final"), d.String())
	if opts.Layout {
		layout, err := render.Layout(d)
		if err != nil {
			return fmt.Errorf("render layout %d: %w", d.ID(), err)
		}
		fmt.Fprintln(p.w, layout)
	}
	if opts.JSON {
		out, err := json.MarshalIndent(d.View(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(p.w, string(out))
	}
	return nil
}

func describe(e document.Event) string {
	switch e := e.(type) {
	case document.FileChanged:
		return fmt.Sprintf("%q (was %q)", e.File, e.Previous)
	case document.BoundsChanged:
		return fmt.Sprintf("%s (was %s)", e.Bounds, e.Previous)
	case document.SelectionChanged:
		ids := make([]int, 0, len(e.Selection))
		for id := range e.Selection {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		return fmt.Sprintf("%v (was %v)", ids, e.Previous)
	case document.ClosedChanged:
		return fmt.Sprintf("%v", e.Closed)
	default:
		return ""
	}
}
