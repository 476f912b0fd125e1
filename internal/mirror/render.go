package mirror

import (
	"fmt"
	"time"

	"github.com/danmuck/layermirror/internal/files"
	"github.com/danmuck/layermirror/internal/observability"
	"github.com/danmuck/layermirror/internal/render"
	"github.com/rs/zerolog/log"
)

const (
	ArtifactLayout  = "layout"
	ArtifactWrapper = "wrapper"
)

// RenderResult is what one render pass wrote.
type RenderResult struct {
	Name    string
	Layout  files.Summary
	Wrapper files.Summary
}

type artifacts struct {
	name    string
	layout  string
	wrapper string
}

// Render renders document id and writes its layout and wrapper.
func (s *Service) Render(id int) (RenderResult, error) {
	s.state.RenderStarted()
	defer s.state.RenderFinished()

	a, err := s.renderTexts(id)
	if err != nil {
		return RenderResult{}, err
	}
	res := RenderResult{Name: a.name}

	if res.Layout, err = s.write(ArtifactLayout, a.name, a.layout, s.files.LayoutPath); err != nil {
		return res, err
	}
	if res.Wrapper, err = s.write(ArtifactWrapper, a.name, a.wrapper, s.files.WrapperPath); err != nil {
		return res, err
	}
	return res, nil
}

// renderTexts holds the read lock only while producing text.
func (s *Service) renderTexts(id int) (artifacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return artifacts{}, fmt.Errorf("%w: %d", ErrUnknownDocument, id)
	}
	a := artifacts{name: files.LayoutName(d.File(), d.ID())}

	started := time.Now()
	layout, err := render.Layout(d)
	observability.RecordRender(ArtifactLayout, time.Since(started), err == nil)
	if err != nil {
		return a, fmt.Errorf("mirror: render layout %d: %w", id, err)
	}
	a.layout = layout

	started = time.Now()
	wrapper, err := render.Wrapper(a.name, d, s.opts)
	observability.RecordRender(ArtifactWrapper, time.Since(started), err == nil)
	if err != nil {
		return a, fmt.Errorf("mirror: render wrapper %d: %w", id, err)
	}
	a.wrapper = wrapper
	return a, nil
}

func (s *Service) write(artifact, name, text string, pathFor func(string) (string, error)) (files.Summary, error) {
	path, err := pathFor(name)
	if err != nil {
		return files.Summary{}, err
	}
	sum, err := s.files.WriteFile(path, text)
	if err != nil {
		return sum, fmt.Errorf("mirror: write %s: %w", artifact, err)
	}
	return sum, nil
}

// renderIfEnabled renders id when rendering is on and id is enabled.
// Failures are logged; the mirror keeps running.
func (s *Service) renderIfEnabled(id int) {
	if !s.cfg.RenderEnabled || !s.state.IsEnabled(id) {
		return
	}
	res, err := s.Render(id)
	if err != nil {
		log.Error().Err(err).Int("document", id).Msg("mirror render failed")
		return
	}
	log.Debug().
		Int("document", id).
		Str("name", res.Name).
		Bool("layout_changed", res.Layout.Changed).
		Bool("wrapper_changed", res.Wrapper.Changed).
		Msg("mirror rendered")
}
