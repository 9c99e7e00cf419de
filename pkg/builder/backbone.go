// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"github.com/jllopis/canvasgraph/pkg/canvas"
	"github.com/jllopis/canvasgraph/pkg/graph"
	"github.com/jllopis/canvasgraph/pkg/model"
)

// target is the resolved main model a build assembles for.
type target struct {
	model model.Descriptor
	caps  model.Capabilities
}

func newTarget(d model.Descriptor) target {
	return target{model: d, caps: d.Supports()}
}

func (t target) base() model.BaseModel { return t.model.Base }

func (t target) sdxl() bool { return t.model.Base == model.BaseSDXL }

// buildBackbone adds the mandatory nodes: model loader, prompt encoders and
// their collectors, noise, denoiser and decoder. The decoder's VAE input is
// left open until the VAE source is known.
func buildBackbone(g *graph.Graph, s *canvas.State, t target) (Anchors, error) {
	p := s.Params
	_, scaled := s.BBox.Sizes()
	w := newWiring(g)
	var a Anchors

	mainModel := t.model.Field()
	if t.sdxl() {
		a.ModelLoader = w.add(SDXLModelLoaderID, &graph.SDXLModelLoader{Model: mainModel})
		posStyle, negStyle := p.StylePrompts()
		a.PosCond = w.add(PositiveConditioningID, sdxlPrompt(p.PositivePrompt, posStyle, scaled))
		a.PosCollect = w.add(PositiveConditioningCollect, &graph.Collect{})
		a.NegCond = w.add(NegativeConditioningID, sdxlPrompt(p.NegativePrompt, negStyle, scaled))
		a.NegCollect = w.add(NegativeConditioningCollect, &graph.Collect{})
	} else {
		a.ModelLoader = w.add(MainModelLoaderID, &graph.MainModelLoader{Model: mainModel})
		a.ClipSkip = w.add(ClipSkipID, &graph.ClipSkip{SkippedLayers: p.ClipSkip})
		a.PosCond = w.add(PositiveConditioningID, &graph.Compel{Prompt: p.PositivePrompt})
		a.PosCollect = w.add(PositiveConditioningCollect, &graph.Collect{})
		a.NegCond = w.add(NegativeConditioningID, &graph.Compel{Prompt: p.NegativePrompt})
		a.NegCollect = w.add(NegativeConditioningCollect, &graph.Collect{})
	}
	a.Noise = w.add(NoiseID, &graph.Noise{
		Seed:   p.Seed,
		Width:  scaled.Width,
		Height: scaled.Height,
		UseCPU: p.UseCPUNoise,
	})
	a.Denoise = w.add(DenoiseLatentsID, &graph.DenoiseLatents{
		CFGScale:             p.CFGScale,
		CFGRescaleMultiplier: p.CFGRescaleMultiplier,
		Scheduler:            p.Scheduler,
		Steps:                p.Steps,
		DenoisingStart:       0,
		DenoisingEnd:         1,
	})
	a.L2I = w.add(LatentsToImageID, &graph.LatentsToImage{FP32: p.FP32()})
	if p.VAE != nil && !p.VAE.IsZero() && p.VAE.Base == t.base() {
		a.VAELoader = w.add(VAELoaderID, &graph.VAELoader{VAEModel: p.VAE.Field()})
	}
	if w.err != nil {
		return Anchors{}, w.err
	}

	w.edge(a.ModelLoader, graph.PortUNet, a.Denoise, graph.PortUNet)
	if t.sdxl() {
		for _, cond := range []*graph.Node{a.PosCond, a.NegCond} {
			w.edge(a.ModelLoader, graph.PortCLIP, cond, graph.PortCLIP)
			w.edge(a.ModelLoader, graph.PortCLIP2, cond, graph.PortCLIP2)
		}
	} else {
		w.edge(a.ModelLoader, graph.PortCLIP, a.ClipSkip, graph.PortCLIP)
		w.edge(a.ClipSkip, graph.PortCLIP, a.PosCond, graph.PortCLIP)
		w.edge(a.ClipSkip, graph.PortCLIP, a.NegCond, graph.PortCLIP)
	}
	w.edge(a.PosCond, "conditioning", a.PosCollect, graph.PortItem)
	w.edge(a.NegCond, "conditioning", a.NegCollect, graph.PortItem)
	w.edge(a.PosCollect, graph.PortCollection, a.Denoise, "positive_conditioning")
	w.edge(a.NegCollect, graph.PortCollection, a.Denoise, "negative_conditioning")
	w.edge(a.Noise, "noise", a.Denoise, "noise")
	w.edge(a.Denoise, graph.PortLatents, a.L2I, graph.PortLatents)
	if w.err != nil {
		return Anchors{}, w.err
	}

	a.Output = a.L2I
	return a, nil
}

func sdxlPrompt(prompt, style string, size canvas.Size) *graph.SDXLCompelPrompt {
	return &graph.SDXLCompelPrompt{
		Prompt:         prompt,
		Style:          style,
		OriginalWidth:  size.Width,
		OriginalHeight: size.Height,
		TargetWidth:    size.Width,
		TargetHeight:   size.Height,
	}
}

// connectVAE picks the VAE source and feeds the decoder from it.
func connectVAE(g *graph.Graph, a Anchors) (Anchors, error) {
	switch {
	case a.Seamless != nil:
		a.VAESource = a.Seamless
	case a.VAELoader != nil:
		a.VAESource = a.VAELoader
	default:
		a.VAESource = a.ModelLoader
	}
	if err := g.AddEdge(a.VAESource.ID, graph.PortVAE, a.L2I.ID, graph.PortVAE); err != nil {
		return Anchors{}, err
	}
	return a, nil
}

// initialMetadata is the record stamped right after the backbone exists.
func initialMetadata(s *canvas.State, t target, mode canvas.Mode) map[string]any {
	p := s.Params
	_, scaled := s.BBox.Sizes()
	randDevice := "cuda"
	if p.UseCPUNoise {
		randDevice = "cpu"
	}
	md := map[string]any{
		"generation_mode":        string(mode),
		"cfg_scale":              p.CFGScale,
		"cfg_rescale_multiplier": p.CFGRescaleMultiplier,
		"width":                  scaled.Width,
		"height":                 scaled.Height,
		"positive_prompt":        p.PositivePrompt,
		"negative_prompt":        p.NegativePrompt,
		"model":                  t.model.Identifier,
		"seed":                   p.Seed,
		"steps":                  p.Steps,
		"rand_device":            randDevice,
		"scheduler":              p.Scheduler,
	}
	if t.sdxl() {
		posStyle, negStyle := p.StylePrompts()
		md["positive_style_prompt"] = posStyle
		md["negative_style_prompt"] = negStyle
	} else {
		md["clip_skip"] = p.ClipSkip
	}
	if p.VAE != nil && !p.VAE.IsZero() {
		md["vae"] = *p.VAE
	}
	return md
}
