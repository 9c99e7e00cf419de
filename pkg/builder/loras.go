// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"fmt"

	"github.com/jllopis/canvasgraph/pkg/canvas"
	"github.com/jllopis/canvasgraph/pkg/graph"
)

// addSeamless splices a seamless node between the model loader and the
// denoiser's UNet input. It also becomes the VAE source.
func addSeamless(g *graph.Graph, p canvas.Params, a Anchors) (Anchors, int, error) {
	if !p.SeamlessX && !p.SeamlessY {
		return a, 0, nil
	}
	w := newWiring(g)
	seamless := w.add(SeamlessID, &graph.Seamless{SeamlessX: p.SeamlessX, SeamlessY: p.SeamlessY})
	if w.err != nil {
		return a, 0, w.err
	}
	vae := a.ModelLoader
	if a.VAELoader != nil {
		vae = a.VAELoader
	}
	g.DeleteEdgesTo(a.Denoise.ID, graph.PortUNet)
	w.edge(a.ModelLoader, graph.PortUNet, seamless, graph.PortUNet)
	w.edge(vae, graph.PortVAE, seamless, graph.PortVAE)
	w.edge(seamless, graph.PortUNet, a.Denoise, graph.PortUNet)
	if w.err != nil {
		return a, 0, w.err
	}
	g.UpsertMetadata(map[string]any{
		"seamless_x": p.SeamlessX,
		"seamless_y": p.SeamlessY,
	})
	a.Seamless = seamless
	return a, w.added, nil
}

type loraMetadata struct {
	Model  graph.ModelField `json:"model"`
	Weight float64          `json:"weight"`
}

// addLoRAs inserts one loader per enabled LoRA, in configured order, between
// the model loader and the UNet/CLIP consumers. LoRAs for another base are
// skipped.
func addLoRAs(g *graph.Graph, loras []canvas.LoRA, t target, a Anchors) (int, []Diagnostic, error) {
	var (
		usable []canvas.LoRA
		diags  []Diagnostic
	)
	for _, l := range loras {
		if l.Model.Base != t.base() {
			diags = append(diags, Diagnostic{
				Capability: CapabilityLoRA,
				Entity:     l.ID,
				Reason:     fmt.Sprintf("lora base %q does not match model base %q", l.Model.Base, t.base()),
			})
			continue
		}
		usable = append(usable, l)
	}
	if len(usable) == 0 {
		return 0, diags, nil
	}

	// The UNet chain ends at the seamless node when present.
	unetSink := a.Denoise
	if a.Seamless != nil {
		unetSink = a.Seamless
	}
	var clipSinks []*graph.Node
	if t.sdxl() {
		clipSinks = []*graph.Node{a.PosCond, a.NegCond}
	} else {
		clipSinks = []*graph.Node{a.ClipSkip}
	}
	g.DeleteEdgesTo(unetSink.ID, graph.PortUNet)
	for _, sink := range clipSinks {
		g.DeleteEdgesTo(sink.ID, graph.PortCLIP, graph.PortCLIP2)
	}

	w := newWiring(g)
	prev := a.ModelLoader
	meta := make([]loraMetadata, 0, len(usable))
	for _, l := range usable {
		var loader *graph.Node
		if t.sdxl() {
			loader = w.addPrefixed("sdxl_lora_loader", &graph.SDXLLoRALoader{LoRA: l.Model.Field(), Weight: l.Weight})
		} else {
			loader = w.addPrefixed("lora_loader", &graph.LoRALoader{LoRA: l.Model.Field(), Weight: l.Weight})
		}
		if w.err != nil {
			return 0, diags, w.err
		}
		w.edge(prev, graph.PortUNet, loader, graph.PortUNet)
		w.edge(prev, graph.PortCLIP, loader, graph.PortCLIP)
		if t.sdxl() {
			w.edge(prev, graph.PortCLIP2, loader, graph.PortCLIP2)
		}
		meta = append(meta, loraMetadata{Model: l.Model.Field(), Weight: l.Weight})
		prev = loader
	}

	w.edge(prev, graph.PortUNet, unetSink, graph.PortUNet)
	for _, sink := range clipSinks {
		w.edge(prev, graph.PortCLIP, sink, graph.PortCLIP)
		if t.sdxl() {
			w.edge(prev, graph.PortCLIP2, sink, graph.PortCLIP2)
		}
	}
	if w.err != nil {
		return 0, diags, w.err
	}
	g.UpsertMetadata(map[string]any{"loras": meta})
	return w.added, diags, nil
}
