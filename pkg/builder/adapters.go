// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jllopis/canvasgraph/pkg/canvas"
	"github.com/jllopis/canvasgraph/pkg/graph"
	"github.com/jllopis/canvasgraph/pkg/model"
)

const defaultResizeMode = "just_resize"

type controlMetadata struct {
	Model            graph.ModelField `json:"model"`
	Weight           float64          `json:"weight"`
	BeginStepPercent float64          `json:"begin_step_percent"`
	EndStepPercent   float64          `json:"end_step_percent"`
	ControlMode      string           `json:"control_mode,omitempty"`
	Image            string           `json:"image"`
}

// resolveConcurrently runs fetch for every item and returns the results in
// item order, so node insertion stays deterministic.
func resolveConcurrently[T any](ctx context.Context, items []T, fetch func(context.Context, T) (string, error)) ([]string, error) {
	out := make([]string, len(items))
	eg, ctx := errgroup.WithContext(ctx)
	for i, item := range items {
		eg.Go(func() error {
			name, err := fetch(ctx, item)
			if err != nil {
				return err
			}
			out[i] = name
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// controlSupport reports why a control layer cannot be used with t, or "".
func controlSupport(l canvas.ControlLayer, t target) (Capability, string) {
	capability := CapabilityControlNet
	supported := t.caps.ControlNet
	if l.Kind == canvas.T2IAdapter {
		capability = CapabilityT2IAdapter
		supported = t.caps.T2IAdapter
	}
	switch {
	case !supported:
		return capability, fmt.Sprintf("%s is not supported by base %q", capability, t.base())
	case l.Model.Base != t.base():
		return capability, fmt.Sprintf("adapter base %q does not match model base %q", l.Model.Base, t.base())
	}
	return capability, ""
}

// addControlAdapters adds one node per usable control layer, fanning
// ControlNets into controlNets and T2I adapters into t2iAdapters. Layers the
// model cannot host are skipped with a diagnostic.
func addControlAdapters(ctx context.Context, g *graph.Graph, images canvas.ImageSource, layers []canvas.ControlLayer, t target, controlNets, t2iAdapters *Collector) (int, []Diagnostic, error) {
	var (
		usable []canvas.ControlLayer
		diags  []Diagnostic
	)
	for _, l := range layers {
		if capability, reason := controlSupport(l, t); reason != "" {
			diags = append(diags, Diagnostic{Capability: capability, Entity: l.ID, Reason: reason})
			continue
		}
		usable = append(usable, l)
	}
	if len(usable) == 0 {
		return 0, diags, nil
	}

	names, err := resolveConcurrently(ctx, usable, func(ctx context.Context, l canvas.ControlLayer) (string, error) {
		name, err := images.ControlLayerImage(ctx, l)
		if err != nil {
			return "", fmt.Errorf("resolve control layer %q image: %w", l.ID, err)
		}
		return name, nil
	})
	if err != nil {
		return 0, diags, err
	}

	w := newWiring(g)
	var cnMeta, t2iMeta []controlMetadata
	for i, l := range usable {
		meta := controlMetadata{
			Model:            l.Model.Field(),
			Weight:           l.Weight,
			BeginStepPercent: l.StepRange[0],
			EndStepPercent:   l.StepRange[1],
			Image:            names[i],
		}
		if l.Kind == canvas.T2IAdapter {
			n := w.add(entityID(g, "t2i_adapter", l.ID), &graph.T2IAdapter{
				Image:            imageField(names[i]),
				T2IAdapterModel:  l.Model.Field(),
				Weight:           l.Weight,
				BeginStepPercent: l.StepRange[0],
				EndStepPercent:   l.StepRange[1],
				ResizeMode:       defaultResizeMode,
			})
			w.collect(t2iAdapters, n, "t2i_adapter")
			t2iMeta = append(t2iMeta, meta)
			continue
		}
		n := w.add(entityID(g, "control_net", l.ID), &graph.ControlNet{
			Image:            imageField(names[i]),
			ControlModel:     l.Model.Field(),
			ControlWeight:    l.Weight,
			BeginStepPercent: l.StepRange[0],
			EndStepPercent:   l.StepRange[1],
			ControlMode:      l.ControlMode,
			ResizeMode:       defaultResizeMode,
		})
		w.collect(controlNets, n, "control")
		meta.ControlMode = l.ControlMode
		cnMeta = append(cnMeta, meta)
	}
	if w.err != nil {
		return 0, diags, w.err
	}
	if len(cnMeta) > 0 {
		g.UpsertMetadata(map[string]any{"controlnets": cnMeta})
	}
	if len(t2iMeta) > 0 {
		g.UpsertMetadata(map[string]any{"t2iAdapters": t2iMeta})
	}
	return w.added, diags, nil
}

type ipAdapterMetadata struct {
	Model            graph.ModelField `json:"model"`
	Weight           float64          `json:"weight"`
	Method           string           `json:"method,omitempty"`
	BeginStepPercent float64          `json:"begin_step_percent"`
	EndStepPercent   float64          `json:"end_step_percent"`
	Image            string           `json:"image"`
}

func ipAdapterSupport(a canvas.IPAdapter, t target) string {
	switch {
	case !t.caps.IPAdapter:
		return fmt.Sprintf("ip_adapter is not supported by base %q", t.base())
	case a.Model.Base != t.base():
		return fmt.Sprintf("adapter base %q does not match model base %q", a.Model.Base, t.base())
	}
	return ""
}

func ipAdapterNode(a canvas.IPAdapter) *graph.IPAdapter {
	return &graph.IPAdapter{
		Image:            imageField(a.Image),
		IPAdapterModel:   a.Model.Field(),
		Weight:           a.Weight,
		Method:           a.Method,
		BeginStepPercent: a.StepRange[0],
		EndStepPercent:   a.StepRange[1],
		CLIPVisionModel:  a.CLIPVisionModel,
	}
}

// addIPAdapters adds the global IP adapters into collector.
func addIPAdapters(g *graph.Graph, adapters []canvas.IPAdapter, t target, collector *Collector) (int, []Diagnostic, error) {
	var diags []Diagnostic
	w := newWiring(g)
	var meta []ipAdapterMetadata
	for _, a := range adapters {
		if reason := ipAdapterSupport(a, t); reason != "" {
			diags = append(diags, Diagnostic{Capability: CapabilityIPAdapter, Entity: a.ID, Reason: reason})
			continue
		}
		n := w.add(entityID(g, "ip_adapter", a.ID), ipAdapterNode(a))
		w.collect(collector, n, "ip_adapter")
		if w.err != nil {
			return 0, diags, w.err
		}
		meta = append(meta, ipAdapterMetadata{
			Model:            a.Model.Field(),
			Weight:           a.Weight,
			Method:           a.Method,
			BeginStepPercent: a.StepRange[0],
			EndStepPercent:   a.StepRange[1],
			Image:            a.Image,
		})
	}
	if len(meta) > 0 {
		g.UpsertMetadata(map[string]any{"ipAdapters": meta})
	}
	return w.added, diags, nil
}

// entityID derives a node id from an entity id, falling back to the
// allocator when the entity has none or the id is taken.
func entityID(g *graph.Graph, prefix, entity string) string {
	if entity != "" {
		id := prefix + "_" + entity
		if !g.HasNode(id) {
			return id
		}
	}
	return g.AllocateID(prefix)
}

// regionResult counts what one region contributed.
type regionResult struct {
	ID            string
	Conditionings int
	IPAdapters    int
}

// addRegions adds, per region, a mask tensor, regional prompt encoders that
// feed the shared conditioning collectors and regional IP adapters that feed
// ipAdapters.
func addRegions(ctx context.Context, g *graph.Graph, images canvas.ImageSource, regions []canvas.Region, t target, a Anchors, ipAdapters *Collector) ([]regionResult, []Diagnostic, error) {
	if len(regions) == 0 {
		return nil, nil, nil
	}
	masks, err := resolveConcurrently(ctx, regions, func(ctx context.Context, r canvas.Region) (string, error) {
		name, err := images.RegionMask(ctx, r)
		if err != nil {
			return "", fmt.Errorf("resolve region %q mask: %w", r.ID, err)
		}
		return name, nil
	})
	if err != nil {
		return nil, nil, err
	}

	clipPorts := []string{graph.PortCLIP, graph.PortCLIP2}
	var diags []Diagnostic
	results := make([]regionResult, 0, len(regions))
	for i, r := range regions {
		w := newWiring(g)
		res := regionResult{ID: r.ID}
		maskToTensor := w.addPrefixed("prompt_region_mask_to_tensor", &graph.AlphaMaskToTensor{Image: imageField(masks[i])})

		if r.PositivePrompt != "" {
			cond := w.addPrefixed("prompt_region_positive_cond", regionalPrompt(t, r.PositivePrompt))
			w.edge(maskToTensor, graph.PortMask, cond, graph.PortMask)
			w.edge(cond, "conditioning", a.PosCollect, graph.PortItem)
			w.copyInputs(a.PosCond, cond, clipPorts...)
			res.Conditionings++
		}
		if r.NegativePrompt != "" {
			cond := w.addPrefixed("prompt_region_negative_cond", regionalPrompt(t, r.NegativePrompt))
			w.edge(maskToTensor, graph.PortMask, cond, graph.PortMask)
			w.edge(cond, "conditioning", a.NegCollect, graph.PortItem)
			w.copyInputs(a.NegCond, cond, clipPorts...)
			res.Conditionings++
		}
		// The positive prompt applied outside the region pushes the rest of
		// the image away from it.
		if r.AutoNegative == canvas.AutoNegativeInvert && r.PositivePrompt != "" {
			invert := w.addPrefixed("prompt_region_invert_tensor_mask", &graph.InvertTensorMask{})
			w.edge(maskToTensor, graph.PortMask, invert, graph.PortMask)
			cond := w.addPrefixed("prompt_region_positive_cond_inverted", regionalPrompt(t, r.PositivePrompt))
			w.edge(invert, graph.PortMask, cond, graph.PortMask)
			w.edge(cond, "conditioning", a.NegCollect, graph.PortItem)
			w.copyInputs(a.PosCond, cond, clipPorts...)
			res.Conditionings++
		}

		for _, ipa := range r.EnabledIPAdapters() {
			if reason := ipAdapterSupport(ipa, t); reason != "" {
				diags = append(diags, Diagnostic{Capability: CapabilityIPAdapter, Entity: r.ID + "/" + ipa.ID, Reason: reason})
				continue
			}
			n := w.add(entityID(g, "ip_adapter", ipa.ID), ipAdapterNode(ipa))
			w.edge(maskToTensor, graph.PortMask, n, graph.PortMask)
			w.collect(ipAdapters, n, "ip_adapter")
			res.IPAdapters++
		}
		if w.err != nil {
			return nil, diags, w.err
		}

		// A region whose adapters were all skipped and that has no prompt
		// leaves an unused mask tensor behind.
		if res.Conditionings == 0 && res.IPAdapters == 0 {
			g.DeleteNode(maskToTensor.ID)
			diags = append(diags, Diagnostic{Capability: CapabilityRegion, Entity: r.ID, Reason: "region contributes nothing for this model"})
			continue
		}
		results = append(results, res)
	}
	return results, diags, nil
}

func regionalPrompt(t target, prompt string) graph.Params {
	if t.base() == model.BaseSDXL {
		return &graph.SDXLCompelPrompt{Prompt: prompt, Style: prompt}
	}
	return &graph.Compel{Prompt: prompt}
}

// addNSFWChecker splices a safety filter after the terminal candidate.
func addNSFWChecker(g *graph.Graph, a Anchors) (Anchors, int, error) {
	return spliceAfterOutput(g, a, NSFWCheckerID, &graph.ImageNSFW{})
}

// addWatermarker splices an invisible watermark after the terminal candidate.
func addWatermarker(g *graph.Graph, a Anchors) (Anchors, int, error) {
	return spliceAfterOutput(g, a, WatermarkerID, &graph.ImageWatermark{})
}

func spliceAfterOutput(g *graph.Graph, a Anchors, id string, p graph.Params) (Anchors, int, error) {
	n, err := g.AddNode(id, p)
	if err != nil {
		return a, 0, err
	}
	n.IsIntermediate = a.Output.IsIntermediate
	n.UseCache = false
	if err := g.AddEdge(a.Output.ID, graph.PortImage, n.ID, graph.PortImage); err != nil {
		return a, 0, err
	}
	a.Output = n
	return a, 1, nil
}
