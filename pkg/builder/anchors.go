// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"github.com/jllopis/canvasgraph/pkg/graph"
)

// Fixed node ids of the backbone. The execution engine and the editor look
// some of them up by name, so they never go through the id allocator.
const (
	GraphID                     = "canvas_graph"
	MainModelLoaderID           = "main_model_loader"
	SDXLModelLoaderID           = "sdxl_model_loader"
	ClipSkipID                  = "clip_skip"
	PositiveConditioningID      = "positive_conditioning"
	PositiveConditioningCollect = "positive_conditioning_collect"
	NegativeConditioningID      = "negative_conditioning"
	NegativeConditioningCollect = "negative_conditioning_collect"
	NoiseID                     = "noise"
	DenoiseLatentsID            = "denoise_latents"
	LatentsToImageID            = "latents_to_image"
	VAELoaderID                 = "vae_loader"
	SeamlessID                  = "seamless"
	NSFWCheckerID               = "nsfw_checker"
	WatermarkerID               = "watermarker"
	CanvasOutputID              = "canvas_output"
)

// Anchors are references to placed nodes that later steps attach to. They
// live for one build and are never stored in the graph.
type Anchors struct {
	ModelLoader *graph.Node
	// ClipSkip is nil on the SDXL path.
	ClipSkip   *graph.Node
	PosCond    *graph.Node
	NegCond    *graph.Node
	PosCollect *graph.Node
	NegCollect *graph.Node
	Noise      *graph.Node
	Denoise    *graph.Node
	L2I        *graph.Node
	VAELoader  *graph.Node
	Seamless   *graph.Node
	// VAESource is Seamless, VAELoader or ModelLoader, first non-nil wins.
	VAESource *graph.Node
	// Output is the current terminal candidate.
	Output *graph.Node
}

func (a Anchors) denoise() *graph.DenoiseLatents {
	return a.Denoise.Params.(*graph.DenoiseLatents)
}

// wiring applies a sequence of graph mutations, keeping the first error and
// counting the nodes it added. Once an error is set every call is a no-op and
// add returns nil, so callers check err before touching returned nodes.
type wiring struct {
	g     *graph.Graph
	err   error
	added int
}

func newWiring(g *graph.Graph) *wiring {
	return &wiring{g: g}
}

func (w *wiring) add(id string, p graph.Params) *graph.Node {
	if w.err != nil {
		return nil
	}
	n, err := w.g.AddNode(id, p)
	if err != nil {
		w.err = err
		return nil
	}
	w.added++
	return n
}

// addPrefixed adds a node under a fresh id built from prefix.
func (w *wiring) addPrefixed(prefix string, p graph.Params) *graph.Node {
	if w.err != nil {
		return nil
	}
	return w.add(w.g.AllocateID(prefix), p)
}

func (w *wiring) edge(src *graph.Node, srcPort string, dst *graph.Node, dstPort string) {
	if w.err != nil {
		return
	}
	w.err = w.g.AddEdge(src.ID, srcPort, dst.ID, dstPort)
}

// copyInputs connects dst to the same sources that feed ports of from.
func (w *wiring) copyInputs(from, dst *graph.Node, ports ...string) {
	if w.err != nil {
		return
	}
	for _, e := range w.g.EdgesTo(from.ID, ports...) {
		if w.err = w.g.AddEdge(e.Source.NodeID, e.Source.Field, dst.ID, e.Destination.Field); w.err != nil {
			return
		}
	}
}

func imageField(name string) *graph.ImageField {
	if name == "" {
		return nil
	}
	return &graph.ImageField{ImageName: name}
}
