// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/jllopis/canvasgraph/pkg/canvas"
	"github.com/jllopis/canvasgraph/pkg/graph"
)

// outputStep completes the backbone for one generation mode and returns the
// anchors with the new terminal candidate.
type outputStep func(ctx context.Context, g *graph.Graph, s *canvas.State, images canvas.ImageSource, a Anchors) (Anchors, int, error)

func defaultOutputSteps() map[canvas.Mode]outputStep {
	return map[canvas.Mode]outputStep{
		canvas.ModeTxt2Img:  addTextToImage,
		canvas.ModeImg2Img:  addImageToImage,
		canvas.ModeInpaint:  addInpaint,
		canvas.ModeOutpaint: addOutpaint,
	}
}

// addTextToImage resizes the decoded image back to the bbox size when the
// generation ran at a scaled size.
func addTextToImage(_ context.Context, g *graph.Graph, s *canvas.State, _ canvas.ImageSource, a Anchors) (Anchors, int, error) {
	original, scaled := s.BBox.Sizes()
	if original == scaled {
		return a, 0, nil
	}
	w := newWiring(g)
	resize := w.add("canvas_output_resize", &graph.ImageResize{Width: original.Width, Height: original.Height})
	w.edge(a.L2I, graph.PortImage, resize, graph.PortImage)
	if w.err != nil {
		return a, 0, w.err
	}
	a.Output = resize
	return a, w.added, nil
}

// addImageToImage encodes the composite raster layers as initial latents and
// starts denoising at 1 - strength.
func addImageToImage(ctx context.Context, g *graph.Graph, s *canvas.State, images canvas.ImageSource, a Anchors) (Anchors, int, error) {
	initial, err := images.CompositeImage(ctx)
	if err != nil {
		return a, 0, fmt.Errorf("resolve composite image: %w", err)
	}
	if err := setDenoisingStart(g, a, s.Params.Img2ImgStrength); err != nil {
		return a, 0, err
	}
	original, scaled := s.BBox.Sizes()
	fp32 := s.Params.FP32()
	w := newWiring(g)

	if original == scaled {
		i2l := w.add("i2l", &graph.ImageToLatents{Image: imageField(initial), FP32: fp32})
		w.edge(a.VAESource, graph.PortVAE, i2l, graph.PortVAE)
		w.edge(i2l, graph.PortLatents, a.Denoise, graph.PortLatents)
	} else {
		resizeIn := w.add("initial_image_resize_in", &graph.ImageResize{
			Image: imageField(initial), Width: scaled.Width, Height: scaled.Height,
		})
		i2l := w.add("i2l", &graph.ImageToLatents{FP32: fp32})
		resizeOut := w.add("initial_image_resize_out", &graph.ImageResize{Width: original.Width, Height: original.Height})
		w.edge(a.VAESource, graph.PortVAE, i2l, graph.PortVAE)
		w.edge(resizeIn, graph.PortImage, i2l, graph.PortImage)
		w.edge(i2l, graph.PortLatents, a.Denoise, graph.PortLatents)
		w.edge(a.L2I, graph.PortImage, resizeOut, graph.PortImage)
		if w.err == nil {
			a.Output = resizeOut
		}
	}
	if w.err != nil {
		return a, 0, w.err
	}
	g.UpsertMetadata(map[string]any{
		"strength":   s.Params.Img2ImgStrength,
		"init_image": initial,
	})
	return a, w.added, nil
}

// addInpaint denoises only the masked area and pastes the result back onto
// the initial image.
func addInpaint(ctx context.Context, g *graph.Graph, s *canvas.State, images canvas.ImageSource, a Anchors) (Anchors, int, error) {
	initial, mask, err := compositeAndMask(ctx, images)
	if err != nil {
		return a, 0, err
	}
	if err := setDenoisingStart(g, a, s.Params.Img2ImgStrength); err != nil {
		return a, 0, err
	}
	original, scaled := s.BBox.Sizes()
	c := s.Compositing
	fp32 := s.Params.FP32()
	w := newWiring(g)

	alphaToMask := w.add("alpha_to_mask", &graph.ImageToMask{Image: imageField(mask), Invert: true})
	gradient := &graph.CreateGradientMask{
		EdgeRadius:     c.CoherenceEdgeSize,
		CoherenceMode:  c.CoherenceMode,
		MinimumDenoise: c.CoherenceMinDenoise,
		FP32:           fp32,
	}
	paste := &graph.CanvasPasteBack{SourceImage: imageField(initial), MaskBlur: c.MaskBlur}

	if original == scaled {
		gradient.Image = imageField(initial)
		i2l := w.add("i2l", &graph.ImageToLatents{Image: imageField(initial), FP32: fp32})
		gradientMask := w.add("create_gradient_mask", gradient)
		pasteBack := w.add("canvas_paste_back", paste)
		w.edge(alphaToMask, graph.PortImage, gradientMask, graph.PortMask)
		w.edge(i2l, graph.PortLatents, a.Denoise, graph.PortLatents)
		w.edge(a.VAESource, graph.PortVAE, i2l, graph.PortVAE)
		w.edge(a.VAESource, graph.PortVAE, gradientMask, graph.PortVAE)
		w.edge(a.ModelLoader, graph.PortUNet, gradientMask, graph.PortUNet)
		w.edge(gradientMask, "denoise_mask", a.Denoise, "denoise_mask")
		w.edge(gradientMask, "expanded_mask_area", pasteBack, graph.PortMask)
		w.edge(a.L2I, graph.PortImage, pasteBack, "target_image")
		if w.err == nil {
			a.Output = pasteBack
		}
	} else {
		resizeImageIn := w.add("resize_image_to_scaled_size", &graph.ImageResize{
			Image: imageField(initial), Width: scaled.Width, Height: scaled.Height,
		})
		resizeMaskIn := w.add("resize_mask_to_scaled_size", &graph.ImageResize{Width: scaled.Width, Height: scaled.Height})
		i2l := w.add("i2l", &graph.ImageToLatents{FP32: fp32})
		gradientMask := w.add("create_gradient_mask", gradient)
		resizeImageOut := w.add("resize_image_to_original_size", &graph.ImageResize{Width: original.Width, Height: original.Height})
		resizeMaskOut := w.add("resize_mask_to_original_size", &graph.ImageResize{Width: original.Width, Height: original.Height})
		pasteBack := w.add("canvas_paste_back", paste)
		w.edge(alphaToMask, graph.PortImage, resizeMaskIn, graph.PortImage)
		w.edge(resizeImageIn, graph.PortImage, i2l, graph.PortImage)
		w.edge(i2l, graph.PortLatents, a.Denoise, graph.PortLatents)
		w.edge(a.VAESource, graph.PortVAE, i2l, graph.PortVAE)
		w.edge(a.VAESource, graph.PortVAE, gradientMask, graph.PortVAE)
		w.edge(a.ModelLoader, graph.PortUNet, gradientMask, graph.PortUNet)
		w.edge(resizeImageIn, graph.PortImage, gradientMask, graph.PortImage)
		w.edge(resizeMaskIn, graph.PortImage, gradientMask, graph.PortMask)
		w.edge(gradientMask, "denoise_mask", a.Denoise, "denoise_mask")
		w.edge(a.L2I, graph.PortImage, resizeImageOut, graph.PortImage)
		w.edge(gradientMask, "expanded_mask_area", resizeMaskOut, graph.PortImage)
		w.edge(resizeImageOut, graph.PortImage, pasteBack, "target_image")
		w.edge(resizeMaskOut, graph.PortImage, pasteBack, graph.PortMask)
		if w.err == nil {
			a.Output = pasteBack
		}
	}
	if w.err != nil {
		return a, 0, w.err
	}
	g.UpsertMetadata(compositingMetadata(s, initial))
	return a, w.added, nil
}

// addOutpaint infills the transparent area of the initial image, denoises the
// union of the inpaint mask and that area, and pastes the result back.
func addOutpaint(ctx context.Context, g *graph.Graph, s *canvas.State, images canvas.ImageSource, a Anchors) (Anchors, int, error) {
	initial, mask, err := compositeAndMask(ctx, images)
	if err != nil {
		return a, 0, err
	}
	if err := setDenoisingStart(g, a, s.Params.Img2ImgStrength); err != nil {
		return a, 0, err
	}
	original, scaled := s.BBox.Sizes()
	c := s.Compositing
	fp32 := s.Params.FP32()
	w := newWiring(g)

	imageAlphaToMask := w.add("initial_image_alpha_to_mask", &graph.ImageToMask{Image: imageField(initial)})
	maskAlphaToMask := w.add("mask_alpha_to_mask", &graph.ImageToMask{Image: imageField(mask), Invert: true})
	maskCombine := w.add("mask_combine", &graph.MaskCombine{})
	w.edge(maskAlphaToMask, graph.PortImage, maskCombine, "mask1")
	w.edge(imageAlphaToMask, graph.PortImage, maskCombine, "mask2")
	gradient := &graph.CreateGradientMask{
		EdgeRadius:     c.CoherenceEdgeSize,
		CoherenceMode:  c.CoherenceMode,
		MinimumDenoise: c.CoherenceMinDenoise,
		FP32:           fp32,
	}
	paste := &graph.CanvasPasteBack{MaskBlur: c.MaskBlur}

	if original == scaled {
		infill := w.add("infill", infillParams(c, imageField(initial)))
		i2l := w.add("i2l", &graph.ImageToLatents{FP32: fp32})
		gradientMask := w.add("create_gradient_mask", gradient)
		pasteBack := w.add("canvas_paste_back", paste)
		w.edge(maskCombine, graph.PortImage, gradientMask, graph.PortMask)
		w.edge(infill, graph.PortImage, i2l, graph.PortImage)
		w.edge(i2l, graph.PortLatents, a.Denoise, graph.PortLatents)
		w.edge(a.VAESource, graph.PortVAE, i2l, graph.PortVAE)
		w.edge(a.VAESource, graph.PortVAE, gradientMask, graph.PortVAE)
		w.edge(a.ModelLoader, graph.PortUNet, gradientMask, graph.PortUNet)
		w.edge(infill, graph.PortImage, gradientMask, graph.PortImage)
		w.edge(gradientMask, "denoise_mask", a.Denoise, "denoise_mask")
		w.edge(gradientMask, "expanded_mask_area", pasteBack, graph.PortMask)
		w.edge(infill, graph.PortImage, pasteBack, "source_image")
		w.edge(a.L2I, graph.PortImage, pasteBack, "target_image")
		if w.err == nil {
			a.Output = pasteBack
		}
	} else {
		resizeImageIn := w.add("resize_input_image_to_scaled_size", &graph.ImageResize{
			Image: imageField(initial), Width: scaled.Width, Height: scaled.Height,
		})
		resizeMaskIn := w.add("resize_input_mask_to_scaled_size", &graph.ImageResize{Width: scaled.Width, Height: scaled.Height})
		infill := w.add("infill", infillParams(c, nil))
		i2l := w.add("i2l", &graph.ImageToLatents{FP32: fp32})
		gradientMask := w.add("create_gradient_mask", gradient)
		resizeImageOut := w.add("resize_output_image_to_original_size", &graph.ImageResize{Width: original.Width, Height: original.Height})
		resizeMaskOut := w.add("resize_output_mask_to_original_size", &graph.ImageResize{Width: original.Width, Height: original.Height})
		resizeInfillOut := w.add("resize_infilled_image_to_original_size", &graph.ImageResize{Width: original.Width, Height: original.Height})
		pasteBack := w.add("canvas_paste_back", paste)
		w.edge(resizeImageIn, graph.PortImage, infill, graph.PortImage)
		w.edge(maskCombine, graph.PortImage, resizeMaskIn, graph.PortImage)
		w.edge(resizeMaskIn, graph.PortImage, gradientMask, graph.PortMask)
		w.edge(infill, graph.PortImage, i2l, graph.PortImage)
		w.edge(i2l, graph.PortLatents, a.Denoise, graph.PortLatents)
		w.edge(a.VAESource, graph.PortVAE, i2l, graph.PortVAE)
		w.edge(a.VAESource, graph.PortVAE, gradientMask, graph.PortVAE)
		w.edge(a.ModelLoader, graph.PortUNet, gradientMask, graph.PortUNet)
		w.edge(infill, graph.PortImage, gradientMask, graph.PortImage)
		w.edge(gradientMask, "denoise_mask", a.Denoise, "denoise_mask")
		w.edge(a.L2I, graph.PortImage, resizeImageOut, graph.PortImage)
		w.edge(gradientMask, "expanded_mask_area", resizeMaskOut, graph.PortImage)
		w.edge(infill, graph.PortImage, resizeInfillOut, graph.PortImage)
		w.edge(resizeInfillOut, graph.PortImage, pasteBack, "source_image")
		w.edge(resizeImageOut, graph.PortImage, pasteBack, "target_image")
		w.edge(resizeMaskOut, graph.PortImage, pasteBack, graph.PortMask)
		if w.err == nil {
			a.Output = pasteBack
		}
	}
	if w.err != nil {
		return a, 0, w.err
	}
	md := compositingMetadata(s, initial)
	md["infill_method"] = c.InfillMethod
	g.UpsertMetadata(md)
	return a, w.added, nil
}

// compositeAndMask fetches the initial image and the inpaint mask together.
func compositeAndMask(ctx context.Context, images canvas.ImageSource) (initial, mask string, err error) {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		if initial, err = images.CompositeImage(ctx); err != nil {
			return fmt.Errorf("resolve composite image: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		if mask, err = images.InpaintMask(ctx); err != nil {
			return fmt.Errorf("resolve inpaint mask: %w", err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return "", "", err
	}
	return initial, mask, nil
}

func setDenoisingStart(g *graph.Graph, a Anchors, strength float64) error {
	p := *a.denoise()
	p.DenoisingStart = 1 - strength
	return g.UpdateNode(a.Denoise.ID, graph.NodeUpdate{Params: &p})
}

func compositingMetadata(s *canvas.State, initial string) map[string]any {
	c := s.Compositing
	return map[string]any{
		"strength":                     s.Params.Img2ImgStrength,
		"init_image":                   initial,
		"canvas_coherence_mode":        c.CoherenceMode,
		"canvas_coherence_edge_size":   c.CoherenceEdgeSize,
		"canvas_coherence_min_denoise": c.CoherenceMinDenoise,
		"mask_blur":                    c.MaskBlur,
	}
}

func infillParams(c canvas.Compositing, image *graph.ImageField) graph.Params {
	switch c.InfillMethod {
	case "tile":
		return &graph.InfillTile{Image: image, TileSize: c.InfillTileSize}
	case "lama":
		return &graph.InfillLaMa{Image: image}
	case "cv2":
		return &graph.InfillCV2{Image: image}
	case "color":
		return &graph.InfillRGBA{Image: image, Color: rgba(c.InfillColor)}
	default:
		return &graph.InfillPatchmatch{Image: image, DownscaleSize: c.InfillPatchmatchSize}
	}
}

func rgba(c canvas.Color) graph.RGBA {
	return graph.RGBA{
		R: channel(float64(c.R)),
		G: channel(float64(c.G)),
		B: channel(float64(c.B)),
		A: channel(c.A * 255),
	}
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}
