// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package canvas

import (
	"context"

	"github.com/jllopis/canvasgraph/pkg/errors"
)

// ImageSource is the canvas collaborator that rasterizes layers and uploads
// them to the execution engine, returning image names. Calls may block and
// may run concurrently for different entities.
type ImageSource interface {
	// GenerationMode inspects the canvas under the bounding box.
	GenerationMode(ctx context.Context) (Mode, error)
	// CompositeImage returns the composited raster layers inside the bbox.
	CompositeImage(ctx context.Context) (string, error)
	// InpaintMask returns the composited inpaint mask inside the bbox.
	InpaintMask(ctx context.Context) (string, error)
	ControlLayerImage(ctx context.Context, layer ControlLayer) (string, error)
	RegionMask(ctx context.Context, region Region) (string, error)
}

// StaticImageSource answers from image names that were uploaded before the
// build and listed in the request.
type StaticImageSource struct {
	Mode   Mode
	Images Images
}

// NewStaticImageSource returns a source backed by the state's Images section.
// An empty mode is treated as txt2img.
func NewStaticImageSource(s *State) *StaticImageSource {
	mode := s.Mode
	if mode == "" {
		mode = ModeTxt2Img
	}
	return &StaticImageSource{Mode: mode, Images: s.Images}
}

func (s *StaticImageSource) GenerationMode(context.Context) (Mode, error) {
	return s.Mode, nil
}

func (s *StaticImageSource) CompositeImage(context.Context) (string, error) {
	return required("composite image", "", s.Images.Composite)
}

func (s *StaticImageSource) InpaintMask(context.Context) (string, error) {
	return required("inpaint mask", "", s.Images.InpaintMask)
}

func (s *StaticImageSource) ControlLayerImage(_ context.Context, layer ControlLayer) (string, error) {
	return required("control layer image", layer.ID, s.Images.Control[layer.ID])
}

func (s *StaticImageSource) RegionMask(_ context.Context, region Region) (string, error) {
	return required("region mask", region.ID, s.Images.Regions[region.ID])
}

func required(what, entity, name string) (string, error) {
	switch {
	case name != "":
		return name, nil
	case entity == "":
		return "", errors.Newf(errors.CodeConfiguration, "%s is missing", what)
	}
	return "", errors.Newf(errors.CodeConfiguration, "%s for %q is missing", what, entity).
		WithContext("entity", entity)
}
