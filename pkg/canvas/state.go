// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package canvas holds the read-only request snapshot a graph is built from:
// generation parameters, bounding box, compositing options and the ordered
// lists of LoRAs, control layers, IP adapters and regions.
package canvas

import (
	"github.com/jllopis/canvasgraph/pkg/model"
)

// Mode is the generation-mode tag selecting the output compositing path.
type Mode string

const (
	ModeTxt2Img  Mode = "txt2img"
	ModeImg2Img  Mode = "img2img"
	ModeInpaint  Mode = "inpaint"
	ModeOutpaint Mode = "outpaint"
)

// Valid reports whether m is one of the four known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeTxt2Img, ModeImg2Img, ModeInpaint, ModeOutpaint:
		return true
	}
	return false
}

// State is the configuration snapshot for one build.
type State struct {
	// Mode may be left empty; the ImageSource then decides it.
	Mode        Mode           `json:"mode,omitempty" yaml:"mode,omitempty"`
	Params      Params         `json:"params" yaml:"params"`
	BBox        BBox           `json:"bbox" yaml:"bbox"`
	Compositing Compositing    `json:"compositing" yaml:"compositing"`
	LoRAs       []LoRA         `json:"loras,omitempty" yaml:"loras,omitempty"`
	Control     []ControlLayer `json:"control_layers,omitempty" yaml:"control_layers,omitempty"`
	IPAdapters  []IPAdapter    `json:"ip_adapters,omitempty" yaml:"ip_adapters,omitempty"`
	Regions     []Region       `json:"regions,omitempty" yaml:"regions,omitempty"`
	System      System         `json:"system" yaml:"system"`
	// Board is the destination board id of the output image; empty means none.
	Board  string `json:"board,omitempty" yaml:"board,omitempty"`
	Images Images `json:"images,omitempty" yaml:"images,omitempty"`
}

// Params are the sampler and prompt settings.
type Params struct {
	Model                *model.Identifier `json:"model,omitempty" yaml:"model,omitempty"`
	VAE                  *model.Identifier `json:"vae,omitempty" yaml:"vae,omitempty"`
	CFGScale             float64           `json:"cfg_scale" yaml:"cfg_scale"`
	CFGRescaleMultiplier float64           `json:"cfg_rescale_multiplier" yaml:"cfg_rescale_multiplier"`
	Scheduler            string            `json:"scheduler" yaml:"scheduler"`
	Steps                int               `json:"steps" yaml:"steps"`
	ClipSkip             int               `json:"clip_skip" yaml:"clip_skip"`
	UseCPUNoise          bool              `json:"use_cpu_noise" yaml:"use_cpu_noise"`
	VAEPrecision         string            `json:"vae_precision" yaml:"vae_precision"`
	Seed                 int64             `json:"seed" yaml:"seed"`
	PositivePrompt       string            `json:"positive_prompt" yaml:"positive_prompt"`
	NegativePrompt       string            `json:"negative_prompt" yaml:"negative_prompt"`
	PositiveStylePrompt  string            `json:"positive_style_prompt,omitempty" yaml:"positive_style_prompt,omitempty"`
	NegativeStylePrompt  string            `json:"negative_style_prompt,omitempty" yaml:"negative_style_prompt,omitempty"`
	// ConcatStylePrompts reuses the main prompts as SDXL style prompts.
	ConcatStylePrompts bool    `json:"concat_style_prompts" yaml:"concat_style_prompts"`
	Img2ImgStrength    float64 `json:"img2img_strength" yaml:"img2img_strength"`
	SeamlessX          bool    `json:"seamless_x" yaml:"seamless_x"`
	SeamlessY          bool    `json:"seamless_y" yaml:"seamless_y"`
}

// FP32 reports whether the VAE runs in full precision.
func (p Params) FP32() bool {
	return p.VAEPrecision == "fp32"
}

// StylePrompts returns the SDXL style prompts, honoring ConcatStylePrompts.
func (p Params) StylePrompts() (positive, negative string) {
	if p.ConcatStylePrompts {
		return p.PositivePrompt, p.NegativePrompt
	}
	return p.PositiveStylePrompt, p.NegativeStylePrompt
}

// Rect is a canvas rectangle in pixels.
type Rect struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Size is a width/height pair.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// BBox is the generation bounding box. Generation happens at ScaledSize and
// is resized back to the rect size unless ScaleMethod is "none".
type BBox struct {
	Rect        Rect   `json:"rect" yaml:"rect"`
	ScaledSize  Size   `json:"scaled_size" yaml:"scaled_size"`
	ScaleMethod string `json:"scale_method" yaml:"scale_method"`
}

// Sizes returns the original (rect) and scaled generation sizes.
func (b BBox) Sizes() (original, scaled Size) {
	original = Size{Width: b.Rect.Width, Height: b.Rect.Height}
	if b.ScaleMethod == "none" || b.ScaledSize.Width == 0 || b.ScaledSize.Height == 0 {
		return original, original
	}
	return original, b.ScaledSize
}

// Color is an RGBA color with 0-255 channels and alpha in [0,1].
type Color struct {
	R int     `json:"r" yaml:"r"`
	G int     `json:"g" yaml:"g"`
	B int     `json:"b" yaml:"b"`
	A float64 `json:"a" yaml:"a"`
}

// Compositing configures inpaint and outpaint blending.
type Compositing struct {
	CoherenceMode       string  `json:"coherence_mode" yaml:"coherence_mode"`
	CoherenceEdgeSize   int     `json:"coherence_edge_size" yaml:"coherence_edge_size"`
	CoherenceMinDenoise float64 `json:"coherence_min_denoise" yaml:"coherence_min_denoise"`
	MaskBlur            int     `json:"mask_blur" yaml:"mask_blur"`
	// InfillMethod is one of patchmatch, tile, lama, cv2 or color.
	InfillMethod         string `json:"infill_method" yaml:"infill_method"`
	InfillTileSize       int    `json:"infill_tile_size" yaml:"infill_tile_size"`
	InfillPatchmatchSize int    `json:"infill_patchmatch_downscale_size" yaml:"infill_patchmatch_downscale_size"`
	InfillColor          Color  `json:"infill_color" yaml:"infill_color"`
}

// LoRA is one style-weight adjustment.
type LoRA struct {
	ID      string           `json:"id" yaml:"id"`
	Enabled bool             `json:"enabled" yaml:"enabled"`
	Model   model.Identifier `json:"model" yaml:"model"`
	Weight  float64          `json:"weight" yaml:"weight"`
}

// ControlKind selects the control adapter variant of a control layer.
type ControlKind string

const (
	ControlNet ControlKind = "controlnet"
	T2IAdapter ControlKind = "t2i_adapter"
)

// StepRange is the [begin, end] fraction of denoising steps an adapter acts on.
type StepRange [2]float64

// ControlLayer is a control-signal entity.
type ControlLayer struct {
	ID          string            `json:"id" yaml:"id"`
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	Kind        ControlKind       `json:"kind" yaml:"kind"`
	Model       *model.Identifier `json:"model,omitempty" yaml:"model,omitempty"`
	Weight      float64           `json:"weight" yaml:"weight"`
	StepRange   StepRange         `json:"begin_end_step_pct" yaml:"begin_end_step_pct"`
	ControlMode string            `json:"control_mode,omitempty" yaml:"control_mode,omitempty"`
}

// IPAdapter is a style-adapter entity, global or attached to a region.
type IPAdapter struct {
	ID              string            `json:"id" yaml:"id"`
	Enabled         bool              `json:"enabled" yaml:"enabled"`
	Model           *model.Identifier `json:"model,omitempty" yaml:"model,omitempty"`
	Weight          float64           `json:"weight" yaml:"weight"`
	Method          string            `json:"method,omitempty" yaml:"method,omitempty"`
	StepRange       StepRange         `json:"begin_end_step_pct" yaml:"begin_end_step_pct"`
	CLIPVisionModel string            `json:"clip_vision_model,omitempty" yaml:"clip_vision_model,omitempty"`
	// Image is the reference image name held by the execution engine.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
}

// AutoNegative controls whether a region also conditions the negative side
// with its positive prompt applied to the inverted mask.
type AutoNegative string

const (
	AutoNegativeOff    AutoNegative = "off"
	AutoNegativeInvert AutoNegative = "invert"
)

// Region is a regional-guidance entity.
type Region struct {
	ID             string       `json:"id" yaml:"id"`
	Enabled        bool         `json:"enabled" yaml:"enabled"`
	PositivePrompt string       `json:"positive_prompt,omitempty" yaml:"positive_prompt,omitempty"`
	NegativePrompt string       `json:"negative_prompt,omitempty" yaml:"negative_prompt,omitempty"`
	AutoNegative   AutoNegative `json:"auto_negative,omitempty" yaml:"auto_negative,omitempty"`
	IPAdapters     []IPAdapter  `json:"ip_adapters,omitempty" yaml:"ip_adapters,omitempty"`
}

// System toggles the post-processing steps.
type System struct {
	NSFWChecker bool `json:"nsfw_checker" yaml:"nsfw_checker"`
	Watermarker bool `json:"watermarker" yaml:"watermarker"`
}

// Images names images already uploaded to the execution engine, for
// callers that rasterize layers ahead of the build.
type Images struct {
	Composite   string            `json:"composite,omitempty" yaml:"composite,omitempty"`
	InpaintMask string            `json:"inpaint_mask,omitempty" yaml:"inpaint_mask,omitempty"`
	Control     map[string]string `json:"control,omitempty" yaml:"control,omitempty"`
	Regions     map[string]string `json:"regions,omitempty" yaml:"regions,omitempty"`
}

// Defaults returns a state with the editor's default parameters.
func Defaults() State {
	return State{
		Params: Params{
			CFGScale:        7.5,
			Scheduler:       "euler",
			Steps:           50,
			VAEPrecision:    "fp32",
			Img2ImgStrength: 0.75,
		},
		BBox: BBox{
			Rect:        Rect{Width: 512, Height: 512},
			ScaledSize:  Size{Width: 512, Height: 512},
			ScaleMethod: "auto",
		},
		Compositing: Compositing{
			CoherenceMode:        "Gaussian Blur",
			CoherenceEdgeSize:    16,
			MaskBlur:             16,
			InfillMethod:         "patchmatch",
			InfillTileSize:       32,
			InfillPatchmatchSize: 1,
			InfillColor:          Color{A: 1},
		},
	}
}

// EnabledLoRAs returns the enabled LoRAs in configured order.
func (s *State) EnabledLoRAs() []LoRA {
	var out []LoRA
	for _, l := range s.LoRAs {
		if l.Enabled {
			out = append(out, l)
		}
	}
	return out
}

// EnabledControlLayers returns enabled control layers with a model, in order.
func (s *State) EnabledControlLayers() []ControlLayer {
	var out []ControlLayer
	for _, l := range s.Control {
		if l.Enabled && l.Model != nil {
			out = append(out, l)
		}
	}
	return out
}

// EnabledIPAdapters returns enabled global IP adapters with a model, in order.
func (s *State) EnabledIPAdapters() []IPAdapter {
	return enabledIPAdapters(s.IPAdapters)
}

// EnabledRegions returns enabled regions that carry a prompt or an adapter.
func (s *State) EnabledRegions() []Region {
	var out []Region
	for _, r := range s.Regions {
		if !r.Enabled {
			continue
		}
		if r.PositivePrompt == "" && r.NegativePrompt == "" && len(enabledIPAdapters(r.IPAdapters)) == 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

// EnabledIPAdapters returns the region's enabled adapters with a model and image.
func (r Region) EnabledIPAdapters() []IPAdapter {
	return enabledIPAdapters(r.IPAdapters)
}

func enabledIPAdapters(in []IPAdapter) []IPAdapter {
	var out []IPAdapter
	for _, a := range in {
		if a.Enabled && a.Model != nil && a.Image != "" {
			out = append(out, a)
		}
	}
	return out
}
