// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import "fmt"

// Kind identifies the invocation type of a node. The set is closed: every Kind
// has exactly one Params payload type, and newParams must handle all of them.
type Kind string

const (
	KindMainModelLoader    Kind = "main_model_loader"
	KindSDXLModelLoader    Kind = "sdxl_model_loader"
	KindVAELoader          Kind = "vae_loader"
	KindClipSkip           Kind = "clip_skip"
	KindCompel             Kind = "compel"
	KindSDXLCompelPrompt   Kind = "sdxl_compel_prompt"
	KindCollect            Kind = "collect"
	KindNoise              Kind = "noise"
	KindDenoiseLatents     Kind = "denoise_latents"
	KindLatentsToImage     Kind = "l2i"
	KindImageToLatents     Kind = "i2l"
	KindImageResize        Kind = "img_resize"
	KindLoRALoader         Kind = "lora_loader"
	KindSDXLLoRALoader     Kind = "sdxl_lora_loader"
	KindSeamless           Kind = "seamless"
	KindControlNet         Kind = "controlnet"
	KindT2IAdapter         Kind = "t2i_adapter"
	KindIPAdapter          Kind = "ip_adapter"
	KindAlphaMaskToTensor  Kind = "alpha_mask_to_tensor"
	KindInvertTensorMask   Kind = "invert_tensor_mask"
	KindCreateGradientMask Kind = "create_gradient_mask"
	KindInfillPatchmatch   Kind = "infill_patchmatch"
	KindInfillTile         Kind = "infill_tile"
	KindInfillLaMa         Kind = "infill_lama"
	KindInfillCV2          Kind = "infill_cv2"
	KindInfillRGBA         Kind = "infill_rgba"
	KindImageToMask        Kind = "tomask"
	KindMaskCombine        Kind = "mask_combine"
	KindCanvasPasteBack    Kind = "canvas_paste_back"
	KindImageNSFW          Kind = "img_nsfw"
	KindImageWatermark     Kind = "img_watermark"
	KindCoreMetadata       Kind = "core_metadata"
)

// Port names shared by several kinds.
const (
	PortItem       = "item"
	PortCollection = "collection"
	PortMetadata   = "metadata"
	PortImage      = "image"
	PortMask       = "mask"
	PortUNet       = "unet"
	PortCLIP       = "clip"
	PortCLIP2      = "clip2"
	PortVAE        = "vae"
	PortLatents    = "latents"
)

// Params is the kind-specific payload of a node.
type Params interface {
	Kind() Kind
	sealed()
}

// ModelField identifies a model in the execution engine's model store.
type ModelField struct {
	Key  string `json:"key" yaml:"key"`
	Hash string `json:"hash,omitempty" yaml:"hash,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Base string `json:"base" yaml:"base"`
	Type string `json:"type" yaml:"type"`
}

// ImageField references an image already uploaded to the execution engine.
type ImageField struct {
	ImageName string `json:"image_name" yaml:"image_name"`
}

// BoardField names the board that receives output images.
type BoardField struct {
	BoardID string `json:"board_id" yaml:"board_id"`
}

// RGBA is an 8-bit color.
type RGBA struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

type MainModelLoader struct {
	Model ModelField `json:"model"`
}

type SDXLModelLoader struct {
	Model ModelField `json:"model"`
}

type VAELoader struct {
	VAEModel ModelField `json:"vae_model"`
}

type ClipSkip struct {
	SkippedLayers int `json:"skipped_layers"`
}

type Compel struct {
	Prompt string `json:"prompt"`
}

type SDXLCompelPrompt struct {
	Prompt         string `json:"prompt"`
	Style          string `json:"style"`
	OriginalWidth  int    `json:"original_width"`
	OriginalHeight int    `json:"original_height"`
	CropTop        int    `json:"crop_top"`
	CropLeft       int    `json:"crop_left"`
	TargetWidth    int    `json:"target_width"`
	TargetHeight   int    `json:"target_height"`
}

// Collect fans in any number of "item" edges into one "collection" output.
type Collect struct{}

type Noise struct {
	Seed   int64 `json:"seed"`
	Width  int   `json:"width"`
	Height int   `json:"height"`
	UseCPU bool  `json:"use_cpu"`
}

type DenoiseLatents struct {
	CFGScale             float64 `json:"cfg_scale"`
	CFGRescaleMultiplier float64 `json:"cfg_rescale_multiplier"`
	Scheduler            string  `json:"scheduler"`
	Steps                int     `json:"steps"`
	DenoisingStart       float64 `json:"denoising_start"`
	DenoisingEnd         float64 `json:"denoising_end"`
}

type LatentsToImage struct {
	FP32 bool `json:"fp32"`
}

type ImageToLatents struct {
	Image *ImageField `json:"image,omitempty"`
	FP32  bool        `json:"fp32"`
}

type ImageResize struct {
	Image  *ImageField `json:"image,omitempty"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
}

type LoRALoader struct {
	LoRA   ModelField `json:"lora"`
	Weight float64    `json:"weight"`
}

type SDXLLoRALoader struct {
	LoRA   ModelField `json:"lora"`
	Weight float64    `json:"weight"`
}

type Seamless struct {
	SeamlessX bool `json:"seamless_x"`
	SeamlessY bool `json:"seamless_y"`
}

type ControlNet struct {
	Image            *ImageField `json:"image,omitempty"`
	ControlModel     ModelField  `json:"control_model"`
	ControlWeight    float64     `json:"control_weight"`
	BeginStepPercent float64     `json:"begin_step_percent"`
	EndStepPercent   float64     `json:"end_step_percent"`
	ControlMode      string      `json:"control_mode"`
	ResizeMode       string      `json:"resize_mode"`
}

type T2IAdapter struct {
	Image            *ImageField `json:"image,omitempty"`
	T2IAdapterModel  ModelField  `json:"t2i_adapter_model"`
	Weight           float64     `json:"weight"`
	BeginStepPercent float64     `json:"begin_step_percent"`
	EndStepPercent   float64     `json:"end_step_percent"`
	ResizeMode       string      `json:"resize_mode"`
}

type IPAdapter struct {
	Image            *ImageField `json:"image,omitempty"`
	IPAdapterModel   ModelField  `json:"ip_adapter_model"`
	Weight           float64     `json:"weight"`
	Method           string      `json:"method"`
	BeginStepPercent float64     `json:"begin_step_percent"`
	EndStepPercent   float64     `json:"end_step_percent"`
	CLIPVisionModel  string      `json:"clip_vision_model"`
}

type AlphaMaskToTensor struct {
	Image *ImageField `json:"image,omitempty"`
}

type InvertTensorMask struct{}

type CreateGradientMask struct {
	Image          *ImageField `json:"image,omitempty"`
	Mask           *ImageField `json:"mask,omitempty"`
	EdgeRadius     int         `json:"edge_radius"`
	CoherenceMode  string      `json:"coherence_mode"`
	MinimumDenoise float64     `json:"minimum_denoise"`
	FP32           bool        `json:"fp32"`
}

type InfillPatchmatch struct {
	Image         *ImageField `json:"image,omitempty"`
	DownscaleSize int         `json:"downscale"`
}

type InfillTile struct {
	Image    *ImageField `json:"image,omitempty"`
	TileSize int         `json:"tile_size"`
}

type InfillLaMa struct {
	Image *ImageField `json:"image,omitempty"`
}

type InfillCV2 struct {
	Image *ImageField `json:"image,omitempty"`
}

type InfillRGBA struct {
	Image *ImageField `json:"image,omitempty"`
	Color RGBA        `json:"color"`
}

type ImageToMask struct {
	Image  *ImageField `json:"image,omitempty"`
	Invert bool        `json:"invert"`
}

type MaskCombine struct {
	Mask1 *ImageField `json:"mask1,omitempty"`
	Mask2 *ImageField `json:"mask2,omitempty"`
}

// CanvasPasteBack composites the generated image back onto the source image
// through a blurred mask.
type CanvasPasteBack struct {
	SourceImage *ImageField `json:"source_image,omitempty"`
	Mask        *ImageField `json:"mask,omitempty"`
	MaskBlur    int         `json:"mask_blur"`
}

type ImageNSFW struct{}

type ImageWatermark struct {
	Text string `json:"text,omitempty"`
}

// CoreMetadata carries the graph metadata record. It is only materialized when
// a graph is serialized.
type CoreMetadata map[string]any

func (*MainModelLoader) Kind() Kind    { return KindMainModelLoader }
func (*SDXLModelLoader) Kind() Kind    { return KindSDXLModelLoader }
func (*VAELoader) Kind() Kind          { return KindVAELoader }
func (*ClipSkip) Kind() Kind           { return KindClipSkip }
func (*Compel) Kind() Kind             { return KindCompel }
func (*SDXLCompelPrompt) Kind() Kind   { return KindSDXLCompelPrompt }
func (*Collect) Kind() Kind            { return KindCollect }
func (*Noise) Kind() Kind              { return KindNoise }
func (*DenoiseLatents) Kind() Kind     { return KindDenoiseLatents }
func (*LatentsToImage) Kind() Kind     { return KindLatentsToImage }
func (*ImageToLatents) Kind() Kind     { return KindImageToLatents }
func (*ImageResize) Kind() Kind        { return KindImageResize }
func (*LoRALoader) Kind() Kind         { return KindLoRALoader }
func (*SDXLLoRALoader) Kind() Kind     { return KindSDXLLoRALoader }
func (*Seamless) Kind() Kind           { return KindSeamless }
func (*ControlNet) Kind() Kind         { return KindControlNet }
func (*T2IAdapter) Kind() Kind         { return KindT2IAdapter }
func (*IPAdapter) Kind() Kind          { return KindIPAdapter }
func (*AlphaMaskToTensor) Kind() Kind  { return KindAlphaMaskToTensor }
func (*InvertTensorMask) Kind() Kind   { return KindInvertTensorMask }
func (*CreateGradientMask) Kind() Kind { return KindCreateGradientMask }
func (*InfillPatchmatch) Kind() Kind   { return KindInfillPatchmatch }
func (*InfillTile) Kind() Kind         { return KindInfillTile }
func (*InfillLaMa) Kind() Kind         { return KindInfillLaMa }
func (*InfillCV2) Kind() Kind          { return KindInfillCV2 }
func (*InfillRGBA) Kind() Kind         { return KindInfillRGBA }
func (*ImageToMask) Kind() Kind        { return KindImageToMask }
func (*MaskCombine) Kind() Kind        { return KindMaskCombine }
func (*CanvasPasteBack) Kind() Kind    { return KindCanvasPasteBack }
func (*ImageNSFW) Kind() Kind          { return KindImageNSFW }
func (*ImageWatermark) Kind() Kind     { return KindImageWatermark }
func (CoreMetadata) Kind() Kind        { return KindCoreMetadata }

func (*MainModelLoader) sealed()    {}
func (*SDXLModelLoader) sealed()    {}
func (*VAELoader) sealed()          {}
func (*ClipSkip) sealed()           {}
func (*Compel) sealed()             {}
func (*SDXLCompelPrompt) sealed()   {}
func (*Collect) sealed()            {}
func (*Noise) sealed()              {}
func (*DenoiseLatents) sealed()     {}
func (*LatentsToImage) sealed()     {}
func (*ImageToLatents) sealed()     {}
func (*ImageResize) sealed()        {}
func (*LoRALoader) sealed()         {}
func (*SDXLLoRALoader) sealed()     {}
func (*Seamless) sealed()           {}
func (*ControlNet) sealed()         {}
func (*T2IAdapter) sealed()         {}
func (*IPAdapter) sealed()          {}
func (*AlphaMaskToTensor) sealed()  {}
func (*InvertTensorMask) sealed()   {}
func (*CreateGradientMask) sealed() {}
func (*InfillPatchmatch) sealed()   {}
func (*InfillTile) sealed()         {}
func (*InfillLaMa) sealed()         {}
func (*InfillCV2) sealed()          {}
func (*InfillRGBA) sealed()         {}
func (*ImageToMask) sealed()        {}
func (*MaskCombine) sealed()        {}
func (*CanvasPasteBack) sealed()    {}
func (*ImageNSFW) sealed()          {}
func (*ImageWatermark) sealed()     {}
func (CoreMetadata) sealed()        {}

// newParams returns an empty payload for kind, used when decoding graphs.
func newParams(kind Kind) (Params, error) {
	switch kind {
	case KindMainModelLoader:
		return &MainModelLoader{}, nil
	case KindSDXLModelLoader:
		return &SDXLModelLoader{}, nil
	case KindVAELoader:
		return &VAELoader{}, nil
	case KindClipSkip:
		return &ClipSkip{}, nil
	case KindCompel:
		return &Compel{}, nil
	case KindSDXLCompelPrompt:
		return &SDXLCompelPrompt{}, nil
	case KindCollect:
		return &Collect{}, nil
	case KindNoise:
		return &Noise{}, nil
	case KindDenoiseLatents:
		return &DenoiseLatents{}, nil
	case KindLatentsToImage:
		return &LatentsToImage{}, nil
	case KindImageToLatents:
		return &ImageToLatents{}, nil
	case KindImageResize:
		return &ImageResize{}, nil
	case KindLoRALoader:
		return &LoRALoader{}, nil
	case KindSDXLLoRALoader:
		return &SDXLLoRALoader{}, nil
	case KindSeamless:
		return &Seamless{}, nil
	case KindControlNet:
		return &ControlNet{}, nil
	case KindT2IAdapter:
		return &T2IAdapter{}, nil
	case KindIPAdapter:
		return &IPAdapter{}, nil
	case KindAlphaMaskToTensor:
		return &AlphaMaskToTensor{}, nil
	case KindInvertTensorMask:
		return &InvertTensorMask{}, nil
	case KindCreateGradientMask:
		return &CreateGradientMask{}, nil
	case KindInfillPatchmatch:
		return &InfillPatchmatch{}, nil
	case KindInfillTile:
		return &InfillTile{}, nil
	case KindInfillLaMa:
		return &InfillLaMa{}, nil
	case KindInfillCV2:
		return &InfillCV2{}, nil
	case KindInfillRGBA:
		return &InfillRGBA{}, nil
	case KindImageToMask:
		return &ImageToMask{}, nil
	case KindMaskCombine:
		return &MaskCombine{}, nil
	case KindCanvasPasteBack:
		return &CanvasPasteBack{}, nil
	case KindImageNSFW:
		return &ImageNSFW{}, nil
	case KindImageWatermark:
		return &ImageWatermark{}, nil
	case KindCoreMetadata:
		return CoreMetadata{}, nil
	default:
		return nil, fmt.Errorf("unknown node type %q", kind)
	}
}

// requiredInputs lists the input ports of a kind that can only be satisfied by
// an edge. Ports that may also be given inline (images, masks) are not listed.
func requiredInputs(kind Kind) []string {
	switch kind {
	case KindClipSkip, KindCompel:
		return []string{PortCLIP}
	case KindSDXLCompelPrompt:
		return []string{PortCLIP, PortCLIP2}
	case KindDenoiseLatents:
		return []string{PortUNet, "positive_conditioning", "negative_conditioning", "noise"}
	case KindLatentsToImage:
		return []string{PortLatents, PortVAE}
	case KindImageToLatents:
		return []string{PortVAE}
	case KindLoRALoader:
		return []string{PortUNet, PortCLIP}
	case KindSDXLLoRALoader:
		return []string{PortUNet, PortCLIP, PortCLIP2}
	case KindSeamless:
		return []string{PortUNet}
	case KindInvertTensorMask:
		return []string{PortMask}
	case KindCanvasPasteBack:
		return []string{"target_image"}
	case KindImageNSFW, KindImageWatermark:
		return []string{PortImage}
	}
	return nil
}
