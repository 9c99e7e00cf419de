// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package canvas

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/canvasgraph/pkg/errors"
)

// ParseJSON decodes a state on top of Defaults and validates it.
func ParseJSON(data []byte) (*State, error) {
	s := Defaults()
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "parse canvas state json", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseYAML decodes a state on top of Defaults and validates it.
func ParseYAML(data []byte) (*State, error) {
	s := Defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "parse canvas state yaml", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadState reads a state file, choosing the decoder by extension. Files
// without a .json extension are read as YAML.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read canvas state: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(data)
	}
	return ParseYAML(data)
}

var infillMethods = map[string]bool{
	"patchmatch": true,
	"tile":       true,
	"lama":       true,
	"cv2":        true,
	"color":      true,
}

// Validate checks the fields the builder depends on. A missing model is not
// reported here; the builder fails on it with MISSING_MODEL.
func (s *State) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if s.Mode != "" && !s.Mode.Valid() {
		add("unknown generation mode %q", s.Mode)
	}
	p := s.Params
	if p.Steps <= 0 {
		add("steps must be positive, got %d", p.Steps)
	}
	if p.CFGScale < 1 {
		add("cfg_scale must be at least 1, got %g", p.CFGScale)
	}
	if p.CFGRescaleMultiplier < 0 || p.CFGRescaleMultiplier >= 1 {
		add("cfg_rescale_multiplier must be in [0,1), got %g", p.CFGRescaleMultiplier)
	}
	if p.Scheduler == "" {
		add("scheduler is required")
	}
	if p.ClipSkip < 0 {
		add("clip_skip must not be negative, got %d", p.ClipSkip)
	}
	if p.Img2ImgStrength < 0 || p.Img2ImgStrength > 1 {
		add("img2img_strength must be in [0,1], got %g", p.Img2ImgStrength)
	}
	if p.VAEPrecision != "fp16" && p.VAEPrecision != "fp32" {
		add("vae_precision must be fp16 or fp32, got %q", p.VAEPrecision)
	}

	original, scaled := s.BBox.Sizes()
	for _, sz := range []Size{original, scaled} {
		if sz.Width <= 0 || sz.Height <= 0 || sz.Width%8 != 0 || sz.Height%8 != 0 {
			add("bbox size %dx%d must be positive multiples of 8", sz.Width, sz.Height)
			break
		}
	}
	if !infillMethods[s.Compositing.InfillMethod] {
		add("unknown infill method %q", s.Compositing.InfillMethod)
	}

	for i, l := range s.Control {
		if l.Kind != ControlNet && l.Kind != T2IAdapter {
			add("control layer %d (%s): unknown kind %q", i, l.ID, l.Kind)
		}
		if err := checkStepRange(l.StepRange); err != "" {
			add("control layer %d (%s): %s", i, l.ID, err)
		}
	}
	for i, a := range s.IPAdapters {
		if err := checkStepRange(a.StepRange); err != "" {
			add("ip adapter %d (%s): %s", i, a.ID, err)
		}
	}
	for i, r := range s.Regions {
		if r.AutoNegative != "" && r.AutoNegative != AutoNegativeOff && r.AutoNegative != AutoNegativeInvert {
			add("region %d (%s): unknown auto_negative %q", i, r.ID, r.AutoNegative)
		}
		for j, a := range r.IPAdapters {
			if err := checkStepRange(a.StepRange); err != "" {
				add("region %d (%s) ip adapter %d (%s): %s", i, r.ID, j, a.ID, err)
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Newf(errors.CodeConfiguration, "invalid canvas state: %s", strings.Join(problems, "; ")).
		WithContext("problems", problems)
}

func checkStepRange(r StepRange) string {
	if r[0] < 0 || r[1] > 1 || r[0] > r[1] {
		return fmt.Sprintf("begin_end_step_pct %v must satisfy 0 <= begin <= end <= 1", r)
	}
	return ""
}
