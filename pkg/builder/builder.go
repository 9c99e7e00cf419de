// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package builder assembles canvas generation graphs.
//
// A build runs a fixed sequence of assembly steps over one graph owned by the
// build. The backbone is always present; LoRAs, control adapters, IP adapters,
// regional prompts, the mode specific output compositing and the post
// processing filters are added only when configured and supported by the
// resolved model. Optional subsystems the model cannot host are skipped and
// reported as diagnostics, never as errors.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/canvasgraph/pkg/canvas"
	"github.com/jllopis/canvasgraph/pkg/errors"
	"github.com/jllopis/canvasgraph/pkg/graph"
	"github.com/jllopis/canvasgraph/pkg/model"
	"github.com/jllopis/canvasgraph/pkg/telemetry"
)

// Capability names an optional subsystem that can be skipped.
type Capability string

const (
	CapabilityLoRA       Capability = "lora"
	CapabilityVAE        Capability = "vae"
	CapabilityControlNet Capability = "controlnet"
	CapabilityT2IAdapter Capability = "t2i_adapter"
	CapabilityIPAdapter  Capability = "ip_adapter"
	CapabilityRegion     Capability = "region"
)

// Diagnostic records an entity that was left out of the graph because the
// active model cannot host it.
type Diagnostic struct {
	Code       errors.ErrorCode `json:"code"`
	Capability Capability       `json:"capability"`
	Entity     string           `json:"entity,omitempty"`
	Reason     string           `json:"reason"`
}

func (d Diagnostic) String() string {
	if d.Entity == "" {
		return fmt.Sprintf("%s skipped: %s", d.Capability, d.Reason)
	}
	return fmt.Sprintf("%s %q skipped: %s", d.Capability, d.Entity, d.Reason)
}

// Phase is the orchestrator state. Phases only move forward, one at a time.
type Phase int

const (
	PhaseStarted Phase = iota
	PhaseBackboneBuilt
	PhaseOptionalSubsystemsWired
	PhasePruned
	PhaseFinalized
)

func (p Phase) String() string {
	switch p {
	case PhaseStarted:
		return "started"
	case PhaseBackboneBuilt:
		return "backbone_built"
	case PhaseOptionalSubsystemsWired:
		return "optional_subsystems_wired"
	case PhasePruned:
		return "pruned"
	case PhaseFinalized:
		return "finalized"
	}
	return "unknown"
}

// Builder turns canvas states into execution graphs. A Builder is safe for
// concurrent use; every Build works on its own graph.
type Builder struct {
	resolver     model.Resolver
	images       canvas.ImageSource
	logger       *slog.Logger
	tracer       trace.Tracer
	metrics      *telemetry.BuildMetrics
	audit        AuditStore
	expectedBase model.BaseModel
	idStrategy   string
	validate     bool
	outputs      map[canvas.Mode]outputStep
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithExpectedBase pins the model family. Models of another family fail
// with INCOMPATIBLE_MODEL.
func WithExpectedBase(base model.BaseModel) Option {
	return func(b *Builder) {
		b.expectedBase = base
	}
}

// WithIDStrategy selects the id allocator: "sequential" or "uuid".
func WithIDStrategy(strategy string) Option {
	return func(b *Builder) {
		b.idStrategy = strategy
	}
}

// WithAuditStore records every build in store.
func WithAuditStore(store AuditStore) Option {
	return func(b *Builder) {
		b.audit = store
	}
}

// WithValidation toggles the final graph validation. It is on by default.
func WithValidation(enabled bool) Option {
	return func(b *Builder) {
		b.validate = enabled
	}
}

// WithMetrics records build metrics.
func WithMetrics(m *telemetry.BuildMetrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

// New creates a Builder. A nil images source answers from the image names
// listed in each state.
func New(resolver model.Resolver, images canvas.ImageSource, opts ...Option) *Builder {
	b := &Builder{
		resolver:   resolver,
		images:     images,
		logger:     slog.Default(),
		tracer:     otel.Tracer("canvasgraph/builder"),
		idStrategy: "sequential",
		validate:   true,
		outputs:    defaultOutputSteps(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Result is a finished graph plus the nodes callers patch before submitting
// it again, such as the seed of Noise or the prompt of PositivePrompt.
type Result struct {
	BuildID        string
	Graph          *graph.Graph
	Output         *graph.Node
	Noise          *graph.Node
	PositivePrompt *graph.Node
	Diagnostics    []Diagnostic
	Mode           canvas.Mode
	Base           model.BaseModel
}

// run is the mutable state of one Build call.
type run struct {
	id      string
	state   *canvas.State
	images  canvas.ImageSource
	target  target
	mode    canvas.Mode
	g       *graph.Graph
	anchors Anchors
	diags   []Diagnostic
	phase   Phase

	collectors []*Collector
}

func (r *run) skip(diags ...Diagnostic) {
	for _, d := range diags {
		d.Code = errors.CodeUnsupportedCapability
		r.diags = append(r.diags, d)
	}
}

func (r *run) advance(next Phase) error {
	if next != r.phase+1 {
		return errors.Newf(errors.CodeInternal, "build cannot move from %s to %s", r.phase, next)
	}
	r.phase = next
	return nil
}

// Build resolves the model once and assembles the graph for s. Errors are
// configuration, model resolution or graph construction errors; no partial
// graph is returned with them.
func (b *Builder) Build(ctx context.Context, s *canvas.State) (res *Result, err error) {
	started := time.Now()
	r := &run{id: uuid.NewString(), state: s, images: b.images}
	ctx = telemetry.WithBuildID(ctx, r.id)
	ctx, span := b.tracer.Start(ctx, "Builder.Build",
		trace.WithAttributes(telemetry.BuildAttributes(r.id, "", "", "")...),
	)
	defer span.End()
	defer func() {
		b.finish(ctx, r, err, started)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			res = nil
		}
	}()

	if s == nil {
		return nil, errors.Newf(errors.CodeConfiguration, "canvas state is nil")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Params.Model == nil || s.Params.Model.Key == "" {
		return nil, errors.Newf(errors.CodeMissingModel, "no main model selected")
	}
	if r.images == nil {
		r.images = canvas.NewStaticImageSource(s)
	}

	desc, err := b.resolveModel(ctx, *s.Params.Model)
	if err != nil {
		return nil, err
	}
	r.target = newTarget(desc)
	span.SetAttributes(attribute.String(telemetry.AttrModelBase, string(desc.Base)))

	if err := b.buildBackbone(ctx, r); err != nil {
		return nil, err
	}
	if err := b.wireOptional(ctx, r); err != nil {
		return nil, err
	}
	if err := b.prune(ctx, r); err != nil {
		return nil, err
	}
	if err := b.finalize(ctx, r); err != nil {
		return nil, err
	}

	return &Result{
		BuildID:        r.id,
		Graph:          r.g,
		Output:         r.anchors.Output,
		Noise:          r.anchors.Noise,
		PositivePrompt: r.anchors.PosCond,
		Diagnostics:    r.diags,
		Mode:           r.mode,
		Base:           r.target.base(),
	}, nil
}

// resolveModel is the single call to the resolver in a build.
func (b *Builder) resolveModel(ctx context.Context, id model.Identifier) (model.Descriptor, error) {
	ctx, span := b.tracer.Start(ctx, "Builder.ResolveModel",
		trace.WithAttributes(attribute.String(telemetry.AttrModelKey, id.Key)),
	)
	defer span.End()

	if b.resolver == nil {
		return model.Descriptor{}, errors.Newf(errors.CodeModelResolution, "no model resolver configured")
	}
	d, err := b.resolver.Resolve(ctx, id.Key)
	if err != nil {
		span.RecordError(err)
		if errors.IsModelResolution(err) {
			return model.Descriptor{}, err
		}
		return model.Descriptor{}, errors.New(errors.CodeModelResolution, fmt.Sprintf("resolve model %q", id.Key), err).
			WithContext("model", id.Key)
	}

	incompatible := func(format string, args ...any) error {
		return errors.Newf(errors.CodeIncompatibleModel, format, args...).
			WithContext("model", id.Key).
			WithContext("base", string(d.Base))
	}
	if d.Type != "" && d.Type != model.TypeMain {
		return model.Descriptor{}, incompatible("model %q is a %s model, not a main model", id.Key, d.Type)
	}
	if b.expectedBase != "" && d.Base != b.expectedBase {
		return model.Descriptor{}, incompatible("model %q is %s, expected %s", id.Key, d.Base, b.expectedBase)
	}
	switch d.Base {
	case model.BaseSD1, model.BaseSD2, model.BaseSDXL:
	default:
		return model.Descriptor{}, incompatible("model %q has unsupported base %q", id.Key, d.Base)
	}
	return d, nil
}

func (b *Builder) graphID() string {
	if b.idStrategy == "uuid" {
		return GraphID + "_" + uuid.NewString()
	}
	return GraphID
}

// buildBackbone places the mandatory nodes and stamps the initial metadata.
func (b *Builder) buildBackbone(ctx context.Context, r *run) error {
	mode := r.state.Mode
	if mode == "" {
		m, err := r.images.GenerationMode(ctx)
		if err != nil {
			return errors.New(errors.CodeConfiguration, "detect generation mode", err)
		}
		mode = m
	}
	if _, ok := b.outputs[mode]; !ok {
		return errors.Newf(errors.CodeConfiguration, "unknown generation mode %q", mode)
	}
	r.mode = mode

	r.g = graph.New(b.graphID(), graph.WithIDAllocator(graph.NewAllocator(b.idStrategy)))
	err := b.traceStep(ctx, "Backbone", func(context.Context) (int, error) {
		a, err := buildBackbone(r.g, r.state, r.target)
		if err != nil {
			return 0, err
		}
		r.anchors = a
		return r.g.NodeCount(), nil
	})
	if err != nil {
		return err
	}

	if vae := r.state.Params.VAE; vae != nil && !vae.IsZero() && vae.Base != r.target.base() {
		r.skip(Diagnostic{
			Capability: CapabilityVAE,
			Entity:     vae.Key,
			Reason:     fmt.Sprintf("vae base %q does not match model base %q, using the model's vae", vae.Base, r.target.base()),
		})
	}
	r.g.UpsertMetadata(initialMetadata(r.state, r.target, r.mode))
	return r.advance(PhaseBackboneBuilt)
}

// wireOptional runs every optional step in its fixed order. Adapter steps
// fan into collectors that prune resolves afterwards.
func (b *Builder) wireOptional(ctx context.Context, r *run) error {
	s := r.state
	err := b.traceStep(ctx, "Seamless", func(context.Context) (int, error) {
		a, n, err := addSeamless(r.g, s.Params, r.anchors)
		r.anchors = a
		return n, err
	})
	if err != nil {
		return err
	}
	err = b.traceStep(ctx, "LoRAs", func(context.Context) (int, error) {
		n, diags, err := addLoRAs(r.g, s.EnabledLoRAs(), r.target, r.anchors)
		r.skip(diags...)
		return n, err
	})
	if err != nil {
		return err
	}
	if r.anchors, err = connectVAE(r.g, r.anchors); err != nil {
		return err
	}

	step := b.outputs[r.mode]
	err = b.traceStep(ctx, "Output", func(ctx context.Context) (int, error) {
		a, n, err := step(ctx, r.g, s, r.images, r.anchors)
		r.anchors = a
		return n, err
	})
	if err != nil {
		return err
	}

	controlNets, err := newCollector(r.g, "control_net_collector", r.anchors.Denoise, "control")
	if err != nil {
		return err
	}
	t2iAdapters, err := newCollector(r.g, "t2i_adapter_collector", r.anchors.Denoise, "t2i_adapter")
	if err != nil {
		return err
	}
	ipAdapters, err := newCollector(r.g, "ip_adapter_collector", r.anchors.Denoise, "ip_adapter")
	if err != nil {
		return err
	}
	r.collectors = []*Collector{controlNets, t2iAdapters, ipAdapters}

	err = b.traceStep(ctx, "ControlAdapters", func(ctx context.Context) (int, error) {
		n, diags, err := addControlAdapters(ctx, r.g, r.images, s.EnabledControlLayers(), r.target, controlNets, t2iAdapters)
		r.skip(diags...)
		return n, err
	})
	if err != nil {
		return err
	}
	err = b.traceStep(ctx, "IPAdapters", func(context.Context) (int, error) {
		n, diags, err := addIPAdapters(r.g, s.EnabledIPAdapters(), r.target, ipAdapters)
		r.skip(diags...)
		return n, err
	})
	if err != nil {
		return err
	}
	err = b.traceStep(ctx, "Regions", func(ctx context.Context) (int, error) {
		results, diags, err := addRegions(ctx, r.g, r.images, s.EnabledRegions(), r.target, r.anchors, ipAdapters)
		r.skip(diags...)
		added := 0
		for _, res := range results {
			added += 1 + res.Conditionings + res.IPAdapters
		}
		return added, err
	})
	if err != nil {
		return err
	}
	return r.advance(PhaseOptionalSubsystemsWired)
}

// prune commits collectors that received items and removes the rest.
func (b *Builder) prune(ctx context.Context, r *run) error {
	for _, c := range r.collectors {
		if err := c.Resolve(r.g); err != nil {
			return err
		}
		b.logger.DebugContext(ctx, "collector resolved",
			slog.String("build_id", r.id),
			slog.String("collector", c.ID()),
			slog.Int("items", c.Items()),
			slog.String("state", c.State().String()),
		)
	}
	return r.advance(PhasePruned)
}

// finalize appends the post processing filters and publishes the terminal
// node under CanvasOutputID.
func (b *Builder) finalize(ctx context.Context, r *run) error {
	system := r.state.System
	if system.NSFWChecker {
		a, _, err := addNSFWChecker(r.g, r.anchors)
		if err != nil {
			return err
		}
		r.anchors = a
	}
	if system.Watermarker {
		a, _, err := addWatermarker(r.g, r.anchors)
		if err != nil {
			return err
		}
		r.anchors = a
	}

	out := r.anchors.Output
	if err := r.g.RenameNode(out.ID, CanvasOutputID); err != nil {
		return err
	}
	intermediate, useCache := false, false
	update := graph.NodeUpdate{IsIntermediate: &intermediate, UseCache: &useCache}
	if r.state.Board != "" {
		update.Board = &graph.BoardField{BoardID: r.state.Board}
	}
	if err := r.g.UpdateNode(CanvasOutputID, update); err != nil {
		return err
	}
	if err := r.g.SetMetadataReceivingNode(CanvasOutputID); err != nil {
		return err
	}

	if b.validate {
		if err := r.g.Validate(); err != nil {
			return err
		}
	}
	return r.advance(PhaseFinalized)
}

// traceStep runs one assembly step inside its own span.
func (b *Builder) traceStep(ctx context.Context, name string, fn func(context.Context) (int, error)) error {
	ctx, span := b.tracer.Start(ctx, "Builder."+name)
	defer span.End()

	added, err := fn(ctx)
	span.SetAttributes(telemetry.StepAttributes(name, added)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// finish logs, measures and audits a build, whatever its outcome.
func (b *Builder) finish(ctx context.Context, r *run, err error, started time.Time) {
	finished := time.Now()
	var (
		nodes, edges int
		graphID      string
		modelKey     string
	)
	if r.g != nil {
		nodes, edges, graphID = r.g.NodeCount(), len(r.g.Edges()), r.g.ID()
	}
	if r.state != nil && r.state.Params.Model != nil {
		modelKey = r.state.Params.Model.Key
	}
	base := string(r.target.base())

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.BuildAttributes(r.id, string(r.mode), base, modelKey)...)
	span.SetAttributes(telemetry.GraphAttributes(graphID, nodes, edges)...)
	for _, d := range r.diags {
		span.AddEvent("capability skipped",
			trace.WithAttributes(telemetry.SkipAttributes(string(d.Capability), d.Entity, d.Reason)...),
		)
		b.logger.WarnContext(ctx, "capability skipped",
			slog.String("build_id", r.id),
			slog.String("capability", string(d.Capability)),
			slog.String("entity", d.Entity),
			slog.String("reason", d.Reason),
		)
		b.metrics.RecordSkip(ctx, string(d.Capability))
	}

	b.metrics.RecordBuild(ctx, telemetry.BuildRecord{
		Mode:     string(r.mode),
		Base:     base,
		Nodes:    nodes,
		Edges:    edges,
		Duration: finished.Sub(started),
		Err:      err,
	})

	event := AuditEvent{
		BuildID:    r.id,
		GraphID:    graphID,
		Mode:       string(r.mode),
		Base:       base,
		Model:      modelKey,
		Status:     AuditStatusOK,
		Nodes:      nodes,
		Edges:      edges,
		Skipped:    r.diags,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if err != nil {
		event.Status = AuditStatusFailed
		event.Error = err.Error()
		b.logger.ErrorContext(ctx, "graph build failed",
			slog.String("build_id", r.id),
			slog.String("model", modelKey),
			slog.String("phase", r.phase.String()),
			slog.String("code", string(errors.CodeOf(err))),
			slog.String("error", err.Error()),
		)
	} else {
		b.logger.InfoContext(ctx, "graph built",
			slog.String("build_id", r.id),
			slog.String("graph_id", graphID),
			slog.String("mode", string(r.mode)),
			slog.String("base", base),
			slog.Int("nodes", nodes),
			slog.Int("edges", edges),
			slog.Int("skipped", len(r.diags)),
			slog.Duration("duration", finished.Sub(started)),
		)
	}

	if b.audit != nil {
		if auditErr := b.audit.Record(ctx, event); auditErr != nil {
			b.logger.WarnContext(ctx, "build audit failed",
				slog.String("build_id", r.id),
				slog.String("error", auditErr.Error()),
			)
		}
	}
}
