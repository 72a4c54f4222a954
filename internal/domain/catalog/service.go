package catalog

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"product-catalog-server-go/internal/core/providers/vlllm"
	"product-catalog-server-go/internal/domain/eventbus"
	"product-catalog-server-go/internal/domain/image"
	"product-catalog-server-go/internal/platform/config"
	"product-catalog-server-go/internal/platform/errors"
	"product-catalog-server-go/internal/platform/logging"
	"product-catalog-server-go/internal/platform/observability"
)

// Options wires the service collaborators.
type Options struct {
	Extraction config.ExtractionConfig
	Security   config.SecurityConfig
	Model      ModelClient
	Events     Publisher
	Logger     *logging.Logger
}

// Service runs one extraction per call: collect, encode the analysis subset, ask the model,
// reconcile the reply. It keeps no per-request state and is safe for concurrent use.
type Service struct {
	cfg        config.ExtractionConfig
	presetName string
	preset     config.PresetConfig
	pipeline   *image.Pipeline
	reconciler *Reconciler
	model      ModelClient
	events     Publisher
	logger     *logging.Logger
}

// NewService validates the extraction config and builds the service.
func NewService(opts Options) (*Service, error) {
	if opts.Model == nil {
		return nil, errors.New(errors.KindConfig, "catalog.new", "model client is required")
	}
	if strings.TrimSpace(opts.Extraction.Instruction) == "" {
		return nil, errors.New(errors.KindConfig, "catalog.new", "extraction instruction is empty")
	}

	preset, err := opts.Extraction.ResolvePreset()
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "catalog.new", "resolve preset", err)
	}
	if err := preset.Validate(); err != nil {
		return nil, errors.Wrap(errors.KindConfig, "catalog.new", "invalid preset", err)
	}

	security := opts.Security
	pipeline, err := image.NewPipeline(image.Options{
		Security: &security,
		Normalize: image.NormalizeOptions{
			MaxDimension:  preset.MaxDimension,
			Quality:       preset.Quality,
			QualityLadder: preset.QualityLadder,
			ByteBudget:    preset.ByteBudget,
		},
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "catalog.new", "build image pipeline", err)
	}

	reconciler, err := NewReconciler(opts.Extraction.ResultSchema)
	if err != nil {
		return nil, err
	}

	presetName := strings.ToLower(strings.TrimSpace(opts.Extraction.Preset))
	if presetName == "" {
		presetName = config.PresetStandard
	}
	if opts.Extraction.EncodeWorkers <= 0 {
		opts.Extraction.EncodeWorkers = preset.MaxImages
	}

	return &Service{
		cfg:        opts.Extraction,
		presetName: presetName,
		preset:     preset,
		pipeline:   pipeline,
		reconciler: reconciler,
		model:      opts.Model,
		events:     opts.Events,
		logger:     opts.Logger,
	}, nil
}

// PresetName returns the active preset.
func (s *Service) PresetName() string { return s.presetName }

// Preset returns the resolved preset bounds.
func (s *Service) Preset() config.PresetConfig { return s.preset }

type encodeOutcome struct {
	part  image.EncodedPart
	stage image.Stage
	err   error
}

// Extract turns uploaded parts into a catalog result. Images in the analysis subset that cannot be
// decoded are skipped; the request fails only when none of them survives.
func (s *Service) Extract(ctx context.Context, parts []FilePart) (result Result, err error) {
	requestID := RequestIDFrom(ctx)
	start := time.Now()
	ctx, end := observability.StartSpan(ctx, "catalog", "extract")
	defer func() {
		end(err)
		if err != nil {
			s.publish(eventbus.EventExtractionFailed, eventbus.ExtractionEventData{
				RequestID: requestID,
				Preset:    s.presetName,
				Duration:  time.Since(start),
				Kind:      string(errors.KindOf(err)),
				Error:     err.Error(),
			})
		}
	}()

	images, err := Collect(parts)
	if err != nil {
		return nil, err
	}
	if err := s.checkFormats(requestID, images); err != nil {
		return nil, err
	}

	selected := min(s.preset.MaxImages, len(images))
	s.logger.InfoTag("提取", "request_id=%s collected=%d analysis_subset=%d preset=%s",
		requestID, len(images), selected, s.presetName)

	encoded := make([]encodeOutcome, selected)
	records := make([]StorageRecord, len(images))

	encodeCtx, encodeEnd := observability.StartSpan(ctx, "catalog", "encode")
	g, gctx := errgroup.WithContext(encodeCtx)
	g.SetLimit(s.cfg.EncodeWorkers + 1)

	g.Go(func() error {
		for i, img := range images {
			records[i] = StorageRecord{
				Filename:  img.Filename,
				MimeType:  img.MediaType(),
				SizeBytes: len(img.Data),
				Base64:    base64.StdEncoding.EncodeToString(img.Data),
			}
		}
		return nil
	})
	for i := 0; i < selected; i++ {
		img := images[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			part, normalized, err := s.pipeline.Encode(gctx, img.Filename, img.MediaType(), img.Data)
			encoded[i] = encodeOutcome{part: part, stage: normalized.Stage, err: err}
			return nil
		})
	}
	err = g.Wait()
	encodeEnd(err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(errors.KindTransport, "catalog.encode", "request cancelled during image encoding", ctxErr)
		}
		return nil, errors.Wrap(errors.KindCodec, "catalog.encode", "image encoding interrupted", err)
	}

	aiParts := make([]image.EncodedPart, 0, selected)
	for i, outcome := range encoded {
		if outcome.err != nil {
			s.logger.WarnTag("提取", "request_id=%s skipping image %s: %v", requestID, images[i].Filename, outcome.err)
			s.publish(eventbus.EventImageFallback, eventbus.ImageEventData{
				RequestID: requestID,
				Filename:  images[i].Filename,
				Stage:     string(outcome.stage),
				Error:     outcome.err.Error(),
			})
			continue
		}
		records[i].UsedForAI = true
		aiParts = append(aiParts, outcome.part)
	}
	if len(aiParts) == 0 {
		return nil, errors.New(errors.KindCodec, "catalog.encode",
			fmt.Sprintf("none of the %d selected images could be decoded", selected))
	}

	payload, err := AssemblePrompt(s.cfg.Instruction, aiParts)
	if err != nil {
		return nil, err
	}

	raw, err := s.invokeModel(ctx, payload)
	if err != nil {
		return nil, err
	}

	result, err = s.reconciler.Reconcile(raw, records, len(aiParts))
	if err != nil {
		s.logger.ErrorTag("提取", "request_id=%s model reply could not be parsed: %v", requestID, err)
		return nil, err
	}

	if violations := s.reconciler.Check(result); len(violations) > 0 {
		s.logger.WarnTag("提取", "request_id=%s result schema violations: %s", requestID, strings.Join(violations, "; "))
		s.publish(eventbus.EventSchemaWarning, eventbus.SchemaWarningEventData{
			RequestID:  requestID,
			Violations: violations,
		})
	}

	s.publish(eventbus.EventExtractionCompleted, eventbus.ExtractionEventData{
		RequestID:    requestID,
		Preset:       s.presetName,
		TotalImages:  len(images),
		AIImages:     len(aiParts),
		SkippedCount: selected - len(aiParts),
		Duration:     time.Since(start),
	})
	return result, nil
}

func (s *Service) checkFormats(requestID string, images []UploadedImage) error {
	for _, img := range images {
		mediaType := img.MediaType()
		if image.IsSupportedMIME(mediaType) {
			continue
		}
		if s.cfg.UnsupportedFormatPolicy == config.PolicyReject {
			return errors.New(errors.KindUnsupportedFormat, "catalog.format",
				fmt.Sprintf("unsupported media type %s for %s", mediaType, img.Filename))
		}
		s.logger.WarnTag("提取", "request_id=%s unsupported media type %s for %s, attempting anyway",
			requestID, mediaType, img.Filename)
	}
	return nil
}

func (s *Service) invokeModel(ctx context.Context, payload []MessagePart) (string, error) {
	timeout := s.cfg.ModelTimeout
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	raw, err := s.model.Invoke(callCtx, vlllm.Invocation{
		SystemInstruction: s.cfg.SystemInstruction,
		Parts:             payload,
		MaxOutputTokens:   s.cfg.MaxOutputTokens,
		Temperature:       s.cfg.Temperature,
		Timeout:           timeout,
	})
	if err != nil {
		message := "vision model call failed"
		if errors.IsTimeout(err) || errors.IsTimeout(callCtx.Err()) {
			message = fmt.Sprintf("vision model call timed out after %s", timeout)
		}
		return "", &errors.Error{Kind: errors.KindModel, Op: "catalog.invoke", Message: message, Cause: err}
	}
	return raw, nil
}

func (s *Service) publish(topic string, data interface{}) {
	if s.events == nil {
		return
	}
	s.events.PublishAsync(topic, data)
}
