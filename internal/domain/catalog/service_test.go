package catalog

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"product-catalog-server-go/internal/core/providers/vlllm"
	"product-catalog-server-go/internal/domain/eventbus"
	"product-catalog-server-go/internal/domain/image"
	"product-catalog-server-go/internal/platform/config"
	"product-catalog-server-go/internal/platform/errors"
	testutil "product-catalog-server-go/internal/platform/testing"
)

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Invoke(ctx context.Context, inv vlllm.Invocation) (string, error) {
	args := m.Called(ctx, inv)
	return args.String(0), args.Error(1)
}

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []interface{}
}

func (p *recordingPublisher) PublishAsync(topic string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	var payload interface{}
	if len(args) > 0 {
		payload = args[0]
	}
	p.payloads = append(p.payloads, payload)
}

func (p *recordingPublisher) Payload(topic string) interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, t := range p.topics {
		if t == topic {
			return p.payloads[i]
		}
	}
	return nil
}

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func newTestService(t *testing.T, model ModelClient, mutate func(*config.ExtractionConfig)) (*Service, *recordingPublisher) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(&cfg.Extraction)
	}
	events := &recordingPublisher{}
	svc, err := NewService(Options{
		Extraction: cfg.Extraction,
		Security:   cfg.Security,
		Model:      model,
		Events:     events,
		Logger:     testutil.SetupTestLogger(t),
	})
	require.NoError(t, err)
	return svc, events
}

func jpegPart(t *testing.T, field, name string, w, h int) FilePart {
	return FilePart{Field: field, Filename: name, ContentType: "image/jpeg", Data: testutil.JPEGBytes(t, w, h)}
}

func imageParts(inv vlllm.Invocation) []vlllm.Part {
	var out []vlllm.Part
	for _, part := range inv.Parts {
		if part.Type == vlllm.PartImage {
			out = append(out, part)
		}
	}
	return out
}

func TestExtract_SingleSmallJPEG(t *testing.T) {
	model := &mockModel{}
	svc, events := newTestService(t, model, nil)
	part := jpegPart(t, "image", "vazo.jpg", 500, 500)

	var captured vlllm.Invocation
	model.On("Invoke", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(vlllm.Invocation) }).
		Return(`{"itemName":"Vazo","category":"Obje","size":"12x30 cm"}`, nil).Once()

	result, err := svc.Extract(WithRequestID(context.Background(), "req-a"), []FilePart{part})
	require.NoError(t, err)

	assert.Equal(t, "Vazo", result["itemName"])
	assert.Equal(t, 1, result[KeyTotalImageCount])
	assert.Equal(t, 1, result[KeyAIAnalysisImageCount])
	assert.Equal(t, []string{"vazo.jpg"}, result[KeyImageFilenames])

	images := imageParts(captured)
	require.Len(t, images, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString(part.Data), images[0].Data, "small image must be sent unchanged")
	assert.Equal(t, "image/jpeg", images[0].MediaType)
	assert.Equal(t, vlllm.PartText, captured.Parts[0].Type)
	assert.Equal(t, config.DefaultInstruction, captured.Parts[0].Text)
	assert.Equal(t, config.DefaultSystemInstruction, captured.SystemInstruction)
	assert.Equal(t, 500, captured.MaxOutputTokens)

	records := result[KeyImages].([]StorageRecord)
	require.Len(t, records, 1)
	assert.Equal(t, StorageRecord{
		Filename:  "vazo.jpg",
		MimeType:  "image/jpeg",
		SizeBytes: len(part.Data),
		Base64:    base64.StdEncoding.EncodeToString(part.Data),
		UsedForAI: true,
	}, records[0])

	assert.Equal(t, []string{eventbus.EventExtractionCompleted}, events.Topics())
	model.AssertExpectations(t)
}

func TestExtract_SelectionCap(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5} {
		model := &mockModel{}
		svc, _ := newTestService(t, model, nil)

		parts := make([]FilePart, n)
		names := make([]string, n)
		for i := range parts {
			names[i] = string(rune('a'+i)) + ".jpg"
			parts[i] = jpegPart(t, "images", names[i], 64+i, 64)
		}

		var captured vlllm.Invocation
		model.On("Invoke", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { captured = args.Get(1).(vlllm.Invocation) }).
			Return(`{"itemName":"Kitap"}`, nil).Once()

		result, err := svc.Extract(context.Background(), parts)
		require.NoError(t, err)

		want := min(3, n)
		assert.Len(t, imageParts(captured), want)
		assert.Equal(t, n, result[KeyTotalImageCount])
		assert.Equal(t, want, result[KeyAIAnalysisImageCount])
		assert.Equal(t, names, result[KeyImageFilenames])

		records := result[KeyImages].([]StorageRecord)
		require.Len(t, records, n)
		for i, record := range records {
			assert.Equal(t, names[i], record.Filename)
			assert.Equal(t, i < want, record.UsedForAI, "record %d", i)
			assert.Equal(t, base64.StdEncoding.EncodeToString(parts[i].Data), record.Base64)
		}
	}
}

func TestExtract_ImagesKeepSubmissionOrderInPayload(t *testing.T) {
	model := &mockModel{}
	svc, _ := newTestService(t, model, func(e *config.ExtractionConfig) { e.EncodeWorkers = 3 })

	// Larger first image takes longer to resize; the payload must still follow submission order.
	parts := []FilePart{
		jpegPart(t, "images", "big.jpg", 2400, 1800),
		jpegPart(t, "images", "small.jpg", 200, 100),
		jpegPart(t, "images", "mid.jpg", 1200, 1200),
	}

	var captured vlllm.Invocation
	model.On("Invoke", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(vlllm.Invocation) }).
		Return(`{"itemName":"Tablo"}`, nil).Once()

	_, err := svc.Extract(context.Background(), parts)
	require.NoError(t, err)

	images := imageParts(captured)
	require.Len(t, images, 3)
	assert.Equal(t, base64.StdEncoding.EncodeToString(parts[1].Data), images[1].Data)
	assert.NotEqual(t, base64.StdEncoding.EncodeToString(parts[0].Data), images[0].Data, "oversized image must be resized")
	assert.Equal(t, "image/jpeg", images[0].MediaType)
}

func TestExtract_FencedReplyAndMetadataPrecedence(t *testing.T) {
	model := &mockModel{}
	svc, _ := newTestService(t, model, nil)

	model.On("Invoke", mock.Anything, mock.Anything).
		Return("```json\n{\"itemName\":\"X\",\"totalImageCount\":42}\n```", nil).Once()

	result, err := svc.Extract(context.Background(), []FilePart{jpegPart(t, "images", "x.jpg", 32, 32)})
	require.NoError(t, err)

	assert.Equal(t, "X", result["itemName"])
	assert.Equal(t, 1, result[KeyTotalImageCount])
}

func TestExtract_NoFiles(t *testing.T) {
	model := &mockModel{}
	svc, events := newTestService(t, model, nil)

	result, err := svc.Extract(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsKind(err, errors.KindInput))
	assert.Equal(t, []string{eventbus.EventExtractionFailed}, events.Topics())
	model.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
}

func TestExtract_SkipsUndecodableImageInSubset(t *testing.T) {
	model := &mockModel{}
	svc, events := newTestService(t, model, nil)

	parts := []FilePart{
		jpegPart(t, "images", "a.jpg", 40, 40),
		{Field: "images", Filename: "broken.jpg", ContentType: "image/jpeg", Data: []byte("not really a jpeg")},
		jpegPart(t, "images", "c.jpg", 40, 40),
		jpegPart(t, "images", "d.jpg", 40, 40),
	}

	var captured vlllm.Invocation
	model.On("Invoke", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(vlllm.Invocation) }).
		Return(`{"itemName":"Obje"}`, nil).Once()

	result, err := svc.Extract(context.Background(), parts)
	require.NoError(t, err)

	assert.Len(t, imageParts(captured), 2)
	assert.Equal(t, 4, result[KeyTotalImageCount])
	assert.Equal(t, 2, result[KeyAIAnalysisImageCount])

	records := result[KeyImages].([]StorageRecord)
	assert.Equal(t, []bool{true, false, true, false},
		[]bool{records[0].UsedForAI, records[1].UsedForAI, records[2].UsedForAI, records[3].UsedForAI})
	assert.Equal(t, len(parts[1].Data), records[1].SizeBytes)
	assert.Contains(t, events.Topics(), eventbus.EventImageFallback)

	fallback, ok := events.Payload(eventbus.EventImageFallback).(eventbus.ImageEventData)
	require.True(t, ok)
	assert.Equal(t, "broken.jpg", fallback.Filename)
	assert.Equal(t, string(image.StageValidate), fallback.Stage)
}

func TestExtract_CancelledDuringEncoding(t *testing.T) {
	model := &mockModel{}
	svc, events := newTestService(t, model, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Extract(ctx, []FilePart{jpegPart(t, "images", "a.jpg", 40, 40)})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTransport))
	assert.False(t, errors.IsKind(err, errors.KindCodec))
	model.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
	assert.Equal(t, []string{eventbus.EventExtractionFailed}, events.Topics())
}

func TestExtract_AllSelectedImagesUndecodable(t *testing.T) {
	model := &mockModel{}
	svc, _ := newTestService(t, model, nil)

	parts := []FilePart{
		{Field: "images", Filename: "a.jpg", Data: []byte("garbage a")},
		{Field: "images", Filename: "b.jpg", Data: []byte("garbage b")},
	}

	_, err := svc.Extract(context.Background(), parts)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindCodec))
	model.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
}

func TestExtract_ModelFailures(t *testing.T) {
	t.Run("vendor error", func(t *testing.T) {
		model := &mockModel{}
		svc, _ := newTestService(t, model, nil)
		model.On("Invoke", mock.Anything, mock.Anything).Return("", assert.AnError).Once()

		_, err := svc.Extract(context.Background(), []FilePart{jpegPart(t, "image", "a.jpg", 16, 16)})
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindModel))
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("timeout", func(t *testing.T) {
		model := &mockModel{}
		svc, _ := newTestService(t, model, func(e *config.ExtractionConfig) { e.ModelTimeout = 30 * time.Millisecond })
		model.On("Invoke", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
			Return("", context.DeadlineExceeded).Once()

		_, err := svc.Extract(context.Background(), []FilePart{jpegPart(t, "image", "a.jpg", 16, 16)})
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindModel))
		assert.True(t, errors.IsTimeout(err))
		assert.Contains(t, err.Error(), "timed out")
	})
}

func TestExtract_UnparseableReply(t *testing.T) {
	model := &mockModel{}
	svc, events := newTestService(t, model, nil)
	model.On("Invoke", mock.Anything, mock.Anything).Return("Bu bir vazodur.", nil).Once()

	result, err := svc.Extract(context.Background(), []FilePart{jpegPart(t, "image", "a.jpg", 16, 16)})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsKind(err, errors.KindParse))
	assert.Equal(t, "Bu bir vazodur.", errors.DetailOf(err))
	assert.Equal(t, []string{eventbus.EventExtractionFailed}, events.Topics())
}

func TestExtract_SchemaViolationIsOnlyAWarning(t *testing.T) {
	model := &mockModel{}
	svc, events := newTestService(t, model, nil)
	model.On("Invoke", mock.Anything, mock.Anything).Return(`{"category":"Plak"}`, nil).Once()

	result, err := svc.Extract(context.Background(), []FilePart{jpegPart(t, "image", "a.jpg", 16, 16)})
	require.NoError(t, err)
	assert.Equal(t, "Plak", result["category"])
	assert.Equal(t, []string{eventbus.EventSchemaWarning, eventbus.EventExtractionCompleted}, events.Topics())
}

func TestExtract_UnsupportedFormatPolicy(t *testing.T) {
	heic := FilePart{Field: "image", Filename: "a.heic", ContentType: "image/heic", Data: testutil.JPEGBytes(t, 16, 16)}

	t.Run("reject", func(t *testing.T) {
		model := &mockModel{}
		svc, _ := newTestService(t, model, func(e *config.ExtractionConfig) { e.UnsupportedFormatPolicy = config.PolicyReject })

		_, err := svc.Extract(context.Background(), []FilePart{heic})
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindUnsupportedFormat))
		model.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
	})

	t.Run("best effort", func(t *testing.T) {
		model := &mockModel{}
		svc, _ := newTestService(t, model, nil)
		model.On("Invoke", mock.Anything, mock.Anything).Return(`{"itemName":"X"}`, nil).Once()

		result, err := svc.Extract(context.Background(), []FilePart{heic})
		require.NoError(t, err)
		assert.Equal(t, 1, result[KeyAIAnalysisImageCount])
		records := result[KeyImages].([]StorageRecord)
		assert.Equal(t, "image/heic", records[0].MimeType)
	})
}

func TestNewService_Validation(t *testing.T) {
	logger := testutil.SetupTestLogger(t)
	cfg := config.DefaultConfig()

	_, err := NewService(Options{Extraction: cfg.Extraction, Security: cfg.Security, Logger: logger})
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	bad := cfg.Extraction
	bad.Preset = "nope"
	_, err = NewService(Options{Extraction: bad, Security: cfg.Security, Model: &mockModel{}, Logger: logger})
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	empty := cfg.Extraction
	empty.Instruction = " "
	_, err = NewService(Options{Extraction: empty, Security: cfg.Security, Model: &mockModel{}, Logger: logger})
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	compact := cfg.Extraction
	compact.Preset = config.PresetCompact
	svc, err := NewService(Options{Extraction: compact, Security: cfg.Security, Model: &mockModel{}, Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, config.PresetCompact, svc.PresetName())
	assert.EqualValues(t, 400*1024, svc.Preset().ByteBudget)
}
