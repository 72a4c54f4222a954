package extract

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"product-catalog-server-go/internal/domain/catalog"
	"product-catalog-server-go/internal/platform/errors"
	"product-catalog-server-go/internal/platform/logging"
	httptransport "product-catalog-server-go/internal/transport/http"
)

// Service 商品图片提取接口的HTTP传输层实现
type Service struct {
	logger         *logging.Logger
	extractor      Extractor
	modelName      string
	maxUploadBytes int64
}

// NewService 创建新的提取服务实例
func NewService(extractor Extractor, modelName string, maxUploadBytes int64, logger *logging.Logger) (*Service, error) {
	if extractor == nil {
		return nil, errors.New(errors.KindConfig, "extract.new", "extractor is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "extract.new", "logger is required")
	}

	return &Service{
		logger:         logger,
		extractor:      extractor,
		modelName:      modelName,
		maxUploadBytes: maxUploadBytes,
	}, nil
}

// Register 注册提取相关的HTTP路由
func (s *Service) Register(_ context.Context, router *gin.RouterGroup) error {
	router.GET("/extract", s.handleGet)
	router.POST("/extract", s.handlePost)
	router.OPTIONS("/extract", s.handleOptions)

	s.logger.InfoTag("HTTP", "提取服务路由注册完成")
	return nil
}

// handleOptions 处理不带 Origin 的 OPTIONS 请求，跨域预检由 CORS 中间件处理
func (s *Service) handleOptions(c *gin.Context) {
	c.Header("Allow", "GET, POST, OPTIONS")
	c.Status(http.StatusNoContent)
}

// handleGet 处理GET请求（状态检查）
// @Summary 检查提取服务状态
// @Description 返回当前使用的视觉模型和预设
// @Tags Extract
// @Produce plain
// @Success 200 {string} string "服务状态信息"
// @Router /extract [get]
func (s *Service) handleGet(c *gin.Context) {
	c.String(http.StatusOK, fmt.Sprintf("catalog extract endpoint ready: model=%s preset=%s",
		s.modelName, s.extractor.PresetName()))
}

// handlePost 处理POST请求（商品信息提取）
// @Summary 商品图片信息提取
// @Description 上传一张或多张商品图片（字段 images、image、image_1.. 等），返回模型识别的商品信息及图片记录
// @Tags Extract
// @Accept multipart/form-data
// @Produce json
// @Param images formData file true "商品图片，可重复"
// @Success 200 {object} ExtractionResponse
// @Failure 400 {object} httptransport.APIResponse
// @Failure 413 {object} httptransport.APIResponse
// @Failure 500 {object} httptransport.APIResponse
// @Router /extract [post]
func (s *Service) handlePost(c *gin.Context) {
	requestID := uuid.NewString()
	c.Header(httptransport.RequestIDHeader, requestID)
	start := time.Now()

	if s.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)
	}

	parts, err := readFileParts(c.Request)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.logger.WarnTag("HTTP", "request_id=%s upload exceeds %d bytes", requestID, tooLarge.Limit)
			httptransport.RespondFailure(c, http.StatusRequestEntityTooLarge, requestID,
				errors.Wrap(errors.KindInput, "extract.read", fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), err))
			return
		}
		s.logger.WarnTag("HTTP", "request_id=%s invalid upload: %v", requestID, err)
		httptransport.RespondFailure(c, http.StatusBadRequest, requestID,
			errors.Wrap(errors.KindInput, "extract.read", "request body must be multipart/form-data", err))
		return
	}

	ctx := catalog.WithRequestID(c.Request.Context(), requestID)
	result, err := s.extractor.Extract(ctx, parts)
	if err != nil {
		status := httptransport.StatusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorTag("HTTP", "request_id=%s extraction failed: %v", requestID, err)
		} else {
			s.logger.WarnTag("HTTP", "request_id=%s extraction rejected: %v", requestID, err)
		}
		httptransport.RespondFailure(c, status, requestID, err)
		return
	}

	s.logger.InfoTag("HTTP", "request_id=%s extraction done: images=%v analyzed=%v elapsed=%s",
		requestID, result[catalog.KeyTotalImageCount], result[catalog.KeyAIAnalysisImageCount], time.Since(start))
	c.JSON(http.StatusOK, result)
}

// readFileParts streams the multipart body and returns its file parts in wire order.
// Non-file form fields are skipped.
func readFileParts(r *http.Request) ([]catalog.FilePart, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}

	var parts []catalog.FilePart
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			return nil, err
		}

		_, params, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		filename, isFile := params["filename"]
		if !isFile {
			if _, err := io.Copy(io.Discard, part); err != nil {
				return nil, err
			}
			continue
		}

		data, err := io.ReadAll(part)
		if err != nil {
			return nil, err
		}
		parts = append(parts, catalog.FilePart{
			Field:       part.FormName(),
			Filename:    filename,
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}
}
