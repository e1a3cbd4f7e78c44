// Package handler 提供 HTTP 请求处理器
// 本文件处理知识库文件上传请求
package handler

import (
	"io"

	"nevermiss_server/internal/infrastructure/n8n"
	"nevermiss_server/internal/service"
	"nevermiss_server/pkg/errorx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxIngestMemory 多文件表单的内存上限（32MB，超出部分落临时文件）
const maxIngestMemory = 32 << 20

// IngestHandler 文件摄取处理器
type IngestHandler struct {
	ingestService service.IngestService
}

// NewIngestHandler 创建摄取处理器实例
func NewIngestHandler(ingestService service.IngestService) *IngestHandler {
	return &IngestHandler{ingestService: ingestService}
}

// Upload 受理一个摄取批次
// POST /api/ingest/upload (multipart/form-data)
// 表单字段: userId；文件字段: files（可多个）
// 响应: respond.IngestRespond（批次标识、受理与拒绝的文件名、进度通知 ID）
func (h *IngestHandler) Upload(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxIngestMemory); err != nil {
		HandleError(c, errorx.New(errorx.CodeInvalidParam, "表单解析失败"))
		return
	}

	userId := c.PostForm("userId")
	if userId == "" {
		userId = c.GetString("user_id")
	}
	if userId == "" {
		HandleError(c, errorx.New(errorx.CodeInvalidParam, "userId 不能为空"))
		return
	}

	form := c.Request.MultipartForm
	headers := form.File["files"]
	if len(headers) == 0 {
		HandleError(c, errorx.New(errorx.CodeInvalidParam, "没有可上传的文件"))
		return
	}

	files := make([]n8n.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			zap.L().Error("打开上传文件失败", zap.String("file", fh.Filename), zap.Error(err))
			HandleError(c, errorx.New(errorx.CodeInvalidParam, "读取上传文件失败"))
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			HandleError(c, errorx.New(errorx.CodeInvalidParam, "读取上传文件失败"))
			return
		}
		files = append(files, n8n.UploadFile{Name: fh.Filename, Content: content})
	}

	rsp, err := h.ingestService.Upload(c.Request.Context(), userId, files)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}
