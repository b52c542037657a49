package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/coopscan/receipts-api/internal/common"
	"github.com/coopscan/receipts-api/internal/export"
	"github.com/coopscan/receipts-api/internal/extract"
	"github.com/coopscan/receipts-api/internal/ocr"
	"github.com/coopscan/receipts-api/internal/service"
	"github.com/coopscan/receipts-api/internal/signature"
)

// Handler exposes the submission core over REST.
type Handler struct {
	submissions *service.SubmissionService
	exporter    *export.Service
	signatures  *signature.Store
	recognizer  ocr.Recognizer
	extractor   *extract.Extractor
	auth        *AuthManager
	pinger      func(ctx context.Context) error
	logger      *slog.Logger
}

func NewHandler(
	submissions *service.SubmissionService,
	exporter *export.Service,
	signatures *signature.Store,
	recognizer ocr.Recognizer,
	extractor *extract.Extractor,
	auth *AuthManager,
	pinger func(ctx context.Context) error,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		submissions: submissions,
		exporter:    exporter,
		signatures:  signatures,
		recognizer:  recognizer,
		extractor:   extractor,
		auth:        auth,
		pinger:      pinger,
		logger:      logger,
	}
}

func errorBody(code string, messages []string) map[string]any {
	return map[string]any{"code": code, "errors": messages}
}

// respondError maps core errors to the wire: stable code, full message
// list, matching HTTP status.
func respondError(c echo.Context, err error) error {
	if ae, ok := common.AsAppError(err); ok {
		return c.JSON(common.HTTPStatus(ae.Code), errorBody(ae.Code, ae.Messages))
	}
	return c.JSON(http.StatusInternalServerError, errorBody(common.CodeInternal, []string{"internal error"}))
}

func (h *Handler) Health(c echo.Context) error {
	if err := h.pinger(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Login(c echo.Context) error {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(common.CodeValidation, []string{"code is required"}))
	}
	token, ok := h.auth.Login(body.Code)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody(common.CodeUnauthorized, []string{"invalid access code"}))
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) Submit(c echo.Context) error {
	ctx := c.Request().Context()

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(common.CodeValidation, []string{"unable to read request body"}))
	}
	sub, err := decodeSubmission(raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(common.CodeValidation, []string{err.Error()}))
	}

	rec, err := h.submissions.Submit(ctx, sub)
	if err != nil {
		h.logger.Warn("submission rejected", "error", err, "request_id", c.Get("request_id"))
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"id":             rec.ID,
		"signature_name": rec.SignatureName,
	})
}

func (h *Handler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	recs, err := h.submissions.List(c.Request().Context(), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"records": recs, "count": len(recs)})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(common.CodeValidation, []string{"id must be an integer"}))
	}
	rec, err := h.submissions.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(common.CodeValidation, []string{"id must be an integer"}))
	}

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(common.CodeValidation, []string{"unable to read request body"}))
	}
	sub, err := decodeSubmission(raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(common.CodeValidation, []string{err.Error()}))
	}

	rec, err := h.submissions.Update(c.Request().Context(), id, sub)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := recordID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(common.CodeValidation, []string{"id must be an integer"}))
	}
	if err := h.submissions.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Exists is the advisory duplicate pre-check; submit re-checks under the
// account lock regardless.
func (h *Handler) Exists(c echo.Context) error {
	refExists, acctExists, err := h.submissions.Exists(
		c.Request().Context(),
		c.QueryParam("transaction_ref"),
		c.QueryParam("account_number"),
	)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{
		"transaction_ref_exists": refExists,
		"account_number_exists":  acctExists,
	})
}

func (h *Handler) Signature(c echo.Context) error {
	name := c.Param("name")
	// Traversal-shaped names are rejected outright; ValidName then pins the
	// generated shape.
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || !signature.ValidName(name) {
		return c.JSON(http.StatusNotFound, errorBody(common.CodeNotFound, []string{"unknown signature file"}))
	}
	f, err := h.signatures.Open(name)
	if err != nil {
		return respondError(c, err)
	}
	defer f.Close()
	return c.Stream(http.StatusOK, "image/png", f)
}

func (h *Handler) Export(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	data, err := h.exporter.RecordsXLSX(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="records.xlsx"`)
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// Recognize runs the OCR engine over an uploaded scan and returns both the
// raw text and the extractor's partial record, for prefilling the form.
func (h *Handler) Recognize(c echo.Context) error {
	ctx := c.Request().Context()

	file, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(common.CodeValidation, []string{"image file is required"}))
	}
	src, err := file.Open()
	if err != nil {
		return respondError(c, err)
	}
	defer src.Close()

	img, err := io.ReadAll(src)
	if err != nil {
		return respondError(c, err)
	}

	text, err := h.recognizer.Recognize(ctx, img)
	if err != nil {
		h.logger.Error("recognition failed", "error", err, "request_id", c.Get("request_id"))
		return c.JSON(http.StatusUnprocessableEntity, errorBody(common.CodeInternal, []string{"recognition failed, recapture and retry"}))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"text":   text,
		"fields": h.extractor.Extract(text),
	})
}

func recordID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
