package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mooc-session-miner/internal/service"
	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
)

type exportServiceMock struct {
	got service.ExportRequest
	err error
}

func (m *exportServiceMock) Export(ctx context.Context, req service.ExportRequest) (*service.ExportResult, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return &service.ExportResult{RelativePath: "sessions/sessions_20170120T100000.csv", Rows: 4, GeneratedAt: time.Now()}, nil
}

func TestExportHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &exportServiceMock{}

	c, w := newJSONContext(http.MethodPost, "/api/v1/exports", []byte(`{"collection":"sessions","filter":{"course_learner_id":"c_42"},"limit":10}`))
	NewExportHandler(svc).Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "sessions", svc.got.Collection)
	assert.Equal(t, "c_42", svc.got.Filter["course_learner_id"])
	assert.Equal(t, 10, svc.got.Limit)
}

func TestExportHandlerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, w := newJSONContext(http.MethodPost, "/api/v1/exports", []byte(`{"limit":-1}`))
	NewExportHandler(&exportServiceMock{}).Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newJSONContext(http.MethodPost, "/api/v1/exports", []byte(`{"collection":"sessions"}`))
	NewExportHandler(&exportServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "no sessions documents match")}).Create(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
