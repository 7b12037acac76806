package services

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func multipartFile(t *testing.T, name string, content []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+name+`"`)
	h.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	file, header, err := req.FormFile("image")
	require.NoError(t, err)
	return file, header
}

func TestLocalUpload(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Host, cfg.Server.Port = "localhost", "8080"
	svc, err := NewStorageService(cfg)
	require.NoError(t, err)
	svc.localDir = t.TempDir()

	file, header := multipartFile(t, "stall.PNG", pngHeader)
	require.NoError(t, svc.ValidateImage(file))

	result, err := svc.UploadFile(context.Background(), file, header, svc.GetDefaultUploadOptions("markets"))
	require.NoError(t, err)
	assert.Contains(t, result.URL, "http://localhost:8080/uploads/markets/")
	assert.Contains(t, result.Key, ".png")
	assert.Equal(t, int64(len(pngHeader)), result.Size)

	stored := filepath.Join(svc.localDir, filepath.FromSlash(result.Key))
	assert.FileExists(t, stored)
	assert.Equal(t, result.Key, svc.KeyFromURL(result.URL))

	require.NoError(t, svc.DeleteFile(context.Background(), result.Key))
	assert.NoFileExists(t, stored)
}

func TestUploadRejectsWrongType(t *testing.T) {
	svc, err := NewStorageService(&config.Config{})
	require.NoError(t, err)

	file, header := multipartFile(t, "notes.exe", []byte("MZ"))
	assert.Error(t, svc.ValidateImage(file))

	_, err = svc.UploadFile(context.Background(), file, header, svc.GetDefaultUploadOptions("products"))
	assert.True(t, errors.Is(err, utils.ErrInvalidInput))
}
