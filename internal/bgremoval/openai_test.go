package bgremoval

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(Config{}, nil)
	assert.Error(t, err)
}

func TestRemoveBackgroundSendsPNGAndDecodesResponse(t *testing.T) {
	cutout := encodePNG(t, 4, 4)
	var gotPrompt, gotModel string
	var gotImage []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/edits", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		mr, err := r.MultipartReader()
		require.NoError(t, err)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "prompt":
				gotPrompt = string(data)
			case "model":
				gotModel = string(data)
			case "image":
				gotImage = data
			}
		}

		writeJSON(t, w, http.StatusOK, map[string]any{
			"created": 1,
			"data":    []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(cutout)}},
		})
	}))
	defer srv.Close()

	remover, err := NewOpenAI(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)

	out, err := remover.RemoveBackground(context.Background(), domain.Blob{MIMEType: "image/jpeg", Data: encodeJPEG(t, 8, 6)})
	require.NoError(t, err)

	assert.Equal(t, "image/png", out.MIMEType)
	assert.Equal(t, cutout, out.Data)
	assert.Equal(t, DefaultPrompt, gotPrompt)
	assert.Equal(t, DefaultModel, gotModel)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(gotImage))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 8, cfg.Width)
}

func TestRemoveBackgroundFormFieldsFollowModel(t *testing.T) {
	cases := []struct {
		model      string
		wantFormat string
	}{
		{model: "gpt-image-1", wantFormat: ""},
		{model: "dall-e-2", wantFormat: "b64_json"},
	}
	for _, tc := range cases {
		t.Run(tc.model, func(t *testing.T) {
			fields := map[string]string{}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, r.ParseMultipartForm(1<<20))
				for k, v := range r.MultipartForm.Value {
					fields[k] = v[0]
				}
				writeJSON(t, w, http.StatusOK, map[string]any{
					"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(encodePNG(t, 1, 1))}},
				})
			}))
			defer srv.Close()

			remover, err := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL + "/v1/", Model: tc.model, Size: "512x512"}, nil)
			require.NoError(t, err)

			_, err = remover.RemoveBackground(context.Background(), domain.Blob{MIMEType: "image/png", Data: encodePNG(t, 2, 2)})
			require.NoError(t, err)

			assert.Equal(t, tc.model, fields["model"])
			assert.Equal(t, "1", fields["n"])
			assert.Equal(t, "512x512", fields["size"])
			assert.Equal(t, tc.wantFormat, fields["response_format"])
		})
	}
}

func TestRemoveBackgroundAcceptsDataURI(t *testing.T) {
	cutout := encodePNG(t, 2, 2)
	uri := domain.Blob{MIMEType: "image/webp", Data: cutout}.DataURI()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"data": []map[string]string{{"url": uri}},
		})
	}))
	defer srv.Close()

	remover, err := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)

	out, err := remover.RemoveBackground(context.Background(), domain.Blob{MIMEType: "image/png", Data: encodePNG(t, 2, 2)})
	require.NoError(t, err)
	assert.Equal(t, "image/webp", out.MIMEType)
	assert.Equal(t, cutout, out.Data)
}

func TestRemoveBackgroundEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"data": []any{}})
	}))
	defer srv.Close()

	remover, err := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)

	_, err = remover.RemoveBackground(context.Background(), domain.Blob{MIMEType: "image/png", Data: encodePNG(t, 2, 2)})
	require.Error(t, err)
	assert.Equal(t, domain.KindRemoteFailure, domain.KindOf(err))
	assert.Equal(t, domain.ReasonNoImage, err.Error())
}

func TestRemoveBackgroundSurfacesAPIMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{
				"message": "Your request was rejected by the safety system.",
				"type":    "invalid_request_error",
			},
		})
	}))
	defer srv.Close()

	remover, err := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)

	_, err = remover.RemoveBackground(context.Background(), domain.Blob{MIMEType: "image/png", Data: encodePNG(t, 2, 2)})
	require.Error(t, err)
	assert.Equal(t, domain.KindRemoteFailure, domain.KindOf(err))
	assert.Equal(t, "Your request was rejected by the safety system.", err.Error())
}

func TestDisabledRemover(t *testing.T) {
	_, err := Disabled{}.RemoveBackground(context.Background(), domain.Blob{})
	require.Error(t, err)
	assert.Equal(t, domain.KindRemoteFailure, domain.KindOf(err))
	assert.Equal(t, ReasonNotConfigured, err.Error())
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: uint8(10 * x), B: uint8(10 * y), A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), nil))
	return buf.Bytes()
}
