package bgremoval

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	DefaultModel   = "gpt-image-1"
	DefaultSize    = openai.CreateImageSize1024x1024
	DefaultTimeout = 90 * time.Second
	DefaultPrompt  = "Isolate the main subject in this image and make the background transparent (alpha channel). The output should be a PNG image if transparency is applied."

	maxDownloadBytes = 64 << 20
	maxErrorBytes    = 1 << 20
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Prompt  string
	Size    string
	Timeout time.Duration
}

// OpenAI removes backgrounds through the image edit endpoint.
type OpenAI struct {
	api        openai.ClientConfig
	apiKey     string
	httpClient *http.Client
	model      string
	prompt     string
	size       string
	timeout    time.Duration
	logger     *zap.Logger
}

func NewOpenAI(cfg Config, logger *zap.Logger) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing OpenAI API key")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	r := &OpenAI{
		api:        clientConfig,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		model:      cfg.Model,
		prompt:     cfg.Prompt,
		size:       cfg.Size,
		timeout:    cfg.Timeout,
		logger:     logger.Named("bgremoval"),
	}
	if r.model == "" {
		r.model = DefaultModel
	}
	if r.prompt == "" {
		r.prompt = DefaultPrompt
	}
	if r.size == "" {
		r.size = DefaultSize
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	return r, nil
}

// RemoveBackground sends in to the model and returns the first image it
// answers with. Failures carry the model's message as the display reason.
func (r *OpenAI) RemoveBackground(ctx context.Context, in domain.Blob) (domain.Blob, error) {
	pngData, err := toPNG(in.Data)
	if err != nil {
		return domain.Blob{}, domain.NewError(domain.KindRemoteFailure, "Failed to prepare image for background removal.", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	resp, err := r.createEdit(ctx, pngData)
	if err != nil {
		r.logger.Warn("image edit request failed",
			zap.String("model", r.model),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return domain.Blob{}, domain.NewError(domain.KindRemoteFailure, remoteReason(err), err)
	}
	r.logger.Debug("image edit request completed",
		zap.String("model", r.model),
		zap.Int("images", len(resp.Data)),
		zap.Duration("elapsed", time.Since(started)),
	)

	for _, item := range resp.Data {
		out, err := r.decodeItem(ctx, item)
		if err != nil {
			return domain.Blob{}, domain.NewError(domain.KindRemoteFailure, domain.ReasonNoImage, err)
		}
		if len(out.Data) > 0 {
			return out, nil
		}
	}
	return domain.Blob{}, domain.Errorf(domain.KindRemoteFailure, domain.ReasonNoImage)
}

// createEdit posts the multipart edit request itself because the client
// library's form builder leaves out the model field.
func (r *OpenAI) createEdit(ctx context.Context, pngData []byte) (openai.ImageResponse, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="image.png"`)
	header.Set("Content-Type", "image/png")
	part, err := form.CreatePart(header)
	if err != nil {
		return openai.ImageResponse{}, fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(pngData); err != nil {
		return openai.ImageResponse{}, fmt.Errorf("write image part: %w", err)
	}

	fields := [][2]string{
		{"model", r.model},
		{"prompt", r.prompt},
		{"n", "1"},
		{"size", r.size},
	}
	// gpt-image models always answer with base64 and reject the parameter.
	if !strings.HasPrefix(r.model, "gpt-image") {
		fields = append(fields, [2]string{"response_format", openai.CreateImageResponseFormatB64JSON})
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return openai.ImageResponse{}, fmt.Errorf("write %s field: %w", f[0], err)
		}
	}
	if err := form.Close(); err != nil {
		return openai.ImageResponse{}, fmt.Errorf("close form: %w", err)
	}

	url := strings.TrimRight(r.api.BaseURL, "/") + "/images/edits"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return openai.ImageResponse{}, fmt.Errorf("build image edit request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if r.api.OrgID != "" {
		req.Header.Set("OpenAI-Organization", r.api.OrgID)
	}

	resp, err := r.api.HTTPClient.Do(req)
	if err != nil {
		return openai.ImageResponse{}, fmt.Errorf("send image edit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return openai.ImageResponse{}, decodeAPIError(resp)
	}
	var out openai.ImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return openai.ImageResponse{}, fmt.Errorf("decode image edit response: %w", err)
	}
	return out, nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
	var errResp openai.ErrorResponse
	if err := json.Unmarshal(data, &errResp); err != nil || errResp.Error == nil {
		return &openai.RequestError{
			HTTPStatus:     resp.Status,
			HTTPStatusCode: resp.StatusCode,
			Err:            fmt.Errorf("image edit returned status %d", resp.StatusCode),
			Body:           data,
		}
	}
	errResp.Error.HTTPStatus = resp.Status
	errResp.Error.HTTPStatusCode = resp.StatusCode
	return errResp.Error
}

func (r *OpenAI) decodeItem(ctx context.Context, item openai.ImageResponseDataInner) (domain.Blob, error) {
	switch {
	case item.B64JSON != "":
		payload := strings.TrimSpace(item.B64JSON)
		if strings.HasPrefix(payload, "data:") {
			return domain.ParseDataURI(payload)
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return domain.Blob{}, fmt.Errorf("decode b64_json payload: %w", err)
		}
		return domain.Blob{MIMEType: detectImageType(data), Data: data}, nil
	case strings.HasPrefix(item.URL, "data:"):
		return domain.ParseDataURI(item.URL)
	case item.URL != "":
		return r.download(ctx, item.URL)
	default:
		return domain.Blob{}, nil
	}
}

func (r *OpenAI) download(ctx context.Context, url string) (domain.Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Blob{}, fmt.Errorf("build image download request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return domain.Blob{}, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Blob{}, fmt.Errorf("download image returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return domain.Blob{}, fmt.Errorf("read image download: %w", err)
	}
	return domain.Blob{MIMEType: detectImageType(data), Data: data}, nil
}

func remoteReason(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.Err != nil {
		return reqErr.Err.Error()
	}
	return err.Error()
}

func detectImageType(data []byte) string {
	mimeType := mimetype.Detect(data).String()
	if !strings.HasPrefix(mimeType, "image/") {
		return "image/png"
	}
	return mimeType
}

// toPNG re-encodes the input so the model always receives a format that
// can carry an alpha channel.
func toPNG(data []byte) ([]byte, error) {
	if mimetype.Detect(data).Is("image/png") {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
