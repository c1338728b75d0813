package adapter

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prefeitura-rio/searsia-node/internal/search"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultTimeout limita conexão e leitura de um resource remoto
	DefaultTimeout = 9 * time.Second
	UserAgent      = "Searsia/1.0"

	maxPageSize = 10 << 20
)

// Request descreve uma chamada a um resource remoto
type Request struct {
	URL         string
	DisplayURL  string // URL sem segredos, usada em spans; vazio usa URL
	Body        string // POST quando não vazio
	ContentType string
	Headers     map[string]string
	MimeType    string
}

// Fetcher busca a página bruta de um resource
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// HTTPFetcher implementa Fetcher sobre net/http
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher cria um fetcher com timeout de conexão e leitura
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{Transport: transport, Timeout: timeout},
	}
}

// Fetch executa GET (ou POST, se houver corpo) e devolve o corpo da resposta.
// 410 vira search.ErrGone; falhas de rede e status de erro viram
// search.ErrUnavailable.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	ctx, span := otel.Tracer("adapter").Start(ctx, "resource.fetch")
	defer span.End()
	displayURL := req.DisplayURL
	if displayURL == "" {
		displayURL = req.URL
	}
	span.SetAttributes(attribute.String("http.url", displayURL))

	method := http.MethodGet
	var body io.Reader
	if req.Body != "" {
		method = http.MethodPost
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		span.SetStatus(codes.Error, "url inválida")
		return nil, search.Unavailable(err, "url inválida: %v", err)
	}
	httpReq.Header.Set("User-Agent", UserAgent)
	if req.MimeType != "" {
		httpReq.Header.Set("Accept", req.MimeType)
	}
	if req.Body != "" {
		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/x-www-form-urlencoded"
		}
		httpReq.Header.Set("Content-Type", contentType)
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			span.SetStatus(codes.Error, "timeout")
			return nil, search.Unavailable(err, "timeout: %v", err)
		}
		span.SetStatus(codes.Error, "falha de conexão")
		return nil, search.Unavailable(err, "falha de conexão: %v", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode == http.StatusGone {
		span.SetStatus(codes.Error, "gone")
		return nil, search.Gone("resource removido (410)")
	}
	if resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, resp.Status)
		return nil, search.Unavailable(nil, "HTTP %d", resp.StatusCode)
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		span.SetStatus(codes.Error, "erro ao ler resposta")
		return nil, search.Unavailable(err, "erro ao ler resposta: %v", err)
	}
	return page, nil
}

// FetchFunc adapta uma função comum a Fetcher
type FetchFunc func(ctx context.Context, req Request) ([]byte, error)

func (fn FetchFunc) Fetch(ctx context.Context, req Request) ([]byte, error) {
	return fn(ctx, req)
}

var _ Fetcher = (*HTTPFetcher)(nil)
