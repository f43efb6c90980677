// Package convert is the gateway to the external PDF-to-markdown
// conversion service (MinerU-compatible API).
package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrSourceMissing is an input error: the uploaded PDF is gone. Jobs hitting
// it fail immediately, without retries.
var ErrSourceMissing = errors.New("source pdf file not found")

// Failure is an expected conversion failure (missing credential, service
// error, missing output). It carries a human-readable reason and is retried
// at the job level, never inside the gateway.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string {
	return "conversion failed: " + f.Reason
}

// Options identify the document a conversion belongs to.
type Options struct {
	DocumentID string
	Title      string
}

// Result is a successful conversion: the markdown text in memory plus the
// paths of the artifacts written into the document's working directory.
type Result struct {
	Markdown        string
	MarkdownPath    string
	ContentJSONPath string
	LayoutJSONPath  string
}

// Gateway converts PDFs via the remote service, writing output into an
// isolated per-document working directory.
type Gateway struct {
	apiKey        string
	baseURL       string
	outputDir     string
	localFallback bool
	httpClient    *http.Client
	log           *slog.Logger
}

func NewGateway(apiKey, baseURL, outputDir string, timeout time.Duration, localFallback bool, log *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Gateway{
		apiKey:        apiKey,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		outputDir:     outputDir,
		localFallback: localFallback,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// WorkDir is the per-document conversion output directory. Exclusive to the
// document's active job; concurrent jobs for one document are refused at
// submit time.
func (g *Gateway) WorkDir(documentID string) string {
	return filepath.Join(g.outputDir, documentID)
}

type convertResponse struct {
	Success     bool            `json:"success"`
	Markdown    string          `json:"markdown"`
	ContentJSON json.RawMessage `json:"content_json"`
	LayoutJSON  json.RawMessage `json:"layout_json"`
	Error       string          `json:"error"`
}

// Convert turns a PDF into markdown. Expected failure modes come back as
// *Failure; a missing source file as ErrSourceMissing.
func (g *Gateway) Convert(ctx context.Context, pdfPath string, opts Options) (*Result, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, pdfPath)
	}

	if g.apiKey == "" {
		if g.localFallback {
			g.log.Warn("converter api key not configured, using local extraction",
				"document_id", opts.DocumentID)
			return g.convertLocal(pdfPath, opts)
		}
		// Deterministic and cheap: no network round-trip is attempted.
		return nil, &Failure{Reason: "MINERU_API_KEY not configured"}
	}

	resp, err := g.callRemote(ctx, pdfPath, opts)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = "converter reported failure without a reason"
		}
		return nil, &Failure{Reason: reason}
	}
	if strings.TrimSpace(resp.Markdown) == "" {
		return nil, &Failure{Reason: "converter returned no markdown output"}
	}

	return g.writeArtifacts(opts.DocumentID, resp)
}

func (g *Gateway) callRemote(ctx context.Context, pdfPath string, opts Options) (*convertResponse, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, pdfPath)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(pdfPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy pdf into request: %w", err)
	}
	if err := mw.WriteField("title", opts.Title); err != nil {
		return nil, fmt.Errorf("write title field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/v4/extract", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	httpResp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &Failure{Reason: fmt.Sprintf("converter unreachable: %s", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 64<<20))
	if err != nil {
		return nil, &Failure{Reason: fmt.Sprintf("read converter response: %s", err)}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &Failure{Reason: fmt.Sprintf("converter status %d: %s",
			httpResp.StatusCode, truncate(string(respBody), 200))}
	}

	var resp convertResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &Failure{Reason: fmt.Sprintf("decode converter response: %s", err)}
	}
	return &resp, nil
}

// writeArtifacts persists the conversion output into the document workdir
// and reads the markdown artifact back, so downstream stages always consume
// the same bytes a re-run would find on disk.
func (g *Gateway) writeArtifacts(documentID string, resp *convertResponse) (*Result, error) {
	workDir := g.WorkDir(documentID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, &Failure{Reason: fmt.Sprintf("create working directory: %s", err)}
	}

	mdPath := filepath.Join(workDir, "output.md")
	if err := os.WriteFile(mdPath, []byte(resp.Markdown), 0o644); err != nil {
		return nil, &Failure{Reason: fmt.Sprintf("write markdown artifact: %s", err)}
	}

	result := &Result{MarkdownPath: mdPath}

	if len(resp.ContentJSON) > 0 {
		p := filepath.Join(workDir, "content.json")
		if err := os.WriteFile(p, resp.ContentJSON, 0o644); err != nil {
			g.log.Warn("write content.json artifact failed", "error", err)
		} else {
			result.ContentJSONPath = p
		}
	}
	if len(resp.LayoutJSON) > 0 {
		p := filepath.Join(workDir, "layout.json")
		if err := os.WriteFile(p, resp.LayoutJSON, 0o644); err != nil {
			g.log.Warn("write layout.json artifact failed", "error", err)
		} else {
			result.LayoutJSONPath = p
		}
	}

	md, err := os.ReadFile(mdPath)
	if err != nil {
		return nil, &Failure{Reason: fmt.Sprintf("read back markdown artifact: %s", err)}
	}
	result.Markdown = string(md)
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
