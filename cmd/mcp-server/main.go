package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/admob-go/internal/admob"
	"github.com/patrickwarner/admob-go/internal/config"
	"github.com/patrickwarner/admob-go/internal/identity"
	"github.com/patrickwarner/admob-go/internal/observability"
	"github.com/patrickwarner/admob-go/internal/payload"
)

// PreviewPayloadInput describes a simulated inbound request and call options.
type PreviewPayloadInput struct {
	Mode        string            `json:"mode,omitempty"` // ad, analytics, ad_analytics
	URL         string            `json:"url,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	ClientIP    string            `json:"client_ip,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Cookie      string            `json:"cookie,omitempty"` // existing admobuu value
	PublisherID string            `json:"publisher_id,omitempty"`
	AnalyticsID string            `json:"analytics_id,omitempty"`
	Keywords    string            `json:"keywords,omitempty"`
	Title       string            `json:"title,omitempty"`
	Event       string            `json:"event,omitempty"`
	Test        *bool             `json:"test,omitempty"`
}

type PreviewPayloadOutput struct {
	Mode    string            `json:"mode"`
	Payload map[string]string `json:"payload"`
	Encoded string            `json:"encoded"`
}

// PreviewServer holds our dependencies
type PreviewServer struct {
	client *admob.Client
	logger *zap.Logger
}

// PreviewPayload returns the form an AdMob call would post for the described
// request. Nothing is sent.
func (s *PreviewServer) PreviewPayload(ctx context.Context, req *mcp.CallToolRequest, input PreviewPayloadInput) (*mcp.CallToolResult, PreviewPayloadOutput, error) {
	params, err := paramsFor(input)
	if err != nil {
		return nil, PreviewPayloadOutput{}, err
	}

	r, err := simulatedRequest(input)
	if err != nil {
		return nil, PreviewPayloadOutput{}, err
	}

	p, err := s.client.Preview(r, params)
	if err != nil {
		s.logger.Info("preview rejected", zap.Error(err))
		return nil, PreviewPayloadOutput{}, err
	}

	s.logger.Debug("preview built", zap.String("mode", params.Mode().String()), zap.Int("fields", len(p)))
	return nil, PreviewPayloadOutput{
		Mode:    params.Mode().String(),
		Payload: p,
		Encoded: p.Encode(),
	}, nil
}

func paramsFor(input PreviewPayloadInput) (payload.Params, error) {
	var params payload.Params
	switch input.Mode {
	case "", "ad":
		params.AdRequest = true
	case "analytics":
		params.AnalyticsRequest = true
	case "ad_analytics":
		params.AdRequest = true
		params.AnalyticsRequest = true
	default:
		return params, fmt.Errorf("unknown mode %q", input.Mode)
	}
	params.PublisherID = optional(input.PublisherID)
	params.AnalyticsID = optional(input.AnalyticsID)
	params.Keywords = optional(input.Keywords)
	params.Title = optional(input.Title)
	params.Event = optional(input.Event)
	params.Test = input.Test
	return params, nil
}

func simulatedRequest(input PreviewPayloadInput) (*http.Request, error) {
	target := input.URL
	if target == "" {
		target = "http://localhost/"
	}
	r, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	r.RemoteAddr = "127.0.0.1:0"
	if input.ClientIP != "" {
		r.RemoteAddr = net.JoinHostPort(input.ClientIP, "0")
	}
	for k, v := range input.Headers {
		r.Header.Set(k, v)
	}
	if input.UserAgent != "" {
		r.Header.Set("User-Agent", input.UserAgent)
	}
	if input.Cookie != "" {
		r.AddCookie(&http.Cookie{Name: identity.CookieName, Value: input.Cookie})
	}
	return r, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return payload.String(s)
}

func newMCPServer(s *PreviewServer) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "admob-go",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview_payload",
		Description: "Show the form fields an AdMob ad or analytics request would send for a simulated inbound request",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"mode": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"ad", "analytics", "ad_analytics"},
					"description": "Request mode (optional, defaults to ad)",
				},
				"url": map[string]interface{}{
					"type":        "string",
					"description": "Absolute URL of the simulated page request",
				},
				"user_agent": map[string]interface{}{
					"type":        "string",
					"description": "User-Agent of the simulated visitor",
				},
				"client_ip": map[string]interface{}{
					"type":        "string",
					"description": "Client IP address",
				},
				"headers": map[string]interface{}{
					"type":                 "object",
					"additionalProperties": map[string]interface{}{"type": "string"},
					"description":          "Extra request headers, forwarded under their CGI names",
				},
				"cookie": map[string]interface{}{
					"type":        "string",
					"description": "Existing admobuu cookie value (optional)",
				},
				"publisher_id": map[string]interface{}{
					"type":        "string",
					"description": "Publisher id (optional, defaults to ADMOB_PUBLISHER_ID)",
				},
				"analytics_id": map[string]interface{}{
					"type":        "string",
					"description": "Analytics id (optional, defaults to ADMOB_ANALYTICS_ID)",
				},
				"keywords": map[string]interface{}{
					"type":        "string",
					"description": "Space separated keywords",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Analytics page title",
				},
				"event": map[string]interface{}{
					"type":        "string",
					"description": "Analytics event name",
				},
				"test": map[string]interface{}{
					"type":        "boolean",
					"description": "Mark the request as a test request (optional, defaults to ADMOB_TEST)",
				},
			},
		},
	}, s.PreviewPayload)

	return server
}

func main() {
	cfg := config.Load()

	// stdout carries the protocol; InitLoggerWithLevel writes to stderr
	logger, err := observability.InitLoggerWithLevel(zap.InfoLevel, cfg.ServiceName+"-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	server := newMCPServer(&PreviewServer{
		client: admob.NewClient(cfg, logger, observability.NewNoOpRegistry()),
		logger: logger,
	})

	var logBuffer bytes.Buffer
	loggingTransport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	logger.Info("MCP Server running via stdio")

	if err := server.Run(context.Background(), loggingTransport); err != nil {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
