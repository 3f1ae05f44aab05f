package frameprocessing

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"emotion-worker-go/internal/models"
)

const analyzeMethod = "/emotion.v1.EmotionAnalyzer/Analyze"

// ErrBackoff is returned while the client waits out consecutive failures
var ErrBackoff = errors.New("analyzer in backoff period after consecutive failures")

type GRPCConfig struct {
	Endpoint string
	Timeout  time.Duration
	Detector string
	// MaxBackoff caps the exponential backoff between failed calls
	MaxBackoff time.Duration
}

// GRPCAnalyzer calls the emotion analyzer service over a unary gRPC method that
// exchanges structpb.Struct messages
type GRPCAnalyzer struct {
	cfg GRPCConfig
	enc Encoder

	mu       sync.RWMutex
	conn     *grpc.ClientConn
	target   string
	creds    credentials.TransportCredentials
	dialOpts []grpc.DialOption

	// Retry management
	lastFailTime     time.Time
	consecutiveFails int
}

func NewGRPCAnalyzer(cfg GRPCConfig, enc Encoder, opts ...grpc.DialOption) (*GRPCAnalyzer, error) {
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	target, creds, err := parseGRPCEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AI endpoint %s: %w", cfg.Endpoint, err)
	}
	return &GRPCAnalyzer{
		cfg:      cfg,
		enc:      enc,
		target:   target,
		creds:    creds,
		dialOpts: opts,
	}, nil
}

// connect lazily creates the client connection
func (g *GRPCAnalyzer) connect() (*grpc.ClientConn, error) {
	g.mu.RLock()
	conn := g.conn
	g.mu.RUnlock()
	if conn != nil {
		state := conn.GetState()
		if state != connectivity.Shutdown {
			return conn, nil
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil && g.conn.GetState() != connectivity.Shutdown {
		return g.conn, nil
	}

	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(g.creds)}, g.dialOpts...)
	conn, err := grpc.NewClient(g.target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AI service at %s: %w", g.target, err)
	}
	g.conn = conn

	log.Info().
		Str("ai_endpoint", g.target).
		Bool("use_tls", g.creds.Info().SecurityProtocol == "tls").
		Msg("ai_grpc_connection_initialized")
	return conn, nil
}

func (g *GRPCAnalyzer) Analyze(ctx context.Context, frame *models.Frame) ([]models.Face, error) {
	if !g.shouldRetry() {
		return nil, ErrBackoff
	}
	conn, err := g.connect()
	if err != nil {
		g.recordFailure()
		return nil, err
	}

	jpeg, err := g.enc.Encode(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	req, err := structpb.NewStruct(map[string]any{
		"camera_id":         float64(frame.CameraID),
		"frame_id":          float64(frame.FrameID),
		"image":             base64.StdEncoding.EncodeToString(jpeg),
		"actions":           []any{"emotion"},
		"enforce_detection": false,
		"detector_backend":  g.cfg.Detector,
	})
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	resp := &structpb.Struct{}
	if err := conn.Invoke(ctx, analyzeMethod, req, resp); err != nil {
		g.recordFailure()
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	g.mu.Lock()
	g.consecutiveFails = 0
	g.mu.Unlock()

	return parseResults(resp.AsMap(), frame.Width, frame.Height)
}

// Healthy runs the standard gRPC health check against the analyzer
func (g *GRPCAnalyzer) Healthy(ctx context.Context) error {
	conn, err := g.connect()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("AI service health check failed at %s: %w", g.target, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("AI service at %s is %s", g.target, resp.GetStatus())
	}
	return nil
}

func (g *GRPCAnalyzer) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return nil
	}
	err := g.conn.Close()
	g.conn = nil
	log.Info().Str("ai_endpoint", g.target).Msg("ai_grpc_connection_closed")
	return err
}

// shouldRetry applies exponential backoff: 1s, 2s, 4s ... up to MaxBackoff
func (g *GRPCAnalyzer) shouldRetry() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.consecutiveFails == 0 {
		return true
	}
	shift := g.consecutiveFails - 1
	if shift > 16 {
		shift = 16
	}
	backoff := time.Duration(1<<uint(shift)) * time.Second
	if backoff > g.cfg.MaxBackoff {
		backoff = g.cfg.MaxBackoff
	}
	return time.Since(g.lastFailTime) >= backoff
}

func (g *GRPCAnalyzer) recordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.consecutiveFails++
	g.lastFailTime = time.Now()

	if g.consecutiveFails <= 5 {
		log.Warn().
			Str("ai_endpoint", g.target).
			Int("consecutive_fails", g.consecutiveFails).
			Msg("ai_connection_failure_recorded")
	}
}

// parseGRPCEndpoint normalizes host[:port] or a URL into a dial target and picks
// TLS for https and the usual TLS ports
func parseGRPCEndpoint(endpoint string) (string, credentials.TransportCredentials, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", nil, errors.New("empty endpoint")
	}
	if !strings.Contains(endpoint, "://") {
		host, portStr, hasPort := strings.Cut(endpoint, ":")
		switch {
		case !hasPort:
			endpoint = "https://" + endpoint + ":443"
		default:
			port, err := strconv.Atoi(portStr)
			if err == nil && (port == 443 || port == 8443 || port == 9443) {
				endpoint = "https://" + host + ":" + portStr
			} else {
				endpoint = "http://" + host + ":" + portStr
			}
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host = u.Hostname() + ":443"
		case "http":
			host = u.Hostname() + ":80"
		}
	}

	var creds credentials.TransportCredentials
	switch u.Scheme {
	case "https":
		creds = credentials.NewTLS(&tls.Config{ServerName: u.Hostname()})
	case "http":
		creds = insecure.NewCredentials()
	default:
		return "", nil, fmt.Errorf("unsupported scheme: %s (supported: http, https)", u.Scheme)
	}
	return host, creds, nil
}
