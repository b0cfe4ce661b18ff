package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremqtt "github.com/kilianp07/eta/core/mqtt"
	"github.com/kilianp07/eta/core/metrics"
	"github.com/kilianp07/eta/core/model"
	"github.com/kilianp07/eta/core/monitoring"
	"github.com/kilianp07/eta/core/prediction"
	"github.com/kilianp07/eta/infra/logger"
)

// Default topics.
const (
	DefaultRequestTopic  = "eta/predict/request"
	DefaultResponseTopic = "eta/predict/response"

	maxRequestIDLen = 128
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// RequestTopic receives prediction requests.
	RequestTopic string `json:"request_topic"`
	// ResponseTopic is the prefix of response topics; the request id is appended.
	ResponseTopic string          `json:"response_topic"`
	UseTLS        bool            `json:"use_tls"`
	ClientCert    string          `json:"client_cert"`
	ClientKey     string          `json:"client_key"`
	CABundle      string          `json:"ca_bundle"`
	AuthMethod    string          `json:"auth_method"`
	QoS           map[string]byte `json:"qos"`
	LWTTopic      string          `json:"lwt_topic"`
	LWTPayload    string          `json:"lwt_payload"`
	LWTQoS        byte            `json:"lwt_qos"`
	LWTRetain     bool            `json:"lwt_retain"`
	MaxRetries    int             `json:"max_retries"`
	BackoffMS     int             `json:"backoff_ms"`
	// RequestTimeoutMS bounds the handling of one request.
	RequestTimeoutMS int         `json:"request_timeout_ms"`
	TLSConfig        *tls.Config `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// SetDefaults applies default topics, client id and timeouts.
func (c *Config) SetDefaults() {
	if c.RequestTopic == "" {
		c.RequestTopic = DefaultRequestTopic
	}
	if c.ResponseTopic == "" {
		c.ResponseTopic = DefaultResponseTopic
	}
	if c.ClientID == "" {
		c.ClientID = "eta-" + uuid.NewString()[:8]
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
	if c.RequestTimeoutMS <= 0 {
		c.RequestTimeoutMS = 5000
	}
}

// Validate checks topic and auth settings.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if strings.ContainsAny(c.ResponseTopic, "+#") {
		return fmt.Errorf("response_topic must not contain wildcards")
	}
	switch c.AuthMethod {
	case "", "username_password", "certificate", "both":
	default:
		return fmt.Errorf("unknown auth_method %s", c.AuthMethod)
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient answers prediction requests with an Engine and can itself send
// requests and wait for their responses.
type PahoClient struct {
	cli           pahoClient
	requestTopic  string
	responseTopic string
	qos           map[string]byte
	engine        prediction.Engine

	mu         sync.Mutex
	pending    map[string]chan coremqtt.ResponseMessage
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker. When engine is not nil the
// client subscribes to the request topic and publishes one response per
// request. Every client subscribes to the response topics so that
// SendRequest and WaitForResponse work.
func NewPahoClient(cfg Config, engine prediction.Engine) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		requestTopic:  cfg.RequestTopic,
		responseTopic: strings.TrimSuffix(cfg.ResponseTopic, "/"),
		qos:           cfg.QoS,
		engine:        engine,
		pending:       make(map[string]chan coremqtt.ResponseMessage),
		logger:        log,
		maxRetries:    cfg.MaxRetries,
		backoff:       time.Duration(cfg.BackoffMS) * time.Millisecond,
		timeout:       time.Duration(cfg.RequestTimeoutMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		pc.subscribe(c)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	pc.cli = newMQTTClient(opts)
	if token := pc.cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return pc, nil
}

func (p *PahoClient) subscribe(c pahoClient) {
	if p.engine != nil {
		if token := c.Subscribe(p.requestTopic, p.qosFor("request"), p.onRequest); token.Wait() && token.Error() != nil {
			p.logger.Errorf("subscribe error: %v", token.Error())
		}
	}
	if token := c.Subscribe(p.responseTopic+"/+", p.qosFor("response"), p.onResponse); token.Wait() && token.Error() != nil {
		p.logger.Errorf("subscribe error: %v", token.Error())
	}
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	// handlers publish responses and must not block the delivery goroutine
	opts.SetOrderMatters(false)
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

// ResponseTopic returns the topic carrying the response of requestID.
func (p *PahoClient) ResponseTopic(requestID string) string {
	return p.responseTopic + "/" + requestID
}

// validRequestID reports whether id can be appended to the response topic as
// a single level. Wildcards and separators are rejected.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}

func (p *PahoClient) onRequest(_ paho.Client, msg paho.Message) {
	var req coremqtt.RequestMessage
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		p.logger.Errorf("failed to decode request: %v", err)
		return
	}
	if !validRequestID(req.RequestID) {
		if req.RequestID != "" {
			p.logger.Warnf("replacing request id %q unusable as a topic level", req.RequestID)
		}
		req.RequestID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	res, err := p.engine.Predict(ctx, prediction.Request{
		RequestID: req.RequestID,
		Source:    metrics.SourceMQTT,
		Row:       req.Row,
	})
	out := coremqtt.ResponseMessage{RequestID: req.RequestID}
	if err != nil {
		out.Error = err.Error()
		if !errors.Is(err, model.ErrInvalidFeature) {
			p.logger.Errorf("predict %s: %v", req.RequestID, err)
		}
	} else {
		out.Minutes = res.Minutes
		out.Display = res.Display
	}
	if err := p.publish(p.ResponseTopic(req.RequestID), p.qosFor("response"), out); err != nil {
		monitoring.CaptureException(err, map[string]string{"module": "mqtt", "request_id": req.RequestID})
	}
}

func (p *PahoClient) onResponse(_ paho.Client, msg paho.Message) {
	var m coremqtt.ResponseMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode response: %v", err)
		return
	}
	p.mu.Lock()
	ch, ok := p.pending[m.RequestID]
	if ok {
		select {
		case ch <- m:
		default:
		}
		p.logger.Debugf("received response %s", m.RequestID)
	}
	p.mu.Unlock()
}

// publish marshals v and publishes it, retrying with exponential backoff.
func (p *PahoClient) publish(topic string, qos byte, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published to %s", topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	return publishErr
}

// SendRequest publishes a prediction request for row and returns its
// identifier.
func (p *PahoClient) SendRequest(row model.FeatureRow) (string, error) {
	id := uuid.NewString()
	p.mu.Lock()
	p.pending[id] = make(chan coremqtt.ResponseMessage, 1)
	p.mu.Unlock()

	err := p.publish(p.requestTopic, p.qosFor("request"), coremqtt.RequestMessage{RequestID: id, Row: row})
	if err != nil {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		monitoring.CaptureException(err, map[string]string{"module": "mqtt", "request_id": id})
		return "", err
	}
	p.logger.Infof("sent request %s to %s", id, p.requestTopic)
	return id, nil
}

// WaitForResponse blocks until the response for requestID is received or
// timeout elapses. A response carrying an error is returned as ErrRemote.
func (p *PahoClient) WaitForResponse(requestID string, timeout time.Duration) (prediction.Response, error) {
	p.mu.Lock()
	ch := p.pending[requestID]
	p.mu.Unlock()
	if ch == nil {
		return prediction.Response{}, fmt.Errorf("unknown request %s", requestID)
	}
	defer func() {
		p.mu.Lock()
		delete(p.pending, requestID)
		p.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-ch:
		if m.Error != "" {
			return prediction.Response{RequestID: requestID}, fmt.Errorf("%w: %s", coremqtt.ErrRemote, m.Error)
		}
		return prediction.Response{RequestID: m.RequestID, Minutes: m.Minutes, Display: m.Display}, nil
	case <-timer.C:
		return prediction.Response{}, fmt.Errorf("%w", coremqtt.ErrResponseTimeout)
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

var _ coremqtt.Requester = (*PahoClient)(nil)
