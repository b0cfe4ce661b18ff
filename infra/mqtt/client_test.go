package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremqtt "github.com/kilianp07/eta/core/mqtt"
	coremon "github.com/kilianp07/eta/core/monitoring"
	"github.com/kilianp07/eta/core/metrics"
	"github.com/kilianp07/eta/core/model"
	"github.com/kilianp07/eta/core/prediction"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o644))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o644))
	return
}

var row = model.FeatureRow{
	DistanceKm: 4.2, Weather: "Rainy", TrafficLevel: "High", TimeOfDay: "Evening",
	VehicleType: "Scooter", PreparationTimeMin: 15, CourierExperienceYrs: 3,
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.False(t, opts.Order)

	opts, err = NewClientOptions(Config{Broker: "tcp://localhost:1883", Username: "u", AuthMethod: "certificate"})
	require.NoError(t, err)
	assert.Empty(t, opts.Username)
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, DefaultRequestTopic, c.RequestTopic)
	assert.Equal(t, DefaultResponseTopic, c.ResponseTopic)
	assert.NotEmpty(t, c.ClientID)
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Validate())

	c.Broker = "tcp://localhost:1883"
	c.ResponseTopic = "eta/+/response"
	assert.Error(t, c.Validate())
	c.ResponseTopic = DefaultResponseTopic
	c.AuthMethod = "kerberos"
	assert.Error(t, c.Validate())
}

func TestResponder_AnswersRequests(t *testing.T) {
	mc := &mockClient{}
	useMock(t, mc)
	engine := &prediction.MockEngine{Minutes: 27.5}
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", QoS: map[string]byte{"request": 1, "response": 2}}
	cli, err := NewPahoClient(cfg, engine)
	require.NoError(t, err)
	defer cli.Disconnect()

	require.Len(t, mc.subscribed, 2)
	assert.Equal(t, DefaultRequestTopic, mc.subscribed[0].topic)
	assert.Equal(t, byte(1), mc.subscribed[0].qos)
	assert.Equal(t, DefaultResponseTopic+"/+", mc.subscribed[1].topic)

	payload, err := json.Marshal(coremqtt.RequestMessage{RequestID: "r-1", Row: row})
	require.NoError(t, err)
	require.True(t, mc.deliver(DefaultRequestTopic, payload))

	got := engine.Received()
	require.Len(t, got, 1)
	assert.Equal(t, metrics.SourceMQTT, got[0].Source)
	assert.Equal(t, row, got[0].Row)

	out := mc.publishedTo(DefaultResponseTopic + "/r-1")
	require.Len(t, out, 1)
	assert.Equal(t, byte(2), out[0].qos)
	var resp coremqtt.ResponseMessage
	require.NoError(t, json.Unmarshal(out[0].payload, &resp))
	assert.Equal(t, coremqtt.ResponseMessage{RequestID: "r-1", Minutes: 27.5, Display: "27.50 minutes"}, resp)
}

func TestResponder_ReportsPredictionErrors(t *testing.T) {
	mc := &mockClient{}
	useMock(t, mc)
	engine := &prediction.MockEngine{Err: fmt.Errorf("%w: weather missing", model.ErrInvalidFeature)}
	_, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"}, engine)
	require.NoError(t, err)

	require.True(t, mc.deliver(DefaultRequestTopic, []byte(`{"request_id":"bad","row":{}}`)))
	out := mc.publishedTo(DefaultResponseTopic + "/bad")
	require.Len(t, out, 1)
	var resp coremqtt.ResponseMessage
	require.NoError(t, json.Unmarshal(out[0].payload, &resp))
	assert.Contains(t, resp.Error, "weather missing")

	// undecodable payloads are dropped
	mc.deliver(DefaultRequestTopic, []byte("{"))
	assert.Len(t, engine.Received(), 1)
}

func TestResponder_ReplacesUnsafeRequestIDs(t *testing.T) {
	mc := &mockClient{}
	useMock(t, mc)
	engine := &prediction.MockEngine{Minutes: 10}
	_, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"}, engine)
	require.NoError(t, err)

	ids := []string{"x/#", "../../other/topic", "a+b", "", strings.Repeat("a", maxRequestIDLen+1)}
	for _, id := range ids {
		payload, err := json.Marshal(coremqtt.RequestMessage{RequestID: id, Row: row})
		require.NoError(t, err)
		require.True(t, mc.deliver(DefaultRequestTopic, payload))
	}

	mc.mu.Lock()
	pubs := append([]published(nil), mc.published...)
	mc.mu.Unlock()
	require.Len(t, pubs, len(ids))
	for i, p := range pubs {
		level, ok := strings.CutPrefix(p.topic, DefaultResponseTopic+"/")
		require.True(t, ok, "topic %q escapes the response tree", p.topic)
		assert.NotContains(t, level, "/")
		assert.NotContains(t, level, "#")
		assert.NotContains(t, level, "+")
		_, err := uuid.Parse(level)
		assert.NoError(t, err, "request %q", ids[i])

		var resp coremqtt.ResponseMessage
		require.NoError(t, json.Unmarshal(p.payload, &resp))
		assert.Equal(t, level, resp.RequestID)
	}
	for i, got := range engine.Received() {
		assert.Equal(t, strings.TrimPrefix(pubs[i].topic, DefaultResponseTopic+"/"), got.RequestID)
	}
}

func TestValidRequestID(t *testing.T) {
	checks := map[string]bool{
		uuid.NewString(): true,
		"r-1":            true,
		"order_12.v2:a":  true,
		"":               false,
		"x/#":            false,
		"+":              false,
		"a b":            false,
		"é":              false,
	}
	for id, want := range checks {
		if got := validRequestID(id); got != want {
			t.Fatalf("validRequestID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestRequester_RoundTrip(t *testing.T) {
	mc := &mockClient{}
	useMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"}, nil)
	require.NoError(t, err)
	require.Len(t, mc.subscribed, 1)

	id, err := cli.SendRequest(row)
	require.NoError(t, err)
	reqs := mc.publishedTo(DefaultRequestTopic)
	require.Len(t, reqs, 1)
	var req coremqtt.RequestMessage
	require.NoError(t, json.Unmarshal(reqs[0].payload, &req))
	assert.Equal(t, id, req.RequestID)

	payload := fmt.Sprintf(`{"request_id":"%s","minutes":31.25,"display":"31.25 minutes"}`, id)
	require.True(t, mc.deliver(cli.ResponseTopic(id), []byte(payload)))
	resp, err := cli.WaitForResponse(id, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 31.25, resp.Minutes)

	_, err = cli.WaitForResponse(id, time.Millisecond)
	assert.Error(t, err, "response channel must be released")
}

func TestRequester_RemoteError(t *testing.T) {
	mc := &mockClient{}
	useMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"}, nil)
	require.NoError(t, err)
	id, err := cli.SendRequest(row)
	require.NoError(t, err)
	mc.deliver(cli.ResponseTopic(id), []byte(fmt.Sprintf(`{"request_id":"%s","error":"invalid feature row"}`, id)))
	_, err = cli.WaitForResponse(id, time.Millisecond)
	assert.ErrorIs(t, err, coremqtt.ErrRemote)
}

func TestRequester_Timeout(t *testing.T) {
	mc := &mockClient{}
	useMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"}, nil)
	require.NoError(t, err)
	id, err := cli.SendRequest(row)
	require.NoError(t, err)
	_, err = cli.WaitForResponse(id, time.Millisecond)
	assert.ErrorIs(t, err, coremqtt.ErrResponseTimeout)
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	useMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1}, nil)
	require.NoError(t, err)
	_, err = cli.SendRequest(row)
	require.NoError(t, err)
	assert.Len(t, mc.publishedTo(DefaultRequestTopic), 2)
}

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) Recover()            {}
func (r *recordMonitor) Flush(time.Duration) {}

func TestSendRequestErrorCaptured(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail, fail, fail}}
	useMock(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})

	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", BackoffMS: 1}, nil)
	require.NoError(t, err)
	_, err = cli.SendRequest(row)
	require.Error(t, err)
	require.Error(t, mon.err)
	assert.Equal(t, "mqtt", mon.tags["module"])
	assert.NotEmpty(t, mon.tags["request_id"])
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	useMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1}, nil)
	require.NoError(t, err)
	assert.True(t, mc.opts.WillEnabled)
	assert.Equal(t, "lwt", mc.opts.WillTopic)
	assert.Equal(t, "bye", string(mc.opts.WillPayload))
	cli.Disconnect()
	assert.Empty(t, mc.published)
}
