package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/haulage/core/logger"
	"github.com/kilianp07/haulage/core/model"
	"github.com/kilianp07/haulage/core/monitoring"
	"github.com/kilianp07/haulage/core/notify"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	ReadTopic   string          `json:"read_topic"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	AuthMethod  string          `json:"auth_method"`
	QoS         map[string]byte `json:"qos"`
	Retain      bool            `json:"retain"`
	LWTTopic    string          `json:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload"`
	LWTQoS      byte            `json:"lwt_qos"`
	LWTRetain   bool            `json:"lwt_retain"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// ReadHandler is called for every read receipt received on the read topic.
type ReadHandler func(ctx context.Context, r ReadReceipt) error

var _ notify.Sink = (*Relay)(nil)

// Relay publishes notifications to per-user topics. It is a notify.Sink.
type Relay struct {
	cli         pahoClient
	topicPrefix string
	readTopic   string
	qos         map[string]byte
	retain      bool

	mu         sync.RWMutex
	onRead     ReadHandler
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewRelay connects to the broker and subscribes to the read receipt topic
// when one is configured.
func NewRelay(cfg Config, log logger.Logger) (*Relay, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log = logger.OrNop(log)
	r := &Relay{
		topicPrefix: cfg.TopicPrefix,
		readTopic:   cfg.ReadTopic,
		qos:         cfg.QoS,
		retain:      cfg.Retain,
		logger:      log,
		maxRetries:  cfg.MaxRetries,
		backoff:     time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if r.maxRetries <= 0 {
		r.maxRetries = 3
	}
	if r.backoff <= 0 {
		r.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if r.readTopic == "" {
			return
		}
		if token := c.Subscribe(r.readTopic, r.qosFor("read"), r.onReceipt); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	r.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return r, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
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
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// OnRead registers the handler for read receipts.
func (r *Relay) OnRead(h ReadHandler) {
	r.mu.Lock()
	r.onRead = h
	r.mu.Unlock()
}

func (r *Relay) qosFor(kind string) byte {
	if q, ok := r.qos[kind]; ok {
		return q
	}
	return 0
}

func (r *Relay) onReceipt(_ paho.Client, msg paho.Message) {
	var rr ReadReceipt
	if err := json.Unmarshal(msg.Payload(), &rr); err != nil || rr.NotificationID == "" {
		r.logger.Errorf("failed to decode read receipt: %v", err)
		return
	}
	r.mu.RLock()
	h := r.onRead
	r.mu.RUnlock()
	if h == nil {
		return
	}
	if err := h(context.Background(), rr); err != nil {
		r.logger.Warnf("read receipt %s: %v", rr.NotificationID, err)
		return
	}
	r.logger.Debugf("notification %s read by %s", rr.NotificationID, rr.UserID)
}

// Deliver publishes n to the user's topic, retrying with exponential backoff.
func (r *Relay) Deliver(ctx context.Context, n model.Notification) error {
	payload, err := NewMessage(n).Encode()
	if err != nil {
		return err
	}
	topic := UserTopic(r.topicPrefix, n.UserID)
	qos := r.qosFor("notification")

	var publishErr error
retry:
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		token := r.cli.Publish(topic, qos, r.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			r.logger.Infof("sent notification %s to %s", n.ID, topic)
			return nil
		}
		r.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			publishErr = ctx.Err()
			break retry
		case <-time.After(r.backoff * time.Duration(1<<attempt)):
		}
	}
	monitoring.CaptureException(publishErr, map[string]string{
		"module":          "mqtt",
		"user_id":         n.UserID,
		"notification_id": n.ID,
	})
	return fmt.Errorf("publish notification %s: %w", n.ID, publishErr)
}

// Disconnect gracefully closes the MQTT connection.
func (r *Relay) Disconnect() {
	if r.cli != nil && r.cli.IsConnected() {
		r.cli.Disconnect(250)
	}
}
