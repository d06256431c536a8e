package kafka

import "time"

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds producer configuration.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
	Async        bool
	HashByKey    bool
}

// WithBrokers sets Kafka brokers.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Brokers = brokers
	}
}

// WithCompression sets compression type.
func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Compression = compression
	}
}

// WithRequiredAcks sets required acknowledgements (-1 = all).
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) {
		c.RequiredAcks = acks
	}
}

// WithMaxAttempts sets max retry attempts by the writer.
func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) {
		c.MaxAttempts = n
	}
}

// WithBatchSize sets batch size.
func WithBatchSize(size int) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchSize = size
	}
}

// WithBatchTimeout sets batch timeout.
func WithBatchTimeout(timeout time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchTimeout = timeout
	}
}

// WithBatchBytes sets target aggregate batch bytes.
func WithBatchBytes(bytes int) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchBytes = bytes
	}
}

// WithTimeouts sets writer read/write timeouts.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.WriteTimeout = write
		c.ReadTimeout = read
	}
}

// WithAsync toggles async writes (fire-and-forget).
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.Async = async
	}
}

// WithHashByKey sets hash balancer for per-key (symbol) ordering.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.HashByKey = hash
	}
}

// Config is the YAML shape of the kafka section.
type Config struct {
	Brokers        []string     `yaml:"brokers" default:"[\"localhost:9092\"]"`
	SamplesTopic   string       `yaml:"samples_topic" default:"probdesk.samples"`
	SnapshotsTopic string       `yaml:"snapshots_topic" default:"probdesk.snapshots"`
	AlertsTopic    string       `yaml:"alerts_topic" default:"probdesk.alerts"`
	PublishAlerts  bool         `yaml:"publish_alerts"`
	RequiredAcks   int          `yaml:"required_acks" default:"-1"`
	Compression    string       `yaml:"compression" default:"snappy"`
	Producer       ProducerYAML `yaml:"producer"`
	Consumer       ConsumerYAML `yaml:"consumer"`
}

type ProducerYAML struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	Linger       time.Duration `yaml:"linger" default:"50ms"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	Async        bool          `yaml:"async"`
}

type ConsumerYAML struct {
	Enabled    bool          `yaml:"enabled"`
	GroupID    string        `yaml:"group_id" default:"probdesk"`
	Workers    int           `yaml:"workers" default:"4"`
	BufferSize int           `yaml:"buffer_size" default:"256"`
	RetryMax   int           `yaml:"retry_max" default:"3"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
	DLQTopic   string        `yaml:"dlq_topic" default:"probdesk.samples.dlq"`
	MinBytes   int           `yaml:"min_bytes" default:"1"`
	MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
}

// ProducerOptions converts the YAML section into producer options.
// Messages are keyed by market id, so the hash balancer keeps per-market order.
func (c Config) ProducerOptions() []ProducerOption {
	return []ProducerOption{
		WithBrokers(c.Brokers),
		WithRequiredAcks(c.RequiredAcks),
		WithCompression(c.Compression),
		WithMaxAttempts(c.Producer.MaxAttempts),
		WithBatchSize(c.Producer.BatchSize),
		WithBatchBytes(c.Producer.BatchBytes),
		WithBatchTimeout(c.Producer.Linger),
		WithTimeouts(c.Producer.WriteTimeout, c.Producer.ReadTimeout),
		WithAsync(c.Producer.Async),
		WithHashByKey(true),
	}
}

// ConsumerOptions converts the YAML section into consumer options.
func (c Config) ConsumerOptions() []ConsumerOption {
	return []ConsumerOption{
		WithConsumerBrokers(c.Brokers),
		WithConsumerGroupID(c.Consumer.GroupID),
		WithConsumerWorkers(c.Consumer.Workers),
		WithConsumerBufferSize(c.Consumer.BufferSize),
		WithConsumerRetry(c.Consumer.RetryMax, c.Consumer.BackoffMin, c.Consumer.BackoffMax),
		WithConsumerDLQ(c.Consumer.DLQTopic),
		WithConsumerFetch(c.Consumer.MinBytes, c.Consumer.MaxBytes),
	}
}
