package internal

import (
	"fmt"
	"time"

	"campus-chat/runtime"
)

type Config struct {
	BufferSize             int           `env:"BUFFER_SIZE,default=1024"`
	MailboxSize            int           `env:"MAILBOX_SIZE,default=256"`
	ConnectionBufferSize   int           `env:"CONNECTION_BUFFER_SIZE,default=128"`
	FanoutShards           int           `env:"FANOUT_SHARDS,default=4"`
	ModerationWorkers      int           `env:"MODERATION_WORKERS,default=2"`
	HistoryLimit           int           `env:"HISTORY_LIMIT,default=50"`
	SearchLimit            int           `env:"SEARCH_LIMIT,default=50"`
	PreviewLength          int           `env:"PREVIEW_LENGTH,default=120"`
	LowCapacityThreshold   int           `env:"LOW_CAPACITY_THRESHOLD,default=10"`
	DefaultMaxParticipants int           `env:"DEFAULT_MAX_PARTICIPANTS,default=100"`
	CharReplacement        string        `env:"CHARACTER_REPLACEMENT,default=*"`
	SinkTimeout            time.Duration `env:"SINK_TIMEOUT,default=200ms"`
	RequestTimeout         time.Duration `env:"REQUEST_TIMEOUT,default=5s"`
	PublishTimeout         time.Duration `env:"PUBLISH_TIMEOUT,default=1s"`
	DeliveryTimeout        time.Duration `env:"DELIVERY_TIMEOUT,default=500ms"`
	ToxicitySLA            time.Duration `env:"TOXICITY_SLA,default=2s"`
	TypingTimeout          time.Duration `env:"TYPING_TIMEOUT,default=5s"`
	PresenceGrace          time.Duration `env:"PRESENCE_GRACE,default=30s"`
	DigestInterval         time.Duration `env:"DIGEST_INTERVAL,default=1h"`
	MetricInterval         time.Duration `env:"METRIC_INTERVAL,default=30s"`
	LatencyThreshold       time.Duration `env:"LATENCY_THRESHOLD,default=250ms"`
	RestartInterval        time.Duration `env:"RESTART_INTERVAL,default=1s"`
	ReadTimeout            time.Duration `env:"WS_READ_TIMEOUT,default=60s"`
	WriteWait              time.Duration `env:"WS_WRITE_WAIT,default=10s"`
	BadgerFilepath         string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath          string        `env:"BLUGE_FILEPATH,required=true"`
	JWTSecret              string        `env:"JWT_SECRET,required=true"`
	JWTIssuer              string        `env:"JWT_ISSUER,default=campus"`
	RedisURL               string        `env:"REDIS_URL"`
	LogLevel               string        `env:"LOG_LEVEL,default=INFO"`
	Host                   string        `env:"HOST,default=0.0.0.0"`
	Port                   int           `env:"PORT,default=50051"`
	WebsocketPort          int           `env:"WEBSOCKET_PORT,default=8080"`
	DebugPort              int           `env:"DEBUG_PORT,default=8081"`
}

// Runtime projects the environment onto the runtime tunables.
func (c Config) Runtime() (runtime.Config, error) {
	censored, err := CharacterRune(c.CharReplacement)
	if err != nil {
		return runtime.Config{}, err
	}
	return runtime.Config{
		BufferSize:             c.BufferSize,
		MailboxSize:            c.MailboxSize,
		FanoutShards:           c.FanoutShards,
		ModerationWorkers:      c.ModerationWorkers,
		HistoryLimit:           c.HistoryLimit,
		SearchLimit:            c.SearchLimit,
		PreviewLength:          c.PreviewLength,
		LowCapacityThreshold:   c.LowCapacityThreshold,
		DefaultMaxParticipants: c.DefaultMaxParticipants,
		CensoredChar:           censored,
		SinkTimeout:            c.SinkTimeout,
		RequestTimeout:         c.RequestTimeout,
		PublishTimeout:         c.PublishTimeout,
		ToxicitySLA:            c.ToxicitySLA,
		TypingTimeout:          c.TypingTimeout,
		PresenceGrace:          c.PresenceGrace,
		DigestInterval:         c.DigestInterval,
		MetricInterval:         c.MetricInterval,
		LatencyThreshold:       c.LatencyThreshold,
	}, nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
