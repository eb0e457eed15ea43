// Package tokens estimates token counts for prompt and completion text.
package tokens

import (
	"strings"
	"sync"

	"github.com/Laisky/zap"
	"github.com/pkoukk/tiktoken-go"

	"github.com/nrbedrock/bedrock-observability/common/config"
	"github.com/nrbedrock/bedrock-observability/common/logger"
)

const (
	// KindWord selects WordEstimator.
	KindWord = "word"
	// KindTiktoken selects TiktokenEstimator.
	KindTiktoken = "tiktoken"
)

// Estimator counts tokens in a piece of text.
type Estimator interface {
	Count(text string) int
	Name() string
}

// WordEstimator counts whitespace separated words.
type WordEstimator struct{}

// Count returns the number of whitespace separated fields in text.
func (WordEstimator) Count(text string) int {
	return len(strings.Fields(text))
}

// Name implements Estimator.
func (WordEstimator) Name() string { return KindWord }

// TiktokenEstimator counts BPE tokens with a tiktoken encoding.
// The encoding is loaded on first use; if it cannot be loaded the
// estimator falls back to word counting for the rest of its life.
type TiktokenEstimator struct {
	encoding string

	once    sync.Once
	encoder *tiktoken.Tiktoken
}

// NewTiktokenEstimator returns an estimator for the named encoding, e.g. "cl100k_base".
func NewTiktokenEstimator(encoding string) *TiktokenEstimator {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenEstimator{encoding: encoding}
}

func (e *TiktokenEstimator) load() {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err != nil {
			logger.Logger.Warn("load tiktoken encoding, fall back to word count",
				zap.String("encoding", e.encoding),
				zap.Error(err))
			return
		}
		e.encoder = enc
	})
}

// Count implements Estimator.
func (e *TiktokenEstimator) Count(text string) int {
	if text == "" {
		return 0
	}

	e.load()
	if e.encoder == nil {
		return WordEstimator{}.Count(text)
	}
	return len(e.encoder.Encode(text, nil, nil))
}

// Name implements Estimator.
func (e *TiktokenEstimator) Name() string {
	return KindTiktoken + ":" + e.encoding
}

// Loaded reports whether the tiktoken encoding is in use.
func (e *TiktokenEstimator) Loaded() bool {
	e.load()
	return e.encoder != nil
}

// New returns the estimator for kind. Unknown kinds get WordEstimator.
func New(kind, encoding string) Estimator {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindTiktoken:
		return NewTiktokenEstimator(encoding)
	case KindWord, "":
		return WordEstimator{}
	default:
		logger.Logger.Warn("unknown token estimator, use word count", zap.String("kind", kind))
		return WordEstimator{}
	}
}

// FromConfig returns the estimator selected by TOKEN_ESTIMATOR.
func FromConfig() Estimator {
	return New(config.TokenEstimator, config.TiktokenEncoding)
}

// CountAll sums Count over texts.
func CountAll(e Estimator, texts []string) int {
	total := 0
	for _, t := range texts {
		total += e.Count(t)
	}
	return total
}
