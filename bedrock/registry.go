// Package bedrock resolves Bedrock model ids to their provider and model
// family, and hands out the body parser for that family.
package bedrock

import (
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/nrbedrock/bedrock-observability/bedrock/anthropic"
	"github.com/nrbedrock/bedrock-observability/bedrock/cohere"
	"github.com/nrbedrock/bedrock-observability/bedrock/generic"
	"github.com/nrbedrock/bedrock-observability/bedrock/llama"
	"github.com/nrbedrock/bedrock-observability/bedrock/mistral"
	"github.com/nrbedrock/bedrock-observability/bedrock/titan"
	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
	"github.com/nrbedrock/bedrock-observability/common/config"
)

// Unknown is used for model ids and providers that cannot be determined.
const Unknown = "unknown"

type Family int

const (
	FamilyGeneric Family = iota
	FamilyAnthropic
	FamilyTitan
	FamilyLlama
	FamilyCohere
	FamilyMistral
)

func (f Family) String() string {
	switch f {
	case FamilyAnthropic:
		return "anthropic"
	case FamilyTitan:
		return "titan"
	case FamilyLlama:
		return "llama"
	case FamilyCohere:
		return "cohere"
	case FamilyMistral:
		return "mistral"
	default:
		return "generic"
	}
}

// RegionPrefixes are the geography prefixes of cross-region inference profiles.
var RegionPrefixes = []string{"us-gov", "us", "eu", "apac", "jp", "au", "global"}

// ModelInfo is what the monitor knows about a model id.
type ModelInfo struct {
	// ID is the model id exactly as the caller passed it, or "unknown".
	ID string
	// BaseID is ID with the ARN and region prefix stripped.
	BaseID   string
	Provider string
	Family   Family
	// Embedding is true for embedding models such as amazon.titan-embed-text-v2:0.
	Embedding bool
	// RegionPrefix is the inference profile geography, e.g. "us", or "".
	RegionPrefix string
}

var (
	awsArnMatch = regexp.MustCompile(`^arn:aws[a-z-]*:bedrock:`)

	parsers = map[Family]utils.Parser{
		FamilyAnthropic: &anthropic.Parser{},
		FamilyTitan:     &titan.Parser{},
		FamilyLlama:     &llama.Parser{},
		FamilyCohere:    &cohere.Parser{},
		FamilyMistral:   &mistral.Parser{},
		FamilyGeneric:   &generic.Parser{},
	}

	resolved = cache.New(config.ModelCacheTTL, 2*config.ModelCacheTTL)
)

// Resolve describes modelID. Results are memoized.
func Resolve(modelID string) ModelInfo {
	if v, ok := resolved.Get(modelID); ok {
		return v.(ModelInfo)
	}

	info := resolve(modelID)
	resolved.Set(modelID, info, cache.DefaultExpiration)
	return info
}

func resolve(modelID string) ModelInfo {
	id := strings.TrimSpace(modelID)
	if id == "" {
		return ModelInfo{ID: Unknown, BaseID: Unknown, Provider: Unknown, Family: FamilyGeneric}
	}

	base := id
	if awsArnMatch.MatchString(base) {
		if i := strings.LastIndex(base, "/"); i >= 0 && i < len(base)-1 {
			base = base[i+1:]
		}
	}

	info := ModelInfo{ID: id}
	if prefix, rest, ok := strings.Cut(base, "."); ok && isRegionPrefix(prefix) && strings.Contains(rest, ".") {
		info.RegionPrefix = prefix
		base = rest
	}
	info.BaseID = base

	info.Provider = Unknown
	if provider, _, ok := strings.Cut(base, "."); ok && provider != "" {
		info.Provider = provider
	}

	lower := strings.ToLower(id)
	info.Family = familyOf(lower)
	info.Embedding = strings.Contains(lower, "embed")
	return info
}

// familyOf dispatches on substrings in the same order as the provider checks
// of the event builders: anthropic first, the generic chain last.
func familyOf(lowerID string) Family {
	switch {
	case strings.Contains(lowerID, "anthropic"), strings.Contains(lowerID, "claude"):
		return FamilyAnthropic
	case strings.Contains(lowerID, "titan"):
		return FamilyTitan
	case strings.Contains(lowerID, "llama"):
		return FamilyLlama
	case strings.Contains(lowerID, "cohere"):
		return FamilyCohere
	case strings.Contains(lowerID, "mistral"), strings.Contains(lowerID, "mixtral"):
		return FamilyMistral
	default:
		return FamilyGeneric
	}
}

func isRegionPrefix(s string) bool {
	for _, p := range RegionPrefixes {
		if s == p {
			return true
		}
	}
	return false
}

// Parser returns the body parser for the model family.
func (m ModelInfo) Parser() utils.Parser {
	return ParserFor(m.Family)
}

// ParserFor returns the body parser for f, or the generic parser.
func ParserFor(f Family) utils.Parser {
	if p, ok := parsers[f]; ok {
		return p
	}
	return parsers[FamilyGeneric]
}

// FlushCache drops memoized results.
func FlushCache() {
	resolved.Flush()
}

// SetCacheTTL replaces the memo with one using ttl.
func SetCacheTTL(ttl time.Duration) {
	resolved = cache.New(ttl, 2*ttl)
}
