// internal/tokens/extractor.go
package tokens

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/promptprobe/internal/config"
	"go.uber.org/zap"
)

const (
	// DefaultFieldLengthThreshold flags JSON string fields longer than this.
	DefaultFieldLengthThreshold = 39
	// DefaultMinOpaqueLength is the shortest raw-text run treated as an opaque token.
	DefaultMinOpaqueLength = 30
)

// Sources reported in Result.Sources.
const (
	SourceField  = "field"
	SourceJWT    = "jwt"
	SourceOpaque = "opaque"
)

const jwtSegment = `[A-Za-z0-9_-]{8,}`

var (
	jwtShape   = regexp.MustCompile(`^` + jwtSegment + `\.` + jwtSegment + `\.` + jwtSegment + `$`)
	jwtInText  = regexp.MustCompile(jwtSegment + `\.` + jwtSegment + `\.` + jwtSegment)
	jsonParser = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Result is the outcome of one extraction.
type Result struct {
	// Tokens maps a JSON field name, or a synthetic key such as "jwt_0", to the token value.
	Tokens map[string]string
	// Sources counts how many tokens each pass contributed.
	Sources map[string]int
}

// Extractor finds credential-looking values in request bodies. It never
// fails: a body with nothing token-like yields an empty map.
type Extractor struct {
	fieldLengthThreshold int
	opaque               *regexp.Regexp
	logger               *zap.Logger
}

// NewExtractor builds an extractor from config, falling back to the default
// thresholds for non-positive values.
func NewExtractor(cfg config.TokensConfig, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.FieldLengthThreshold
	if threshold <= 0 {
		threshold = DefaultFieldLengthThreshold
	}
	minOpaque := cfg.MinOpaqueLength
	if minOpaque <= 0 {
		minOpaque = DefaultMinOpaqueLength
	}
	return &Extractor{
		fieldLengthThreshold: threshold,
		opaque:               regexp.MustCompile(fmt.Sprintf(`[A-Za-z0-9_-]{%d,}`, minOpaque)),
		logger:               logger.Named("tokens"),
	}
}

// Extract returns the token mapping for body.
func (e *Extractor) Extract(body string) map[string]string {
	return e.ExtractWithSources(body).Tokens
}

// ExtractWithSources runs the structured pass when body is a JSON object and
// the regex passes otherwise.
func (e *Extractor) ExtractWithSources(body string) Result {
	res := Result{Tokens: map[string]string{}, Sources: map[string]int{}}
	if strings.TrimSpace(body) == "" {
		return res
	}

	var obj map[string]interface{}
	if err := jsonParser.UnmarshalFromString(body, &obj); err == nil && obj != nil {
		for name, raw := range obj {
			value, ok := raw.(string)
			if !ok {
				continue
			}
			if IsJWTShaped(value) || len(value) > e.fieldLengthThreshold {
				res.Tokens[name] = value
			}
		}
		res.Sources[SourceField] = len(res.Tokens)
		e.logger.Debug("Extracted tokens from JSON body.", zap.Int("count", len(res.Tokens)))
		return res
	}

	if found := collect(jwtInText.FindAllString(body, -1), "jwt", res.Tokens); found > 0 {
		res.Sources[SourceJWT] = found
		e.logger.Debug("Extracted JWT-shaped tokens from raw body.", zap.Int("count", found))
		return res
	}
	if found := collect(e.opaque.FindAllString(body, -1), "opaque", res.Tokens); found > 0 {
		res.Sources[SourceOpaque] = found
		e.logger.Debug("Extracted opaque tokens from raw body.", zap.Int("count", found))
	}
	return res
}

// collect stores distinct matches under prefix_0, prefix_1, ... in order of
// first appearance and returns how many were stored.
func collect(matches []string, prefix string, into map[string]string) int {
	seen := make(map[string]struct{}, len(matches))
	n := 0
	for _, m := range matches {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		into[fmt.Sprintf("%s_%d", prefix, n)] = m
		n++
	}
	return n
}

// IsJWTShaped reports whether s is exactly three dot-separated base64url
// segments of at least eight characters each.
func IsJWTShaped(s string) bool {
	return jwtShape.MatchString(s)
}
