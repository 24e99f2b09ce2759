// internal/tokens/extractor_fuzz_test.go
package tokens

import (
	"strings"
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/promptprobe/internal/config"
)

const maxFuzzFields = 8

// FuzzExtract builds either a JSON object or raw text from the fuzz input.
// The extractor must never panic and must always return a map. For JSON
// objects the result is exactly the qualifying string fields.
func FuzzExtract(f *testing.F) {
	f.Add([]byte("\x01\x02\x00\x00\x00\x00\x00\x00\x00\x06prompt\x00\x00\x00\x1bWrite HTML for a login form"))
	f.Add([]byte("\x00\x00\x00\x00\x28sid=ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ; path=/"))
	f.Add([]byte("\x00\x00\x00\x00\x1aaaaaaaaa.bbbbbbbb.cccccccc"))

	e := NewExtractor(config.TokensConfig{}, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		asObject, err := consumer.GetBool()
		if err != nil {
			return
		}

		if !asObject {
			raw, err := consumer.GetString()
			if err != nil {
				return
			}
			res := e.ExtractWithSources(raw)
			require.NotNil(t, res.Tokens)
			if _, structured := res.Sources[SourceField]; !structured {
				for key := range res.Tokens {
					require.True(t, strings.HasPrefix(key, "jwt_") || strings.HasPrefix(key, "opaque_"), "unexpected key %q", key)
				}
			}
			_ = DecodeAll(res.Tokens, now)
			return
		}

		count, err := consumer.GetInt()
		if err != nil {
			return
		}
		fields := make(map[string]string)
		for i := 0; i < int(uint(count)%maxFuzzFields); i++ {
			name, err := consumer.GetString()
			if err != nil {
				break
			}
			value, err := consumer.GetString()
			if err != nil {
				break
			}
			// Invalid UTF-8 would be rewritten by the encoder and no longer match.
			fields[strings.ToValidUTF8(name, "")] = strings.ToValidUTF8(value, "")
		}

		body, err := jsonParser.MarshalToString(fields)
		require.NoError(t, err)

		want := make(map[string]string)
		for name, value := range fields {
			if IsJWTShaped(value) || len(value) > e.fieldLengthThreshold {
				want[name] = value
			}
		}

		got := e.Extract(body)
		require.NotNil(t, got)
		require.Equal(t, want, got)
		for key, value := range got {
			if _, ok := Decode(value, now); ok {
				require.True(t, IsJWTShaped(value), "decoded non-JWT value under %q", key)
			}
		}
	})
}
