package codec

import (
	"fmt"
	"strings"
)

const maxTransformStages = 8

// transform is a reversible, length preserving function applied in place.
type transform interface {
	forward(block []byte)
	inverse(block []byte)
}

var transforms = map[string]func() transform{
	"DELTA": func() transform { return deltaTransform{} },
	"MTF":   func() transform { return mtfTransform{} },
	"XOR":   func() transform { return xorTransform{} },
}

type pipeline []transform

func (p pipeline) forward(block []byte) {
	for _, t := range p {
		t.forward(block)
	}
}

func (p pipeline) inverse(block []byte) {
	for i := len(p) - 1; i >= 0; i-- {
		p[i].inverse(block)
	}
}

// parsePipeline turns "DELTA+MTF" into its stages. NONE stages are dropped,
// so "NONE+DELTA" is the same pipeline as "DELTA".
func parsePipeline(spec string) (pipeline, string, error) {
	spec = strings.ToUpper(strings.TrimSpace(spec))
	if spec == "" {
		return nil, "NONE", nil
	}
	var stages pipeline
	var names []string
	for _, token := range strings.Split(spec, "+") {
		token = strings.TrimSpace(token)
		if token == "NONE" {
			continue
		}
		mk, ok := transforms[token]
		if !ok {
			return nil, "", fmt.Errorf("%w: unknown transform %q", ErrInvalidConfig, token)
		}
		stages = append(stages, mk())
		names = append(names, token)
	}
	if len(stages) > maxTransformStages {
		return nil, "", fmt.Errorf("%w: at most %d transform stages", ErrInvalidConfig, maxTransformStages)
	}
	if len(names) == 0 {
		return nil, "NONE", nil
	}
	return stages, strings.Join(names, "+"), nil
}

// deltaTransform replaces each byte with its difference to the previous one.
type deltaTransform struct{}

func (deltaTransform) forward(b []byte) {
	for i := len(b) - 1; i > 0; i-- {
		b[i] -= b[i-1]
	}
}

func (deltaTransform) inverse(b []byte) {
	for i := 1; i < len(b); i++ {
		b[i] += b[i-1]
	}
}

type xorTransform struct{}

func (xorTransform) forward(b []byte) {
	for i := len(b) - 1; i > 0; i-- {
		b[i] ^= b[i-1]
	}
}

func (xorTransform) inverse(b []byte) {
	for i := 1; i < len(b); i++ {
		b[i] ^= b[i-1]
	}
}

// mtfTransform is a move-to-front transform over the byte alphabet.
type mtfTransform struct{}

func newAlphabet() [256]byte {
	var a [256]byte
	for i := range a {
		a[i] = byte(i)
	}
	return a
}

func (mtfTransform) forward(b []byte) {
	alphabet := newAlphabet()
	for i, c := range b {
		j := 0
		for alphabet[j] != c {
			j++
		}
		copy(alphabet[1:j+1], alphabet[:j])
		alphabet[0] = c
		b[i] = byte(j)
	}
}

func (mtfTransform) inverse(b []byte) {
	alphabet := newAlphabet()
	for i, r := range b {
		j := int(r)
		c := alphabet[j]
		copy(alphabet[1:j+1], alphabet[:j])
		alphabet[0] = c
		b[i] = c
	}
}
