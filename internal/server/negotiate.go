package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/common/expfmt"
)

type Encoding string

const (
	Identity Encoding = "identity"
	Gzip     Encoding = "gzip"
	Zstd     Encoding = "zstd"
)

// offeredEncodings is the server preference order used to break ties.
var offeredEncodings = []Encoding{Gzip, Zstd}

type acceptedCoding struct {
	name string
	q    float64
}

// negotiateEncoding picks a content coding from an Accept-Encoding header.
//
// Codings with q=0 are refused. The offered coding with the highest q wins;
// equal q values fall back to server order. "*" stands for any offered coding
// the client did not name. "identity", an empty header or no match means no
// compression.
func negotiateEncoding(header string) Encoding {
	accepted := parseAcceptEncoding(header)
	if len(accepted) == 0 {
		return Identity
	}

	named := make(map[string]float64, len(accepted))
	wildcard := -1.0
	for _, a := range accepted {
		if a.name == "*" {
			wildcard = a.q
			continue
		}
		named[a.name] = a.q
	}

	best, bestQ := Identity, 0.0
	if q, ok := named[string(Identity)]; ok {
		bestQ = q
	}
	for _, enc := range offeredEncodings {
		q, ok := named[string(enc)]
		if !ok {
			q = wildcard
		}
		if q > bestQ {
			best, bestQ = enc, q
		}
	}
	return best
}

func parseAcceptEncoding(header string) []acceptedCoding {
	var out []acceptedCoding
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		q := 1.0
		for _, param := range strings.Split(params, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || strings.TrimSpace(key) != "q" {
				continue
			}
			parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil || parsed < 0 || parsed > 1 {
				parsed = 0
			}
			q = parsed
		}
		out = append(out, acceptedCoding{name: name, q: q})
	}
	return out
}

// negotiateFormat picks the exposition format from the Accept header,
// defaulting to the text format.
func negotiateFormat(h http.Header, openMetrics bool) expfmt.Format {
	if openMetrics {
		return expfmt.NegotiateIncludingOpenMetrics(h)
	}
	return expfmt.Negotiate(h)
}
