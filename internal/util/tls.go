package util

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"

	"github.com/MingChen0919/elastic-search/internal/config"
)

// NewHTTPClient builds an *http.Client for the search engine with TLS
// settings from the given config. If neither SkipVerify nor CACert is set,
// it returns a default client.
func NewHTTPClient(tc config.TLSConfig) (*http.Client, error) {
	tlsConfig, err := newTLSConfig(tc)
	if err != nil {
		return nil, err
	}
	if tlsConfig == nil {
		return &http.Client{}, nil
	}
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}, nil
}

func newTLSConfig(tc config.TLSConfig) (*tls.Config, error) {
	if !tc.SkipVerify && tc.CACert == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{}

	if tc.SkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	if tc.CACert != "" {
		caCert, err := os.ReadFile(tc.CACert)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate %s: %w", tc.CACert, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate %s", tc.CACert)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
