package epp

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ClientBundle is a parsed client PEM bundle containing CA certificates and a
// client certificate+key pair suitable for the registry's mutual-TLS
// transport.
type ClientBundle struct {
	Certificate tls.Certificate
	ClientCert  *x509.Certificate
	CAPool      *x509.CertPool
}

// LoadClientBundle parses a client bundle from path.
func LoadClientBundle(path string) (*ClientBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client bundle: %w", err)
	}
	return LoadClientBundleFromBytes(data)
}

// LoadClientBundleFromBytes parses a client bundle from the provided bytes.
// The bundle holds any number of CA certificates, one client (leaf)
// certificate with optional intermediates, and the matching private key.
func LoadClientBundleFromBytes(data []byte) (*ClientBundle, error) {
	var (
		caPool        = x509.NewCertPool()
		caCount       int
		clientCert    *x509.Certificate
		clientCertPEM []byte
		clientKeyPEM  []byte
		privKeys      []struct {
			signer crypto.Signer
			pem    []byte
		}
	)

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			pemBytes := pem.EncodeToMemory(block)
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("client bundle: parse certificate: %w", err)
			}
			if cert.IsCA {
				caPool.AddCert(cert)
				caCount++
			} else if clientCert == nil {
				clientCert = cert
				clientCertPEM = pemBytes
			} else {
				// append any intermediates to the existing client certificate PEM
				clientCertPEM = append(clientCertPEM, pemBytes...)
			}
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			key, err := parsePrivateKey(block)
			if err != nil {
				return nil, fmt.Errorf("client bundle: parse private key: %w", err)
			}
			privKeys = append(privKeys, struct {
				signer crypto.Signer
				pem    []byte
			}{signer: key, pem: pem.EncodeToMemory(block)})
		default:
			// ignore additional blocks
		}
	}

	if clientCert == nil {
		return nil, errors.New("client bundle: client certificate not found")
	}
	for _, key := range privKeys {
		if publicKeysEqual(clientCert.PublicKey, key.signer.Public()) {
			clientKeyPEM = key.pem
			break
		}
	}
	if len(clientKeyPEM) == 0 {
		return nil, errors.New("client bundle: matching private key not found")
	}
	if caCount == 0 {
		return nil, errors.New("client bundle: CA certificate required")
	}

	tlsCert, err := tls.X509KeyPair(clientCertPEM, clientKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("client bundle: build key pair: %w", err)
	}
	return &ClientBundle{
		Certificate: tlsCert,
		ClientCert:  clientCert,
		CAPool:      caPool,
	}, nil
}

// TLSConfig builds the mutual-TLS client configuration for the registry.
func (b *ClientBundle) TLSConfig(serverName string) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{b.Certificate},
		RootCAs:      b.CAPool,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}
}

func parsePrivateKey(block *pem.Block) (crypto.Signer, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", key)
		}
		return signer, nil
	}
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	switch pub := a.(type) {
	case *rsa.PublicKey:
		other, ok := b.(*rsa.PublicKey)
		return ok && pub.Equal(other)
	case *ecdsa.PublicKey:
		other, ok := b.(*ecdsa.PublicKey)
		return ok && pub.Equal(other)
	case ed25519.PublicKey:
		other, ok := b.(ed25519.PublicKey)
		return ok && pub.Equal(other)
	default:
		return false
	}
}
