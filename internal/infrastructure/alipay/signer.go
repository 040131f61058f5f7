package alipay

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
)

// RSA2Signer signs outbound requests with the merchant private key and
// verifies inbound notifications with the provider public key, both over
// the canonical sorted parameter string.
type RSA2Signer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// NewRSA2Signer loads PEM-encoded keys from the given paths.
func NewRSA2Signer(privateKeyPath, publicKeyPath string) (*RSA2Signer, error) {
	priv, err := loadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	pub, err := loadPublicKey(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load public key: %w", err)
	}
	return &RSA2Signer{privateKey: priv, publicKey: pub}, nil
}

// Sign returns the base64 RSA-SHA256 signature over the canonical string.
func (s *RSA2Signer) Sign(params url.Values) (string, error) {
	digest := sha256.Sum256([]byte(canonicalString(params)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks an inbound payload's sign field against the provider key.
func (s *RSA2Signer) Verify(params url.Values) bool {
	sig, err := base64.StdEncoding.DecodeString(params.Get("sign"))
	if err != nil {
		return false
	}
	digest := sha256.Sum256([]byte(canonicalString(params)))
	return rsa.VerifyPKCS1v15(s.publicKey, crypto.SHA256, digest[:], sig) == nil
}

// canonicalString joins non-empty parameters as key=value pairs sorted by
// key, excluding the signature fields themselves.
func canonicalString(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" || k == "sign_type" {
			continue
		}
		if params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}
	return strings.Join(pairs, "&")
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s is not an RSA key", path)
	}
	return key, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s is not an RSA key", path)
	}
	return key, nil
}
