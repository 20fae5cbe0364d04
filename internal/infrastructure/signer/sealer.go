package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"time"
)

// CSDSealer sella la cadena original con RSA-SHA256 (PKCS#1 v1.5) y la llave del CSD.
// El sello viaja en Base64 en el atributo Sello del comprobante.
type CSDSealer struct {
	key        *rsa.PrivateKey
	certNumber string
	certB64    string
	notAfter   time.Time
}

// NewCSDSealer construye el sellador a partir del certificado cargado.
func NewCSDSealer(cert tls.Certificate) (*CSDSealer, error) {
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signer: el CSD debe incluir llave privada RSA")
	}
	x509Cert, err := leaf(cert)
	if err != nil {
		return nil, err
	}
	return &CSDSealer{
		key:        priv,
		certNumber: CertificateNumber(x509Cert),
		certB64:    base64.StdEncoding.EncodeToString(x509Cert.Raw),
		notAfter:   x509Cert.NotAfter,
	}, nil
}

// CertificateNumber número del certificado con que se sella.
func (s *CSDSealer) CertificateNumber() string { return s.certNumber }

// CertificateB64 certificado en DER Base64 (atributo Certificado del XML).
func (s *CSDSealer) CertificateB64() string { return s.certB64 }

// Seal firma la cadena original. Un CSD vencido no sella.
func (s *CSDSealer) Seal(originalChain string) (string, error) {
	if time.Now().After(s.notAfter) {
		return "", fmt.Errorf("signer: CSD %s vencido desde %s", s.certNumber, s.notAfter.Format(time.DateOnly))
	}
	digest := sha256.Sum256([]byte(originalChain))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("signer: firmar cadena original: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify comprueba un sello contra la cadena original con la llave pública del CSD.
func (s *CSDSealer) Verify(originalChain, seal string) error {
	sig, err := base64.StdEncoding.DecodeString(seal)
	if err != nil {
		return fmt.Errorf("signer: sello no es Base64: %w", err)
	}
	digest := sha256.Sum256([]byte(originalChain))
	return rsa.VerifyPKCS1v15(&s.key.PublicKey, crypto.SHA256, digest[:], sig)
}
