package validator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/proofbound/go-dpop-middleware/core"
)

// DPoP proof header type per RFC 9449.
const dpopTyp = "dpop+jwt"

// proofSigningAlgorithms are the asymmetric algorithms accepted for proofs.
// The thumbprint contract covers EC keys, so only the ECDSA family is allowed.
var proofSigningAlgorithms = map[jwa.SignatureAlgorithm]bool{
	jwa.ES256: true,
	jwa.ES384: true,
	jwa.ES512: true,
}

// ProofClaims is the decoded content of a DPoP proof JWT plus the fields
// computed during decoding. It implements core.ProofClaims.
type ProofClaims struct {
	JTI   string `json:"jti"`
	HTM   string `json:"htm"`
	HTU   string `json:"htu"`
	IAT   int64  `json:"iat"`
	ATH   string `json:"ath,omitempty"`
	Nonce string `json:"nonce,omitempty"`

	// PublicKey is the JWK embedded in the proof header.
	PublicKey jwk.Key `json:"-"`

	// PublicKeyThumbprint is the RFC 7638 thumbprint of PublicKey.
	PublicKeyThumbprint string `json:"-"`
}

func (p *ProofClaims) GetJTI() string                 { return p.JTI }
func (p *ProofClaims) GetHTM() string                 { return p.HTM }
func (p *ProofClaims) GetHTU() string                 { return p.HTU }
func (p *ProofClaims) GetIAT() int64                  { return p.IAT }
func (p *ProofClaims) GetATH() string                 { return p.ATH }
func (p *ProofClaims) GetNonce() string               { return p.Nonce }
func (p *ProofClaims) GetPublicKeyThumbprint() string { return p.PublicKeyThumbprint }

// DecodeProof decodes a DPoP proof JWT and verifies its signature with the
// public key embedded in its header. It checks the wire format only:
//
//   - three-part compact serialization with typ "dpop+jwt"
//   - an embedded public (never private) EC JWK
//   - an allowed ECDSA signing algorithm
//   - a valid signature under the embedded key
//   - the required jti, iat, htm and htu claims
//
// Binding the proof to a concrete request, token and nonce is the core's job,
// keeping this package free of transport concerns.
func (v *Verifier) DecodeProof(_ context.Context, proof string) (core.ProofClaims, error) {
	if proof == "" {
		return nil, errors.New("DPoP proof is empty")
	}
	if err := checkCompactFormat(proof); err != nil {
		return nil, err
	}

	parts := strings.Split(proof, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid DPoP proof format: expected 3 parts, got %d", len(parts))
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("could not decode DPoP proof header: %w", err)
	}

	var header struct {
		Typ string          `json:"typ"`
		Alg string          `json:"alg"`
		JWK json.RawMessage `json:"jwk"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("could not unmarshal DPoP proof header: %w", err)
	}

	if header.Typ != dpopTyp {
		return nil, fmt.Errorf("invalid DPoP proof typ header: expected %q, got %q", dpopTyp, header.Typ)
	}
	if len(header.JWK) == 0 {
		return nil, errors.New("DPoP proof header is missing the jwk field")
	}

	alg := jwa.SignatureAlgorithm(header.Alg)
	if !proofSigningAlgorithms[alg] {
		return nil, fmt.Errorf("unsupported DPoP proof algorithm %q", header.Alg)
	}

	publicKey, err := jwk.ParseKey(header.JWK)
	if err != nil {
		return nil, fmt.Errorf("could not parse the jwk from the DPoP proof header: %w", err)
	}
	// RFC 9449 requires a public key; a proof that leaks private material is
	// both broken and dangerous to echo around.
	if _, hasD := publicKey.Get("d"); hasD {
		return nil, errors.New("DPoP proof header jwk contains private key material")
	}

	token, err := jwt.ParseString(proof,
		jwt.WithKey(alg, publicKey),
		jwt.WithValidate(false),
	)
	if err != nil {
		return nil, fmt.Errorf("could not verify the DPoP proof signature: %w", err)
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("could not decode DPoP proof payload: %w", err)
	}
	var claims ProofClaims
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return nil, fmt.Errorf("could not unmarshal DPoP proof claims: %w", err)
	}

	claims.JTI = token.JwtID()
	if claims.JTI == "" {
		return nil, errors.New("DPoP proof is missing the required jti claim")
	}
	issuedAt := token.IssuedAt()
	if issuedAt.IsZero() {
		return nil, errors.New("DPoP proof is missing the required iat claim")
	}
	claims.IAT = issuedAt.Unix()
	if claims.HTM == "" {
		return nil, errors.New("DPoP proof is missing the required htm claim")
	}
	if claims.HTU == "" {
		return nil, errors.New("DPoP proof is missing the required htu claim")
	}

	jkt, err := Thumbprint(publicKey)
	if err != nil {
		return nil, fmt.Errorf("could not compute the DPoP proof key thumbprint: %w", err)
	}

	claims.PublicKey = publicKey
	claims.PublicKeyThumbprint = jkt

	return &claims, nil
}
