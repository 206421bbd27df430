// es256k.go — регистрация метода подписи ES256K (ECDSA secp256k1 + SHA-256)
// для golang-jwt. Подпись в формате JOSE: конкатенация R||S по 32 байта.
package auth

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/golang-jwt/jwt/v5"
)

// AlgES256K — имя алгоритма в заголовке JWT.
const AlgES256K = "ES256K"

// SigningMethodES256K реализует jwt.SigningMethod поверх secp256k1.
type SigningMethodES256K struct{}

// MethodES256K — единственный экземпляр метода подписи.
var MethodES256K = &SigningMethodES256K{}

func init() {
	jwt.RegisterSigningMethod(AlgES256K, func() jwt.SigningMethod {
		return MethodES256K
	})
}

// Alg возвращает имя алгоритма.
func (m *SigningMethodES256K) Alg() string {
	return AlgES256K
}

// Verify проверяет подпись R||S (64 байта) ключом *secp256k1.PublicKey.
func (m *SigningMethodES256K) Verify(signingString string, sig []byte, key any) error {
	pub, ok := key.(*secp256k1.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}

	if len(sig) != 64 {
		return jwt.ErrSignatureInvalid
	}

	var r, s secp256k1.ModNScalar
	if r.SetByteSlice(sig[:32]) || r.IsZero() {
		return jwt.ErrSignatureInvalid
	}
	if s.SetByteSlice(sig[32:]) || s.IsZero() {
		return jwt.ErrSignatureInvalid
	}

	hash := sha256.Sum256([]byte(signingString))
	if !ecdsa.NewSignature(&r, &s).Verify(hash[:], pub) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}

// Sign подписывает строку ключом *secp256k1.PrivateKey.
// Используется клиентскими утилитами и тестами; hub только проверяет.
func (m *SigningMethodES256K) Sign(signingString string, key any) ([]byte, error) {
	priv, ok := key.(*secp256k1.PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}

	hash := sha256.Sum256([]byte(signingString))
	sig := ecdsa.Sign(priv, hash[:])

	r := sig.R()
	s := sig.S()
	rBytes := r.Bytes()
	sBytes := s.Bytes()

	out := make([]byte, 64)
	copy(out[:32], rBytes[:])
	copy(out[32:], sBytes[:])
	return out, nil
}
