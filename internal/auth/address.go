// address.go — вывод адреса принципала из публичного ключа secp256k1.
// Адрес: base58-check(RIPEMD160(SHA256(байты ключа)), версия 0).
// Хэшируются байты ключа в том виде, в каком они пришли в токене
// (сжатый и несжатый ключ дают разные адреса).
package auth

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcutil/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // формат адреса зафиксирован протоколом
)

// addressVersion — версионный байт base58-check адреса.
const addressVersion byte = 0

// AddressFromPublicKey возвращает base58-check адрес для hex-ключа secp256k1.
func AddressFromPublicKey(hexKey string) (string, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return "", err
	}

	// Валидируем, что это точка на кривой, но хэшируем исходные байты.
	if _, err := secp256k1.ParsePubKey(raw); err != nil {
		return "", err
	}

	sha := sha256.Sum256(raw)
	rmd := ripemd160.New()
	rmd.Write(sha[:])
	hash160 := rmd.Sum(nil)

	return base58.CheckEncode(hash160, addressVersion), nil
}

// AddressFromPrivateKey возвращает адрес сжатого публичного ключа.
// Используется тестами и клиентскими утилитами.
func AddressFromPrivateKey(priv *secp256k1.PrivateKey) (string, error) {
	pub := priv.PubKey().SerializeCompressed()
	return AddressFromPublicKey(hex.EncodeToString(pub))
}
