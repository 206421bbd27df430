// token.go — разбор и проверка bearer-токенов hub.
// Формат заголовка: `Authorization: bearer v1:<jwt>`, подпись ES256K,
// ключ подписи — сам iss токена (hex-ключ secp256k1). Поддерживается
// вложенный associationToken, делегирующий права записи.
package auth

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
)

// Claims — payload внешнего токена hub.
type Claims struct {
	GaiaChallenge    string       `json:"gaiaChallenge,omitempty"`
	HubURL           string       `json:"hubUrl,omitempty"`
	GaiaHubURL       string       `json:"gaiaHubUrl,omitempty"`
	Scopes           []ScopeEntry `json:"scopes,omitempty"`
	AssociationToken string       `json:"associationToken,omitempty"`
	Salt             string       `json:"salt,omitempty"`
	jwt.RegisteredClaims
}

// AssociationClaims — payload вложенного association-токена.
// exp обязателен; childToAssociate — ключ, которому делегируются права.
type AssociationClaims struct {
	ChildToAssociate string `json:"childToAssociate,omitempty"`
	Salt             string `json:"salt,omitempty"`
	jwt.RegisteredClaims
}

// VerifyOptions — параметры проверки токена.
type VerifyOptions struct {
	// Требовать, чтобы hubUrl токена входил в ValidHubURLs
	RequireCorrectHubURL bool
	// Валидные hub URL (конфигурация плюс https://<serverName>)
	ValidHubURLs []string
	// Floor отзыва: минимально допустимый iat (0 — проверка отключена)
	OldestValidTokenTimestamp int64
}

// Access — результат успешной проверки токена.
type Access struct {
	// BucketAddress — владелец пространства имён (из URL)
	BucketAddress string
	// AssociationIssuer — адрес подписанта associationToken, если был
	AssociationIssuer string
	// Scopes — scope-записи токена (может быть nil)
	Scopes []ScopeEntry
}

// EffectiveSigner — адрес для whitelist и file-log записей:
// association issuer, если есть, иначе bucket address.
func (a *Access) EffectiveSigner() string {
	if a.AssociationIssuer != "" {
		return a.AssociationIssuer
	}
	return a.BucketAddress
}

// ParseAuthHeader извлекает JWT из заголовка `bearer v1:<jwt>`.
func ParseAuthHeader(header string) (string, error) {
	if header == "" {
		return "", apierrors.Validation("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", apierrors.Validation("authorization header should be in bearer format")
	}
	if !strings.HasPrefix(parts[1], "v1:") {
		return "", apierrors.Validation("unsupported authentication token version, expected v1")
	}
	token := strings.TrimPrefix(parts[1], "v1:")
	if token == "" {
		return "", apierrors.Validation("empty authentication token")
	}
	return token, nil
}

// issuerKeyfunc возвращает публичный ключ из iss самого токена.
func issuerKeyfunc(t *jwt.Token) (any, error) {
	iss, err := t.Claims.GetIssuer()
	if err != nil || iss == "" {
		return nil, fmt.Errorf("токен без iss")
	}
	raw, err := hex.DecodeString(iss)
	if err != nil {
		return nil, fmt.Errorf("iss не является hex-ключом: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("некорректный публичный ключ iss: %w", err)
	}
	return pub, nil
}

// Verify проверяет токен и возвращает Access.
//
// Порядок проверок:
//  1. iss обязателен; адрес iss должен совпадать с bucket address из URL
//  2. hubUrl (если включено RequireCorrectHubURL)
//  3. валидация scope-записей
//  4. подпись ES256K и exp
//  5. принадлежность gaiaChallenge множеству challenges
//  6. iat против floor отзыва
//  7. associationToken (если присутствует)
func Verify(tokenString, bucketAddress string, challenges []string, opts VerifyOptions) (*Access, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, apierrors.Validation("failed to parse authentication token")
	}

	// 1. iss и адрес bucket
	if claims.Issuer == "" {
		return nil, apierrors.Validation("authentication token must specify an iss public key")
	}
	issAddr, err := AddressFromPublicKey(claims.Issuer)
	if err != nil {
		return nil, apierrors.Validation("iss is not a valid secp256k1 public key")
	}
	if issAddr != bucketAddress {
		return nil, apierrors.Validation("not allowed to write on this path")
	}

	// 2. hubUrl
	if opts.RequireCorrectHubURL {
		hubURL := claims.HubURL
		if hubURL == "" {
			hubURL = claims.GaiaHubURL
		}
		if hubURL == "" {
			return nil, apierrors.Validation("authentication token must specify the hub it is meant for")
		}
		if !hubURLAllowed(hubURL, opts.ValidHubURLs) {
			return nil, apierrors.Validation("the hubUrl claim does not match this hub")
		}
	}

	// 3. scope-записи
	if claims.Scopes != nil {
		if err := ValidateScopeEntries(claims.Scopes); err != nil {
			return nil, err
		}
	}

	// 4. Подпись и exp. Ключ подписи берётся из iss самого токена.
	if _, err := jwt.ParseWithClaims(tokenString, &Claims{}, issuerKeyfunc,
		jwt.WithValidMethods([]string{AlgES256K}),
	); err != nil {
		return nil, apierrors.Validation("failed to verify authentication token")
	}

	// 5. Challenge
	if !slices.Contains(challenges, claims.GaiaChallenge) {
		return nil, apierrors.Validation("invalid gaiaChallenge text in authentication token")
	}

	// 6. Floor отзыва
	if err := checkTimestampFloor(claims.IssuedAt, opts.OldestValidTokenTimestamp); err != nil {
		return nil, err
	}

	access := &Access{
		BucketAddress: bucketAddress,
		Scopes:        claims.Scopes,
	}

	// 7. Association token
	if claims.AssociationToken != "" {
		assoAddr, err := verifyAssociationToken(claims.AssociationToken, bucketAddress, opts.OldestValidTokenTimestamp)
		if err != nil {
			return nil, err
		}
		access.AssociationIssuer = assoAddr
	}

	return access, nil
}

// verifyAssociationToken проверяет вложенный association-токен
// и возвращает адрес его подписанта.
func verifyAssociationToken(tokenString, bucketAddress string, floor int64) (string, error) {
	claims := &AssociationClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return "", apierrors.Validation("failed to parse association token")
	}

	if claims.Issuer == "" {
		return "", apierrors.Validation("association token must specify an iss public key")
	}
	if claims.ChildToAssociate == "" {
		return "", apierrors.Validation("association token must specify childToAssociate")
	}
	if claims.ExpiresAt == nil {
		return "", apierrors.Validation("association token must specify an exp")
	}

	// Подпись ключом iss association-токена; exp обязателен и проверяется.
	if _, err := jwt.ParseWithClaims(tokenString, &AssociationClaims{}, issuerKeyfunc,
		jwt.WithValidMethods([]string{AlgES256K}),
		jwt.WithExpirationRequired(),
	); err != nil {
		return "", apierrors.Validation("failed to verify association token")
	}

	// Делегат должен совпадать с владельцем bucket.
	childAddr, err := AddressFromPublicKey(claims.ChildToAssociate)
	if err != nil {
		return "", apierrors.Validation("childToAssociate is not a valid secp256k1 public key")
	}
	if childAddr != bucketAddress {
		return "", apierrors.Validation("association token child key does not match the bucket address")
	}

	if err := checkTimestampFloor(claims.IssuedAt, floor); err != nil {
		return "", err
	}

	return AddressFromPublicKey(claims.Issuer)
}

// checkTimestampFloor сравнивает iat с floor отзыва.
func checkTimestampFloor(iat *jwt.NumericDate, floor int64) error {
	if floor <= 0 || iat == nil {
		return nil
	}
	if iat.Unix() < floor {
		return apierrors.AuthTokenTimestamp(floor)
	}
	return nil
}

// hubURLAllowed проверяет принадлежность hubUrl списку валидных
// с нормализацией хвостового слэша.
func hubURLAllowed(hubURL string, valid []string) bool {
	normalized := strings.TrimRight(hubURL, "/")
	for _, v := range valid {
		if normalized == strings.TrimRight(v, "/") {
			return true
		}
	}
	return false
}
