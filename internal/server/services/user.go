// Package services holds the sync server's use cases. Handlers call into
// them; they own transactions and talk to storage through the repository
// manager.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
	"github.com/dmitrijs2005/journalkeeper/internal/dbx"
	"github.com/dmitrijs2005/journalkeeper/internal/server/auth"
	"github.com/dmitrijs2005/journalkeeper/internal/server/config"
	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
	"github.com/dmitrijs2005/journalkeeper/internal/server/repositories/repomanager"
)

const (
	TierEndToEnd       = "e2e"
	TierUserControlled = "uce"

	// x25519KeySize is the length of an E2E public key.
	x25519KeySize = 32
)

type TokenPair struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	cache                        *UserCache
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	now                          func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		cache:                        NewUserCache(cfg.CacheSize, cfg.CacheTTL),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		now:                          time.Now,
	}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrorValidation, fmt.Sprintf(format, args...))
}

func validateCredentials(salt, verifier []byte, kdf cryptox.KDFParams) error {
	if len(salt) < cryptox.MinSaltSize {
		return validationError("salt must be at least %d bytes", cryptox.MinSaltSize)
	}
	if len(verifier) == 0 {
		return validationError("verifier is required")
	}
	if err := kdf.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}
	return nil
}

func validateMaterial(m api.KeyMaterial) error {
	switch m.Tier {
	case TierEndToEnd:
		if len(m.PublicKey) != x25519KeySize {
			return validationError("public key must be %d bytes", x25519KeySize)
		}
	case TierUserControlled:
		if m.WrappedKey == "" {
			return validationError("wrapped key is required")
		}
		if len(m.Salt) < cryptox.MinSaltSize {
			return validationError("key salt must be at least %d bytes", cryptox.MinSaltSize)
		}
		if err := m.KDF.Validate(); err != nil {
			return fmt.Errorf("%w: %w", common.ErrorValidation, err)
		}
	default:
		return validationError("unknown tier %q", m.Tier)
	}
	return nil
}

// Register creates an account. Recovery hashes in the material go to their
// own table and are never returned by GetKeys.
func (s *UserService) Register(ctx context.Context, req api.RegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, validationError("username is required")
	}
	if err := validateCredentials(req.Salt, req.Verifier, req.KDF); err != nil {
		return nil, err
	}
	if err := validateMaterial(req.Material); err != nil {
		return nil, err
	}

	hashes := req.Material.RecoveryHashes
	material := req.Material
	material.RecoveryHashes = nil

	user := &models.User{
		UserName: username,
		Salt:     req.Salt,
		Verifier: req.Verifier,
		KDF:      req.KDF,
		Tier:     material.Tier,
		Material: material,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.repomanager.Users(tx).Create(ctx, user)
		if err != nil {
			return err
		}
		if len(hashes) > 0 {
			return s.repomanager.RecoveryCodes(tx).Replace(ctx, user.ID, hashes)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return user, nil
}

func (s *UserService) userByLogin(ctx context.Context, userName string) (*models.User, error) {
	if u, ok := s.cache.Get(userName); ok {
		return u, nil
	}
	u, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, userName)
	if err != nil {
		return nil, err
	}
	s.cache.Set(u)
	return u, nil
}

func (s *UserService) getRandomSalt() []byte {
	return common.GenerateRandByteArray(cryptox.SaltSize)
}

// GetSalt returns the login salt and KDF cost of userName. Unknown users get
// a random salt so the endpoint does not reveal which accounts exist.
func (s *UserService) GetSalt(ctx context.Context, userName string) ([]byte, cryptox.KDFParams, error) {
	user, err := s.userByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.getRandomSalt(), cryptox.DefaultKDFParams, nil
		}
		return nil, cryptox.KDFParams{}, common.ErrorInternal
	}

	return user.Salt, user.KDF, nil
}

func (s *UserService) generateAccessToken(userID string) (string, error) {
	return auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *UserService) checkVerifier(verifier []byte, verifierCandidate []byte) bool {
	return subtle.ConstantTimeCompare(verifier, verifierCandidate) == 1
}

func (s *UserService) Login(ctx context.Context, userName string, verifierCandidate []byte) (*TokenPair, error) {
	user, err := s.userByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	if !s.checkVerifier(user.Verifier, verifierCandidate) {
		return nil, common.ErrorUnauthorized
	}

	return s.generateTokenPair(ctx, s.db, user.ID)
}

// RefreshToken rotates a refresh token: the presented one is consumed and a
// fresh pair issued. A token can be used once.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var (
		tokenPair *TokenPair
		expired   bool
	)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		token, err := s.repomanager.RefreshTokens(tx).Consume(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return fmt.Errorf("error consuming refresh token: %w", err)
		}

		// the expired row stays deleted
		if token.Expired(s.now()) {
			expired = true
			return nil
		}

		tokenPair, err = s.generateTokenPair(ctx, tx, token.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, common.ErrRefreshTokenExpired
	}

	return tokenPair, nil
}

// GetKeys returns the stored key material of userID.
func (s *UserService) GetKeys(ctx context.Context, userID string) (api.KeyMaterial, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return api.KeyMaterial{}, err
	}
	return user.Material, nil
}

// PutKeys replaces credentials and key material after a password change.
// The tier is fixed at registration. New recovery hashes replace the old
// ones; an empty list keeps them.
func (s *UserService) PutKeys(ctx context.Context, userID string, req api.UpdateKeysRequest) error {
	if err := validateCredentials(req.Salt, req.Verifier, req.KDF); err != nil {
		return err
	}
	if err := validateMaterial(req.Material); err != nil {
		return err
	}

	hashes := req.Material.RecoveryHashes
	material := req.Material
	material.RecoveryHashes = nil

	var userName string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)
		user, err := users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.Tier != material.Tier {
			return fmt.Errorf("%w: account tier is %s", common.ErrTierMismatch, user.Tier)
		}
		userName = user.UserName

		if err := users.UpdateCredentials(ctx, userID, req.Salt, req.Verifier, req.KDF, material); err != nil {
			return err
		}
		if len(hashes) > 0 {
			return s.repomanager.RecoveryCodes(tx).Replace(ctx, userID, hashes)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Delete(userName)
	return nil
}

// Recover signs userName in with a one-time recovery code. Unknown users
// and spent codes look the same to the caller. Other sessions of the user are
// revoked.
func (s *UserService) Recover(ctx context.Context, userName, code string) (*TokenPair, error) {
	if strings.TrimSpace(code) == "" {
		return nil, common.ErrorUnauthorized
	}

	user, err := s.userByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	var tokenPair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RecoveryCodes(tx).Redeem(ctx, user.ID, cryptox.HashRecoveryCode(code)); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return err
		}
		if _, err := s.repomanager.RefreshTokens(tx).RevokeUser(ctx, user.ID); err != nil {
			return err
		}
		var err error
		tokenPair, err = s.generateTokenPair(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tokenPair, nil
}

// PurgeExpiredTokens drops refresh tokens past their expiry.
func (s *UserService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, s.now())
}

func (s *UserService) generateTokenPair(ctx context.Context, db dbx.DBTX, userID string) (*TokenPair, error) {
	accessToken, err := s.generateAccessToken(userID)
	if err != nil {
		return nil, common.ErrorInternal
	}

	refreshtoken, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}

	err = s.repomanager.RefreshTokens(db).Create(ctx, userID, refreshtoken, s.now().Add(s.refreshTokenValidityDuration))
	if err != nil {
		return nil, common.ErrorInternal
	}

	return &TokenPair{UserID: userID, AccessToken: accessToken, RefreshToken: refreshtoken}, nil
}
