package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/rs/zerolog"

	"github.com/metatavu/pakkasmarja-realtime/internal/models"
	"github.com/metatavu/pakkasmarja-realtime/pkg/oauth"
	"github.com/metatavu/pakkasmarja-realtime/pkg/tokenstore"
)

// CredentialTopic is the event bus topic credential changes are published
// on. The payload is the new *models.Credential, nil when logged out.
const CredentialTopic = "session:credential"

// DefaultPollInterval is how often the background loop checks the
// credential for expiry.
const DefaultPollInterval = 30 * time.Second

var (
	// ErrAuthFailed indicates a failed login or refresh exchange.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRefreshExpired indicates the refresh window has closed and the user
	// has to authenticate again.
	ErrRefreshExpired = errors.New("refresh token expired")
)

// Manager owns the process-wide credential: it logs in, refreshes the
// credential before expiry and publishes every replacement on the event bus
// so the connection layer can react.
type Manager struct {
	store        tokenstore.Store
	authClient   oauth.Client
	bus          evbus.Bus
	logger       zerolog.Logger
	pollInterval time.Duration
	slack        time.Duration

	now func() time.Time

	mu         sync.Mutex
	current    *models.Credential
	refreshing bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager initializes a new session Manager.
func NewManager(store tokenstore.Store, authClient oauth.Client, bus evbus.Bus,
	logger zerolog.Logger, pollInterval, slack time.Duration) *Manager {

	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if slack <= 0 {
		slack = models.DefaultExpirySlack
	}

	return &Manager{
		store:        store,
		authClient:   authClient,
		bus:          bus,
		logger:       logger,
		pollInterval: pollInterval,
		slack:        slack,
		now:          time.Now,
	}
}

// Initialize loads a previously stored credential, if any, and announces it
// on the event bus.
func (m *Manager) Initialize() error {
	credential, err := m.store.Get()
	if err != nil {
		return fmt.Errorf("failed to load stored credential: %w", err)
	}

	if credential == nil {
		m.logger.Info().Msg("No stored credential found")
		return nil
	}

	m.setCurrent(credential)
	m.logger.Info().Str("user_id", credential.UserID).Msg("Restored stored credential")
	return nil
}

// Current returns the credential currently held, or nil when the session is
// unauthenticated.
func (m *Manager) Current() *models.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Login exchanges the given username and password for a new credential,
// persists it and makes it the current one. A failed login leaves any
// existing credential untouched.
func (m *Manager) Login(ctx context.Context, username, password string) (*models.Credential, error) {
	response, err := m.authClient.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	credential, err := m.storeResponse(response)
	if err != nil {
		return nil, err
	}

	m.logger.Info().Str("user_id", credential.UserID).Msg("Logged in")
	return credential, nil
}

// Logout clears the stored credential and announces the unauthenticated
// state on the event bus.
func (m *Manager) Logout() error {
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear stored credential: %w", err)
	}

	m.setCurrent(nil)
	m.logger.Info().Msg("Logged out")
	return nil
}

// EnsureFresh returns a credential that is valid right now, refreshing the
// current one when its validity deadline has passed. When the refresh
// deadline has also passed the credential becomes absent and
// ErrRefreshExpired is returned. A refresh failure keeps the stale
// credential; the next poll tick retries.
func (m *Manager) EnsureFresh(ctx context.Context) (*models.Credential, error) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current == nil {
		return nil, nil
	}

	now := m.now()
	if current.IsValid(now, m.slack) {
		return current, nil
	}

	if !current.CanRefresh(now, m.slack) {
		m.logger.Warn().Msg("Refresh deadline passed, session requires re-authentication")
		if err := m.store.Clear(); err != nil {
			m.logger.Error().Err(err).Msg("Failed to clear expired credential")
		}
		m.setCurrent(nil)
		return nil, ErrRefreshExpired
	}

	// Only one refresh exchange may be in flight at a time. A concurrent
	// caller gets the stale credential and lets the winner replace it.
	m.mu.Lock()
	if m.refreshing {
		m.mu.Unlock()
		return current, nil
	}
	m.refreshing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.refreshing = false
		m.mu.Unlock()
	}()

	response, err := m.authClient.Refresh(ctx, current.RefreshToken)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Credential refresh failed, retrying on next tick")
		return current, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	credential, err := m.storeResponse(response)
	if err != nil {
		return current, err
	}

	m.logger.Info().Str("user_id", credential.UserID).Msg("Credential refreshed")
	return credential, nil
}

// Start launches the periodic refresh loop in a separate goroutine.
func (m *Manager) Start() error {
	if m.ctx != nil {
		m.logger.Warn().Msg("SessionManager is already running")
		return errors.New("session manager is already running")
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runRefreshLoop()
	}()

	m.logger.Info().Dur("interval", m.pollInterval).Msg("SessionManager started successfully")
	return nil
}

// Stop gracefully stops the refresh loop.
func (m *Manager) Stop() error {
	if m.ctx == nil {
		m.logger.Warn().Msg("SessionManager is not running")
		return errors.New("session manager is not running")
	}

	m.cancel()
	m.wg.Wait()

	m.ctx = nil
	m.cancel = nil

	m.logger.Info().Msg("SessionManager stopped successfully")
	return nil
}

// runRefreshLoop periodically checks the credential for expiry.
func (m *Manager) runRefreshLoop() {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.EnsureFresh(m.ctx); err != nil {
				m.logger.Debug().Err(err).Msg("Credential refresh tick failed")
			}

		case <-m.ctx.Done():
			m.logger.Info().Msg("SessionManager stopping gracefully")
			return
		}
	}
}

// storeResponse turns a token response into the new current credential.
func (m *Manager) storeResponse(response *oauth.TokenResponse) (*models.Credential, error) {
	credential := &models.Credential{
		AccessToken:      response.AccessToken,
		RefreshToken:     response.RefreshToken,
		ExpiresIn:        response.ExpiresIn,
		RefreshExpiresIn: response.RefreshExpiresIn,
		IssuedAt:         m.now(),
	}

	if err := credential.DecodeClaims(); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to decode access token claims")
	}

	if err := m.store.Set(credential); err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}

	m.setCurrent(credential)
	return credential, nil
}

// setCurrent replaces the current credential and announces the change.
func (m *Manager) setCurrent(credential *models.Credential) {
	m.mu.Lock()
	m.current = credential
	m.mu.Unlock()

	m.bus.Publish(CredentialTopic, credential)
}
