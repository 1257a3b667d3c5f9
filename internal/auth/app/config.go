package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/factstofaith/gigglefits-sub006/internal/auth/service"
	"github.com/factstofaith/gigglefits-sub006/pkg/validate"
)

type Config struct {
	Issuer             string        `env:"PLATFORM_ISSUER"               envDefault:"platform" validate:"required"`
	Audience           []string      `env:"PLATFORM_AUDIENCE"             envDefault:"platform-api" envSeparator:","`
	NumKeys            int           `env:"PLATFORM_NUM_KEYS"             envDefault:"3"        validate:"min=1,max=10"`
	AccessTokenTTL     time.Duration `env:"PLATFORM_ACCESS_TOKEN_TTL"     envDefault:"15m"      validate:"gt=0"`
	LoginChallengeTTL  time.Duration `env:"PLATFORM_LOGIN_CHALLENGE_TTL"  envDefault:"5m"       validate:"gt=0"`
	MFAIssuer          string        `env:"PLATFORM_MFA_ISSUER"           envDefault:"Platform" validate:"required"`
	InvitationTTLHours int           `env:"PLATFORM_INVITATION_TTL_HOURS" envDefault:"72"       validate:"min=1"`
	PublicURL          string        `env:"PLATFORM_PUBLIC_URL"           envDefault:"http://localhost:8080" validate:"required,url"`
	AcceptURL          string        `env:"PLATFORM_INVITATION_ACCEPT_URL"` // defaults to PublicURL + /invitations/accept
	DatabaseFile       string        `env:"PLATFORM_DATABASE_FILE"        envDefault:"platform.db"`
	PepperFile         string        `env:"PLATFORM_PEPPER_FILE"          envDefault:"pepper"`

	BootstrapAdminEmail    string `env:"PLATFORM_BOOTSTRAP_ADMIN_EMAIL"    validate:"omitempty,email"`
	BootstrapAdminName     string `env:"PLATFORM_BOOTSTRAP_ADMIN_NAME"`
	BootstrapAdminPassword string `env:"PLATFORM_BOOTSTRAP_ADMIN_PASSWORD"`

	GoogleClientID     string   `env:"PLATFORM_OAUTH_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string   `env:"PLATFORM_OAUTH_GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string   `env:"PLATFORM_OAUTH_GOOGLE_REDIRECT_URI"`
	GoogleScopes       []string `env:"PLATFORM_OAUTH_GOOGLE_SCOPES" envSeparator:","`
	GitHubClientID     string   `env:"PLATFORM_OAUTH_GITHUB_CLIENT_ID"`
	GitHubClientSecret string   `env:"PLATFORM_OAUTH_GITHUB_CLIENT_SECRET"`
	GitHubRedirectURI  string   `env:"PLATFORM_OAUTH_GITHUB_REDIRECT_URI"`
	GitHubScopes       []string `env:"PLATFORM_OAUTH_GITHUB_SCOPES" envSeparator:","`

	Env                  string        `env:"ENV"                   envDefault:"dev"`
	LogLevel             string        `env:"LOG_LEVEL"             envDefault:"info"`
	LogFormat            string        `env:"LOG_FORMAT"            envDefault:"json" validate:"oneof=json text"`
	Port                 int           `env:"PORT"                  envDefault:"8080" validate:"min=1,max=65535"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`
}

// LoadConfig parses the environment and validates the result.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.PublicURL = strings.TrimSuffix(cfg.PublicURL, "/")
	if cfg.AcceptURL == "" {
		cfg.AcceptURL = cfg.PublicURL + "/invitations/accept"
	}
	cfg.Audience = trimCSV(cfg.Audience)

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if (cfg.BootstrapAdminEmail == "") != (cfg.BootstrapAdminPassword == "") {
		return Config{}, fmt.Errorf("config: PLATFORM_BOOTSTRAP_ADMIN_EMAIL and PLATFORM_BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}
	return cfg, nil
}

// Providers returns the OAuth providers with credentials configured. A
// missing redirect URI defaults to this service's callback route.
func (c Config) Providers() map[string]service.ProviderConfig {
	providers := make(map[string]service.ProviderConfig)
	if c.GoogleClientID != "" && c.GoogleClientSecret != "" {
		scopes := trimCSV(c.GoogleScopes)
		if len(scopes) == 0 {
			scopes = []string{"openid", "email", "profile"}
		}
		providers["google"] = service.ProviderConfig{
			Name:         "Google",
			ClientID:     c.GoogleClientID,
			ClientSecret: c.GoogleClientSecret,
			RedirectURI:  c.redirectURI("google", c.GoogleRedirectURI),
			AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:     "https://oauth2.googleapis.com/token",
			UserInfoURL:  "https://openidconnect.googleapis.com/v1/userinfo",
			Scopes:       scopes,
		}
	}
	if c.GitHubClientID != "" && c.GitHubClientSecret != "" {
		scopes := trimCSV(c.GitHubScopes)
		if len(scopes) == 0 {
			scopes = []string{"read:user", "user:email"}
		}
		providers["github"] = service.ProviderConfig{
			Name:         "GitHub",
			ClientID:     c.GitHubClientID,
			ClientSecret: c.GitHubClientSecret,
			RedirectURI:  c.redirectURI("github", c.GitHubRedirectURI),
			AuthURL:      "https://github.com/login/oauth/authorize",
			TokenURL:     "https://github.com/login/oauth/access_token",
			UserInfoURL:  "https://api.github.com/user",
			Scopes:       scopes,
		}
	}
	return providers
}

func (c Config) redirectURI(provider, configured string) string {
	if configured != "" {
		return configured
	}
	return c.PublicURL + "/invitations/oauth/" + provider + "/callback"
}

// trimCSV removes empty entries from a string slice.
func trimCSV(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			result = append(result, v)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
