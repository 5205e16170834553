package objectstore

import (
	"fmt"
	"slices"

	"github.com/ncw/swift/v2"
)

type AuthType string

const (
	AuthLegacy     AuthType = "legacy"
	AuthKeystoneV2 AuthType = "keystone-v2"
	AuthKeystoneV3 AuthType = "keystone-v3"
)

var AuthTypes = []AuthType{AuthLegacy, AuthKeystoneV2, AuthKeystoneV3}

// Environment variables holding credentials.
const (
	EnvAuthURLLegacy     = "ST_AUTH"
	EnvUserLegacy        = "ST_USER"
	EnvKeyLegacy         = "ST_KEY"
	EnvUsername          = "OS_USERNAME"
	EnvPassword          = "OS_PASSWORD"
	EnvTenantName        = "OS_TENANT_NAME"
	EnvProjectName       = "OS_PROJECT_NAME"
	EnvProjectDomainName = "OS_PROJECT_DOMAIN_NAME"
	EnvUserDomainName    = "OS_USER_DOMAIN_NAME"
	EnvAuthURL           = "OS_AUTH_URL"
	EnvRegionName        = "OS_REGION_NAME"
)

var requiredEnv = map[AuthType][]string{
	AuthLegacy:     {EnvAuthURLLegacy, EnvUserLegacy, EnvKeyLegacy},
	AuthKeystoneV2: {EnvUsername, EnvPassword, EnvTenantName, EnvAuthURL},
	AuthKeystoneV3: {EnvUsername, EnvPassword, EnvProjectName, EnvProjectDomainName, EnvAuthURL},
}

// AuthConfig holds the credentials of one authentication mode. Fields not
// used by Type are ignored.
type AuthConfig struct {
	Type              AuthType
	AuthURL           string
	Username          string
	Password          string
	TenantName        string
	ProjectName       string
	ProjectDomainName string
	UserDomainName    string
	Region            string
}

func ParseAuthType(s string) (AuthType, error) {
	t := AuthType(s)
	if !slices.Contains(AuthTypes, t) {
		return "", fmt.Errorf("invalid AUTH_TYPE %q (available: %s, %s, %s)", s, AuthLegacy, AuthKeystoneV2, AuthKeystoneV3)
	}
	return t, nil
}

// AuthFromEnv reads the credentials of authType through getenv and fails on
// the first missing variable.
func AuthFromEnv(authType AuthType, getenv func(string) string) (AuthConfig, error) {
	required, ok := requiredEnv[authType]
	if !ok {
		return AuthConfig{}, fmt.Errorf("invalid AUTH_TYPE %q", authType)
	}
	for _, key := range required {
		if getenv(key) == "" {
			return AuthConfig{}, fmt.Errorf("%s environment variable must exist", key)
		}
	}

	cfg := AuthConfig{Type: authType, Region: getenv(EnvRegionName)}
	switch authType {
	case AuthLegacy:
		cfg.AuthURL = getenv(EnvAuthURLLegacy)
		cfg.Username = getenv(EnvUserLegacy)
		cfg.Password = getenv(EnvKeyLegacy)
	case AuthKeystoneV2:
		cfg.AuthURL = getenv(EnvAuthURL)
		cfg.Username = getenv(EnvUsername)
		cfg.Password = getenv(EnvPassword)
		cfg.TenantName = getenv(EnvTenantName)
	case AuthKeystoneV3:
		cfg.AuthURL = getenv(EnvAuthURL)
		cfg.Username = getenv(EnvUsername)
		cfg.Password = getenv(EnvPassword)
		cfg.ProjectName = getenv(EnvProjectName)
		cfg.ProjectDomainName = getenv(EnvProjectDomainName)
		cfg.UserDomainName = getenv(EnvUserDomainName)
		if cfg.UserDomainName == "" {
			cfg.UserDomainName = cfg.ProjectDomainName
		}
	}
	return cfg, nil
}

// AuthVersion is the swift auth protocol version of the mode.
func (a AuthConfig) AuthVersion() int {
	switch a.Type {
	case AuthLegacy:
		return 1
	case AuthKeystoneV2:
		return 2
	default:
		return 3
	}
}

func (a AuthConfig) apply(conn *swift.Connection) {
	conn.AuthVersion = a.AuthVersion()
	conn.AuthUrl = a.AuthURL
	conn.UserName = a.Username
	conn.ApiKey = a.Password
	conn.Region = a.Region
	switch a.Type {
	case AuthKeystoneV2:
		conn.Tenant = a.TenantName
	case AuthKeystoneV3:
		conn.Tenant = a.ProjectName
		conn.TenantDomain = a.ProjectDomainName
		conn.Domain = a.UserDomainName
	}
}
