package client

import (
	"fmt"

	"github.com/example/erp/tools/glcheck/internal/config"
	"github.com/go-resty/resty/v2"
)

// applyAuth configures static credentials on the resty client.
func applyAuth(rc *resty.Client, authCfg *config.AuthConfig) error {
	switch authCfg.Type {
	case "", "none":
		return nil

	case "basic":
		if authCfg.Username == "" {
			return fmt.Errorf("basic auth requires a username")
		}
		rc.SetBasicAuth(authCfg.Username, authCfg.Password)
		return nil

	case "bearer":
		if authCfg.Token == "" {
			return fmt.Errorf("bearer auth requires a token")
		}
		rc.SetAuthToken(authCfg.Token)
		return nil

	case "api_key":
		if authCfg.APIKey == "" {
			return fmt.Errorf("api key auth requires a key")
		}
		header := authCfg.APIKeyHeader
		if header == "" {
			header = "X-API-Key"
		}
		rc.SetHeader(header, authCfg.APIKey)
		return nil

	default:
		return fmt.Errorf("unsupported auth type: %s", authCfg.Type)
	}
}
