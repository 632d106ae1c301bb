package push

import (
	"go.uber.org/zap"

	"telecare-backend/pkg/env"
	"telecare-backend/pkg/logger"
)

// NewProviderFromEnv creates a push provider based on the PUSH_PROVIDER
// environment variable. Unknown or unset values fall back to the mock
// provider so development setups need no push credentials.
func NewProviderFromEnv() (Provider, error) {
	providerType := env.GetString("PUSH_PROVIDER", "mock")

	logger.Info("Initializing push notification provider",
		zap.String("provider_type", providerType))

	switch providerType {
	case "fcm":
		return NewFCMProvider(&FCMConfig{
			CredentialsPath: env.GetString("FCM_CREDENTIALS_PATH", ""),
			ProjectID:       env.GetString("FCM_PROJECT_ID", ""),
		})
	case "apns":
		return NewAPNsProvider(&APNsConfig{
			KeyPath:    env.GetString("APNS_KEY_PATH", ""),
			KeyID:      env.GetString("APNS_KEY_ID", ""),
			TeamID:     env.GetString("APNS_TEAM_ID", ""),
			BundleID:   env.GetString("APNS_BUNDLE_ID", ""),
			Production: env.GetBool("APNS_PRODUCTION", false),
		})
	case "mock":
		return NewMockProvider(), nil
	default:
		logger.Warn("Unknown push provider type, falling back to mock",
			zap.String("provider_type", providerType))
		return NewMockProvider(), nil
	}
}
