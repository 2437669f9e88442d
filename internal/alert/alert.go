// Package alert notifies an operator when a provider or key trips the
// circuit breaker, or when a price override changes, by trying the
// message-pusher webhook first and falling back to email.
package alert

import (
	"fmt"

	"github.com/Laisky/zap"

	"github.com/gateway/multiapi/common/config"
	"github.com/gateway/multiapi/common/logger"
	"github.com/gateway/multiapi/common/message"
)

// Notify sends title/content to whichever channel is configured,
// message-pusher first, email second, logging (never returning an error)
// if neither is configured or both fail — a broken alert channel should
// never take down the request that triggered it.
func Notify(title, content string) {
	if config.MessagePusherAddress != "" {
		if err := message.SendMessage(title, title, content); err == nil {
			return
		} else {
			logger.Logger.Warn("message pusher alert failed", zap.Error(err))
		}
	}

	if config.RootUserEmail != "" {
		if err := message.SendEmail(title, config.RootUserEmail, content); err != nil {
			logger.Logger.Warn("email alert failed", zap.Error(err))
		}
		return
	}

	logger.Logger.Info("alert suppressed, no channel configured", zap.String("title", title))
}

// ProviderTripped notifies that internal/breaker disabled a provider.
func ProviderTripped(providerName string, reason string) {
	Notify(
		fmt.Sprintf("[%s] provider disabled: %s", config.SystemName, providerName),
		fmt.Sprintf("Provider %q was automatically disabled: %s", providerName, reason),
	)
}

// KeyTripped notifies that internal/breaker disabled a single upstream key.
func KeyTripped(providerName string, keyId int64, reason string) {
	Notify(
		fmt.Sprintf("[%s] key disabled on %s", config.SystemName, providerName),
		fmt.Sprintf("Upstream key %d on provider %q was automatically disabled: %s", keyId, providerName, reason),
	)
}

// PriceChanged notifies that a price override was upserted.
func PriceChanged(modelName string, ratio float64) {
	Notify(
		fmt.Sprintf("[%s] price override changed", config.SystemName),
		fmt.Sprintf("Model %q ratio set to %v", modelName, ratio),
	)
}
