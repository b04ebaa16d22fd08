// Package logging provides structured logging for ragd.
//
// Logger wraps Zap with context-aware methods. Every call pulls correlation
// fields (trace id, request id, user id, document id) out of the context:
//
//	ctx = logging.WithRequestID(ctx, "req-42")
//	ctx = logging.WithUserID(ctx, userID)
//	logger.Info(ctx, "query answered", zap.Int("chunks", n))
//
// Sensitive keys (api_key, authorization, token, ...) are redacted by the
// encoder, and config.Secret values are logged through Secret.
//
// The level is held in a zap.AtomicLevel so SetLevel can change it at
// runtime when the config file is reloaded.
package logging
