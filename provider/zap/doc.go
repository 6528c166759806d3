// Package zap adapts go.uber.org/zap to the provider log.Logger interface.
package zap
