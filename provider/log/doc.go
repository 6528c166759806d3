// Package log defines the logging interface used by the database provider and
// its typed logging fields.
//
// Adapters (such as the zap package) implement Logger so the provider can log
// consistently whatever backend the embedding application runs.
package log
